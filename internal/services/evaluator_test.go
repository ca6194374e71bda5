package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"portfolio-tracker/internal/models"
)

func freshSnapshot(now time.Time, price, changePct, rsi float64, volume int64) *models.QuoteSnapshot {
	return &models.QuoteSnapshot{
		Ticker:         "0700.HK",
		Price:          price,
		DailyChangePct: changePct,
		Volume:         volume,
		RSI:            rsi,
		FetchedAt:      now.Add(-time.Minute),
	}
}

func TestEvaluateCriteria(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eval := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: true}

	tests := []struct {
		name      string
		criterion string
		threshold float64
		signed    bool
		snap      *models.QuoteSnapshot
		want      Decision
	}{
		{"price above crossed", models.CriterionPriceAbove, 300, false, freshSnapshot(now, 320, 0, 50, 0), DecisionFire},
		{"price above at threshold", models.CriterionPriceAbove, 320, false, freshSnapshot(now, 320, 0, 50, 0), DecisionNone},
		{"price below crossed", models.CriterionPriceBelow, 300, false, freshSnapshot(now, 280, 0, 50, 0), DecisionFire},
		{"price below not crossed", models.CriterionPriceBelow, 300, false, freshSnapshot(now, 310, 0, 50, 0), DecisionNone},
		{"percent change magnitude up", models.CriterionPercentChangeDaily, 5, false, freshSnapshot(now, 320, 6.2, 50, 0), DecisionFire},
		{"percent change magnitude down", models.CriterionPercentChangeDaily, 5, false, freshSnapshot(now, 320, -6.2, 50, 0), DecisionFire},
		{"percent change magnitude inside band", models.CriterionPercentChangeDaily, 5, false, freshSnapshot(now, 320, -3.1, 50, 0), DecisionNone},
		{"percent change signed positive", models.CriterionPercentChangeDaily, 5, true, freshSnapshot(now, 320, 6.2, 50, 0), DecisionFire},
		{"percent change signed positive ignores drop", models.CriterionPercentChangeDaily, 5, true, freshSnapshot(now, 320, -6.2, 50, 0), DecisionNone},
		{"percent change signed negative", models.CriterionPercentChangeDaily, -5, true, freshSnapshot(now, 320, -6.2, 50, 0), DecisionFire},
		{"volume spike", models.CriterionVolumeSpike, 1_000_000, false, freshSnapshot(now, 320, 0, 50, 2_500_000), DecisionFire},
		{"rsi overbought", models.CriterionRSIOverbought, 70, false, freshSnapshot(now, 320, 0, 82, 0), DecisionFire},
		{"rsi overbought below threshold", models.CriterionRSIOverbought, 70, false, freshSnapshot(now, 320, 0, 65, 0), DecisionNone},
		{"rsi oversold", models.CriterionRSIOversold, 30, false, freshSnapshot(now, 320, 0, 22, 0), DecisionFire},
		{"unknown criterion never fires", "moon_phase", 1, false, freshSnapshot(now, 320, 9, 99, 9), DecisionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := models.Alert{
				Ticker:    "0700.HK",
				Criterion: tt.criterion,
				Threshold: tt.threshold,
				Signed:    tt.signed,
				Active:    true,
			}
			assert.Equal(t, tt.want, eval.Evaluate(alert, tt.snap, now))
		})
	}
}

func TestEvaluateSkipsStaleAndMissingQuotes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eval := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: true}
	alert := models.Alert{Criterion: models.CriterionPriceAbove, Threshold: 100, Active: true}

	stale := freshSnapshot(now, 500, 0, 50, 0)
	stale.FetchedAt = now.Add(-48 * time.Hour)

	assert.Equal(t, DecisionNone, eval.Evaluate(alert, stale, now))
	assert.Equal(t, DecisionNone, eval.Evaluate(alert, nil, now))
}

// One crossing produces one notification: the cooldown keeps the alert quiet
// while the threshold stays crossed, and the alert fires again only after it
// re-arms.
func TestEvaluateEdgeTriggering(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	eval := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: false}
	alert := models.Alert{Criterion: models.CriterionPriceAbove, Threshold: 50, Active: true}

	// Below threshold: nothing.
	assert.Equal(t, DecisionNone, eval.Evaluate(alert, freshSnapshot(start, 45, 0, 50, 0), start))

	// Crosses: fires.
	fired := start.Add(time.Minute)
	assert.Equal(t, DecisionFire, eval.Evaluate(alert, freshSnapshot(fired, 55, 0, 50, 0), fired))
	alert.LastTriggeredAt = &fired

	// Still above during cooldown: quiet.
	later := fired.Add(time.Hour)
	assert.Equal(t, DecisionNone, eval.Evaluate(alert, freshSnapshot(later, 56, 0, 50, 0), later))

	// Cooldown elapsed and still above: fires again.
	next := fired.Add(25 * time.Hour)
	assert.Equal(t, DecisionFire, eval.Evaluate(alert, freshSnapshot(next, 60, 0, 50, 0), next))
}

func TestEvaluateResetOnClear(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	alert := models.Alert{Criterion: models.CriterionPriceAbove, Threshold: 50, Active: true}
	fired := start
	alert.LastTriggeredAt = &fired

	during := start.Add(time.Hour)

	// With reset-on-clear, the condition clearing during cooldown re-arms.
	withReset := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: true}
	assert.Equal(t, DecisionRearm, withReset.Evaluate(alert, freshSnapshot(during, 49, 0, 50, 0), during))

	// Once re-armed, a fresh crossing fires immediately.
	rearmed := alert
	rearmed.LastTriggeredAt = nil
	assert.Equal(t, DecisionFire, withReset.Evaluate(rearmed, freshSnapshot(during, 60, 0, 50, 0), during))

	// Without the policy, clearing changes nothing until the cooldown runs out.
	withoutReset := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: false}
	assert.Equal(t, DecisionNone, withoutReset.Evaluate(alert, freshSnapshot(during, 49, 0, 50, 0), during))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eval := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: true}
	alert := models.Alert{Criterion: models.CriterionPriceAbove, Threshold: 100, Active: true}
	snap := freshSnapshot(now, 150, 0, 50, 0)

	first := eval.Evaluate(alert, snap, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, eval.Evaluate(alert, snap, now))
	}
}
