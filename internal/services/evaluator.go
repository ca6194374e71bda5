package services

import (
	"math"
	"time"

	"portfolio-tracker/internal/models"
)

// Decision is the outcome of evaluating one alert against one snapshot.
type Decision int

const (
	// DecisionNone: nothing to do.
	DecisionNone Decision = iota
	// DecisionFire: the alert just transitioned into a satisfied condition
	// and a notification should be sent.
	DecisionFire
	// DecisionRearm: the condition cleared during cooldown and the
	// reset-on-clear policy re-arms the alert early. No notification.
	DecisionRearm
)

func (d Decision) String() string {
	switch d {
	case DecisionFire:
		return "fire"
	case DecisionRearm:
		return "rearm"
	}
	return "none"
}

// Evaluator decides when alerts fire. An alert is either armed
// (LastTriggeredAt nil, or the cooldown elapsed) or cooling down. Firing is
// edge-triggered: while a threshold stays crossed across polling cycles,
// the cooldown keeps the alert quiet so one crossing produces one
// notification.
//
// Evaluate is a pure function of its arguments; the only clock involved is
// the caller-supplied now.
type Evaluator struct {
	Cooldown     time.Duration
	QuoteTTL     time.Duration
	ResetOnClear bool
}

// Evaluate returns the decision for one alert given the latest snapshot.
// A missing or stale snapshot always yields DecisionNone: alerts never fire
// on data older than the TTL.
func (e Evaluator) Evaluate(alert models.Alert, snap *models.QuoteSnapshot, now time.Time) Decision {
	if snap == nil || now.Sub(snap.FetchedAt) >= e.QuoteTTL {
		return DecisionNone
	}

	satisfied := conditionSatisfied(alert, snap)
	armed := alert.LastTriggeredAt == nil || now.Sub(*alert.LastTriggeredAt) >= e.Cooldown

	if armed {
		if satisfied {
			return DecisionFire
		}
		return DecisionNone
	}

	if !satisfied && e.ResetOnClear {
		return DecisionRearm
	}
	return DecisionNone
}

func conditionSatisfied(alert models.Alert, snap *models.QuoteSnapshot) bool {
	switch alert.Criterion {
	case models.CriterionPriceAbove:
		return snap.Price > alert.Threshold
	case models.CriterionPriceBelow:
		return snap.Price < alert.Threshold
	case models.CriterionPercentChangeDaily:
		if alert.Signed {
			if alert.Threshold >= 0 {
				return snap.DailyChangePct > alert.Threshold
			}
			return snap.DailyChangePct < alert.Threshold
		}
		return math.Abs(snap.DailyChangePct) > math.Abs(alert.Threshold)
	case models.CriterionVolumeSpike:
		return float64(snap.Volume) > alert.Threshold
	case models.CriterionRSIOverbought:
		return snap.RSI > alert.Threshold
	case models.CriterionRSIOversold:
		return snap.RSI < alert.Threshold
	}
	return false
}
