package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-tracker/internal/models"
)

type alertStore interface {
	FindActive(ctx context.Context) ([]models.Alert, error)
	SetLastTriggered(ctx context.Context, id primitive.ObjectID, at *time.Time) error
}

type holdingsSource interface {
	Holdings(ctx context.Context, userID string) ([]models.Holding, error)
}

type notifier interface {
	Notify(alert models.Alert, snap models.QuoteSnapshot, toEmail, commentary string) error
}

type commentator interface {
	Commentary(ctx context.Context, alert models.Alert, snap models.QuoteSnapshot, holdings []models.Holding) string
}

// AlertChecker is the polling loop that ties quotes, the ledger, the
// evaluator and the notifier together. The cooldown timestamp only advances
// after a confirmed delivery, so a failed notification leaves the alert
// armed and it retries on the next cycle: at-most-once per trigger, with
// no trigger silently dropped.
type AlertChecker struct {
	alerts   alertStore
	users    userLookup
	quotes   quoteSource
	fetcher  refresher
	holdings holdingsSource
	eval     Evaluator
	notify   notifier
	ai       commentator

	// ensures only one check pass runs at a time
	mu  sync.Mutex
	now func() time.Time
}

func NewAlertChecker(alerts alertStore, users userLookup, quotes quoteSource,
	fetcher refresher, holdings holdingsSource, eval Evaluator,
	notify notifier, ai commentator) *AlertChecker {
	return &AlertChecker{
		alerts:   alerts,
		users:    users,
		quotes:   quotes,
		fetcher:  fetcher,
		holdings: holdings,
		eval:     eval,
		notify:   notify,
		ai:       ai,
		now:      time.Now,
	}
}

// Start runs the check loop until the context is cancelled.
func (c *AlertChecker) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("🚀 Alert checker started")
		for {
			select {
			case <-ctx.Done():
				log.Info("🛑 Alert checker stopped")
				return
			case <-ticker.C:
				c.CheckOnce(ctx)
			}
		}
	}()
}

// CheckOnce evaluates every active alert against the freshest available
// quotes and fires notifications for the ones that just triggered.
func (c *AlertChecker) CheckOnce(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Debug("🔄 Checking alerts...")
	alerts, err := c.alerts.FindActive(ctx)
	if err != nil {
		log.Errorf("❌ Failed to fetch alerts: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	c.refreshStale(ctx, alerts)

	for _, alert := range alerts {
		c.checkAlert(ctx, alert)
	}
}

// refreshStale fetches quotes for alert tickers whose cached snapshot is
// stale or missing. Fetch failures are logged and left alone: the evaluator
// skips stale data on its own.
func (c *AlertChecker) refreshStale(ctx context.Context, alerts []models.Alert) {
	seen := make(map[string]bool)
	var stale []string
	for _, a := range alerts {
		if seen[a.Ticker] {
			continue
		}
		seen[a.Ticker] = true
		if _, freshness, err := c.quotes.Get(ctx, a.Ticker); err != nil || freshness != FreshnessFresh {
			stale = append(stale, a.Ticker)
		}
	}
	if len(stale) > 0 {
		c.fetcher.FetchBatch(ctx, stale)
	}
}

func (c *AlertChecker) checkAlert(ctx context.Context, alert models.Alert) {
	snap, freshness, err := c.quotes.Get(ctx, alert.Ticker)
	if err != nil {
		log.Errorf("❌ Failed to read quote for %s: %v", alert.Ticker, err)
		return
	}
	if freshness == FreshnessMiss {
		log.Warnf("⚠️ No quote data for ticker %s, skipping alert", alert.Ticker)
		return
	}

	switch c.eval.Evaluate(alert, snap, c.now()) {
	case DecisionFire:
		c.fire(ctx, alert, *snap)
	case DecisionRearm:
		if err := c.alerts.SetLastTriggered(ctx, alert.ID, nil); err != nil {
			log.Errorf("❌ Failed to re-arm alert %s: %v", alert.ID.Hex(), err)
		} else {
			log.Infof("🔁 Alert %s re-armed (condition cleared)", alert.ID.Hex())
		}
	}
}

// fire sends the notification and, only on success, advances the cooldown.
func (c *AlertChecker) fire(ctx context.Context, alert models.Alert, snap models.QuoteSnapshot) {
	triggerID := uuid.NewString()
	log.Infof("🚨 Alert triggered [%s]: %s %s threshold %.2f (price %.2f)",
		triggerID, alert.Ticker, alert.Criterion, alert.Threshold, snap.Price)

	user, err := c.users.FindByID(ctx, alert.UserID)
	if err != nil {
		log.Errorf("❌ Failed to load user %s for alert %s: %v", alert.UserID, alert.ID.Hex(), err)
		return
	}

	holdings, err := c.holdings.Holdings(ctx, alert.UserID)
	if err != nil {
		log.Warnf("⚠️ Could not load holdings for commentary: %v", err)
		holdings = nil
	}

	// Commentary is an enrichment: the AI service degrades to a template
	// internally and never blocks the notification.
	commentary := c.ai.Commentary(ctx, alert, snap, holdings)

	if err := c.notify.Notify(alert, snap, user.Email, commentary); err != nil {
		Metrics.EmailsFailed.Inc()
		log.Errorf("❌ Failed to deliver alert %s [%s], staying armed for retry: %v",
			alert.ID.Hex(), triggerID, err)
		return
	}
	Metrics.EmailsSent.Inc()
	Metrics.AlertsFired.Inc()

	firedAt := c.now().UTC()
	if err := c.alerts.SetLastTriggered(ctx, alert.ID, &firedAt); err != nil {
		// The email went out but the cooldown did not advance; the next
		// cycle may re-send. Loud log so the duplicate has a trace.
		log.Errorf("❌ Delivered alert %s [%s] but failed to advance cooldown: %v",
			alert.ID.Hex(), triggerID, err)
		return
	}
	log.Infof("✅ Alert notification [%s] sent to %s", triggerID, user.Email)
}
