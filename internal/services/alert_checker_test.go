package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-tracker/internal/models"
)

type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) FindActive(ctx context.Context) ([]models.Alert, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Alert), args.Error(1)
}

func (m *MockAlertStore) SetLastTriggered(ctx context.Context, id primitive.ObjectID, at *time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockHoldingsSource struct {
	mock.Mock
}

func (m *MockHoldingsSource) Holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Holding), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(alert models.Alert, snap models.QuoteSnapshot, toEmail, commentary string) error {
	args := m.Called(alert, snap, toEmail, commentary)
	return args.Error(0)
}

type MockCommentator struct {
	mock.Mock
}

func (m *MockCommentator) Commentary(ctx context.Context, alert models.Alert, snap models.QuoteSnapshot, holdings []models.Holding) string {
	args := m.Called(ctx, alert, snap, holdings)
	return args.String(0)
}

type checkerFixture struct {
	alerts   *MockAlertStore
	users    *MockUserLookup
	quotes   *MockQuoteSource
	fetcher  *MockRefresher
	holdings *MockHoldingsSource
	notify   *MockNotifier
	ai       *MockCommentator
	checker  *AlertChecker
	now      time.Time
}

func newCheckerFixture() *checkerFixture {
	f := &checkerFixture{
		alerts:   new(MockAlertStore),
		users:    new(MockUserLookup),
		quotes:   new(MockQuoteSource),
		fetcher:  new(MockRefresher),
		holdings: new(MockHoldingsSource),
		notify:   new(MockNotifier),
		ai:       new(MockCommentator),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	eval := Evaluator{Cooldown: 24 * time.Hour, QuoteTTL: 24 * time.Hour, ResetOnClear: true}
	f.checker = NewAlertChecker(f.alerts, f.users, f.quotes, f.fetcher, f.holdings, eval, f.notify, f.ai)
	f.checker.now = func() time.Time { return f.now }
	return f
}

func (f *checkerFixture) armedAlert(ticker string, threshold float64) models.Alert {
	return models.Alert{
		ID:        primitive.NewObjectID(),
		UserID:    "user-1",
		Ticker:    ticker,
		Criterion: models.CriterionPriceAbove,
		Threshold: threshold,
		Active:    true,
	}
}

func (f *checkerFixture) freshSnap(ticker string, price float64) *models.QuoteSnapshot {
	return &models.QuoteSnapshot{Ticker: ticker, Price: price, FetchedAt: f.now.Add(-time.Minute)}
}

func TestCheckOnceFiresAndAdvancesCooldown(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("0700.HK", 300)

	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "0700.HK").Return(f.freshSnap("0700.HK", 320), FreshnessFresh, nil)
	f.users.On("FindByID", mock.Anything, "user-1").Return(&models.User{Email: "u@example.com"}, nil)
	f.holdings.On("Holdings", mock.Anything, "user-1").Return([]models.Holding{}, nil)
	f.ai.On("Commentary", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("looks strong")
	f.notify.On("Notify", mock.Anything, mock.Anything, "u@example.com", "looks strong").Return(nil)
	fired := f.now.UTC()
	f.alerts.On("SetLastTriggered", mock.Anything, alert.ID, &fired).Return(nil)

	f.checker.CheckOnce(context.Background())

	f.notify.AssertNumberOfCalls(t, "Notify", 1)
	f.alerts.AssertCalled(t, "SetLastTriggered", mock.Anything, alert.ID, &fired)
}

// A failed delivery must leave the alert armed: the cooldown timestamp only
// advances after the notifier confirms.
func TestCheckOnceDeliveryFailureKeepsAlertArmed(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("0700.HK", 300)

	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "0700.HK").Return(f.freshSnap("0700.HK", 320), FreshnessFresh, nil)
	f.users.On("FindByID", mock.Anything, "user-1").Return(&models.User{Email: "u@example.com"}, nil)
	f.holdings.On("Holdings", mock.Anything, "user-1").Return([]models.Holding{}, nil)
	f.ai.On("Commentary", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("")
	f.notify.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp: connection refused"))

	f.checker.CheckOnce(context.Background())

	f.alerts.AssertNotCalled(t, "SetLastTriggered", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOnceSkipsAlertsInCooldown(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("0700.HK", 300)
	triggered := f.now.Add(-time.Hour)
	alert.LastTriggeredAt = &triggered

	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "0700.HK").Return(f.freshSnap("0700.HK", 320), FreshnessFresh, nil)

	f.checker.CheckOnce(context.Background())

	f.notify.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOnceRearmsWhenConditionClears(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("0700.HK", 300)
	triggered := f.now.Add(-time.Hour)
	alert.LastTriggeredAt = &triggered

	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "0700.HK").Return(f.freshSnap("0700.HK", 290), FreshnessFresh, nil)
	f.alerts.On("SetLastTriggered", mock.Anything, alert.ID, (*time.Time)(nil)).Return(nil)

	f.checker.CheckOnce(context.Background())

	f.alerts.AssertCalled(t, "SetLastTriggered", mock.Anything, alert.ID, (*time.Time)(nil))
	f.notify.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOnceRefreshesStaleTickers(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("0005.HK", 70)

	staleSnap := &models.QuoteSnapshot{Ticker: "0005.HK", Price: 60, FetchedAt: f.now.Add(-48 * time.Hour)}
	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "0005.HK").Return(staleSnap, FreshnessStale, nil)
	f.fetcher.On("FetchBatch", mock.Anything, []string{"0005.HK"}).Return(map[string]FetchResult{
		"0005.HK": {Err: errors.New("upstream down")},
	})

	f.checker.CheckOnce(context.Background())

	// The refresh failed, so the snapshot is still stale and the alert must
	// stay quiet rather than fire on old data.
	f.fetcher.AssertCalled(t, "FetchBatch", mock.Anything, []string{"0005.HK"})
	f.notify.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOnceSkipsTickersWithNoData(t *testing.T) {
	f := newCheckerFixture()
	alert := f.armedAlert("9999.HK", 10)

	f.alerts.On("FindActive", mock.Anything).Return([]models.Alert{alert}, nil)
	f.quotes.On("Get", mock.Anything, "9999.HK").Return(nil, FreshnessMiss, nil)
	f.fetcher.On("FetchBatch", mock.Anything, []string{"9999.HK"}).Return(map[string]FetchResult{
		"9999.HK": {Err: errors.New("no data")},
	})

	f.checker.CheckOnce(context.Background())

	f.notify.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
