package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Alert criteria
const (
	CriterionPriceAbove         = "price_above"
	CriterionPriceBelow         = "price_below"
	CriterionPercentChangeDaily = "percent_change_daily"
	CriterionVolumeSpike        = "volume_spike"
	CriterionRSIOverbought      = "rsi_overbought"
	CriterionRSIOversold        = "rsi_oversold"
)

// QuoteSnapshot is one observation of a ticker. Snapshots are immutable;
// a refresh writes a new snapshot, it never mutates the previous one.
type QuoteSnapshot struct {
	Ticker         string    `bson:"ticker" json:"ticker"`
	Name           string    `bson:"name" json:"name"`
	Price          float64   `bson:"price" json:"price"`
	DailyChangePct float64   `bson:"daily_change_pct" json:"dailyChangePct"`
	Volume         int64     `bson:"volume" json:"volume"`
	PERatio        float64   `bson:"pe_ratio" json:"peRatio"`
	Beta           float64   `bson:"beta" json:"beta"`
	RSI            float64   `bson:"rsi" json:"rsi"`
	FetchedAt      time.Time `bson:"fetched_at" json:"fetchedAt"`
}

// CacheEntry is the quote_cache document: the latest snapshot per ticker.
// Entries expire logically after the TTL but are never deleted, so a stale
// snapshot stays servable when a refresh fails.
type CacheEntry struct {
	Ticker   string        `bson:"ticker" json:"ticker"`
	Snapshot QuoteSnapshot `bson:"snapshot" json:"snapshot"`
	CachedAt time.Time     `bson:"cached_at" json:"cachedAt"`
}

// Transaction is one executed trade. The transactions collection is
// append-only: documents are never updated or deleted, and cash balance and
// holdings are always derived by folding them in timestamp order.
type Transaction struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"userId"`
	Ticker    string             `bson:"ticker" json:"ticker"`
	Side      string             `bson:"side" json:"side"`
	Quantity  float64            `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Holding is derived from a user's transactions, never stored.
type Holding struct {
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"`
	AverageCost float64 `json:"averageCost"`
}

// Alert is a user-defined threshold rule. LastTriggeredAt is the cooldown
// state: nil means armed, non-nil means a notification was delivered at that
// time and the alert stays quiet until the cooldown elapses.
type Alert struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          string             `bson:"user_id" json:"userId"`
	Ticker          string             `bson:"ticker" json:"ticker"`
	Criterion       string             `bson:"criterion" json:"criterion"`
	Threshold       float64            `bson:"threshold" json:"threshold"`
	Signed          bool               `bson:"signed" json:"signed"`
	Active          bool               `bson:"active" json:"active"`
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
	LastTriggeredAt *time.Time         `bson:"last_triggered_at,omitempty" json:"lastTriggeredAt,omitempty"`
}

// AIResponse is the ai_cache document, keyed by the hash of the prompt.
type AIResponse struct {
	QueryHash string    `bson:"query_hash" json:"queryHash"`
	Response  string    `bson:"response" json:"response"`
	CachedAt  time.Time `bson:"cached_at" json:"cachedAt"`
}

// ValidCriterion reports whether the criterion name is one we evaluate.
func ValidCriterion(c string) bool {
	switch c {
	case CriterionPriceAbove, CriterionPriceBelow, CriterionPercentChangeDaily,
		CriterionVolumeSpike, CriterionRSIOverbought, CriterionRSIOversold:
		return true
	}
	return false
}
