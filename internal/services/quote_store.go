package services

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/repository"
)

// Freshness describes how usable a cached snapshot is.
type Freshness int

const (
	FreshnessMiss Freshness = iota
	FreshnessFresh
	FreshnessStale
)

func (f Freshness) String() string {
	switch f {
	case FreshnessFresh:
		return "fresh"
	case FreshnessStale:
		return "stale"
	}
	return "miss"
}

type quoteCache interface {
	Find(ctx context.Context, ticker string) (*models.CacheEntry, error)
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	FindAll(ctx context.Context) ([]models.CacheEntry, error)
}

// QuoteStore is the persistent quote cache. Reads never touch the network:
// a miss or a stale snapshot is reported to the caller, who decides whether
// to go through the Fetcher. Stale entries are never evicted, so they stay
// servable when a refresh fails.
type QuoteStore struct {
	repo quoteCache
	ttl  time.Duration
	now  func() time.Time
}

func NewQuoteStore(repo quoteCache, ttl time.Duration) *QuoteStore {
	return &QuoteStore{repo: repo, ttl: ttl, now: time.Now}
}

func (s *QuoteStore) TTL() time.Duration { return s.ttl }

// Get returns the latest snapshot for ticker along with its freshness.
// A stale snapshot is still returned; the caller must not pretend it is
// current.
func (s *QuoteStore) Get(ctx context.Context, ticker string) (*models.QuoteSnapshot, Freshness, error) {
	entry, err := s.repo.Find(ctx, ticker)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Metrics.CacheMisses.Inc()
			return nil, FreshnessMiss, nil
		}
		return nil, FreshnessMiss, err
	}

	if s.now().Sub(entry.Snapshot.FetchedAt) < s.ttl {
		Metrics.CacheHits.Inc()
		return &entry.Snapshot, FreshnessFresh, nil
	}
	Metrics.CacheStale.Inc()
	return &entry.Snapshot, FreshnessStale, nil
}

// Put persists the snapshot before it is considered authoritative. Writes
// are last-write-wins by fetchedAt: an older snapshot never replaces a
// newer one, so concurrent refreshes of the same ticker are safe.
func (s *QuoteStore) Put(ctx context.Context, snapshot models.QuoteSnapshot) error {
	existing, err := s.repo.Find(ctx, snapshot.Ticker)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Snapshot.FetchedAt.After(snapshot.FetchedAt) {
		log.Debugf("quote store: keeping newer snapshot for %s", snapshot.Ticker)
		return nil
	}

	return s.repo.Upsert(ctx, &models.CacheEntry{
		Ticker:   snapshot.Ticker,
		Snapshot: snapshot,
		CachedAt: s.now().UTC(),
	})
}

// IsFresh reports whether a usable (non-stale) snapshot exists for ticker.
func (s *QuoteStore) IsFresh(ctx context.Context, ticker string) bool {
	_, freshness, err := s.Get(ctx, ticker)
	return err == nil && freshness == FreshnessFresh
}

// All returns every cached entry, fresh or stale.
func (s *QuoteStore) All(ctx context.Context) ([]models.CacheEntry, error) {
	return s.repo.FindAll(ctx)
}
