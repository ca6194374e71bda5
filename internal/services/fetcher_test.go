package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/repository"
)

// countingAdmitter admits immediately and counts how many requests passed
// through it.
type countingAdmitter struct {
	calls int64
}

func (a *countingAdmitter) Wait(ctx context.Context) error {
	atomic.AddInt64(&a.calls, 1)
	return nil
}

func newTestFetcher(baseURL string) (*Fetcher, *countingAdmitter, *[]time.Duration) {
	repo := new(MockQuoteCache)
	repo.On("Find", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	admitted := &countingAdmitter{}
	sleeps := &[]time.Duration{}

	f := NewFetcher("demo", 100, NewQuoteStore(repo, 24*time.Hour))
	f.baseURL = baseURL
	f.limiter = admitted
	f.backoffBase = 10 * time.Millisecond
	f.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return f, admitted, sleeps
}

func dailySeriesJSON(closes ...float64) string {
	series := ""
	for i, c := range closes {
		if i > 0 {
			series += ","
		}
		date := fmt.Sprintf("2025-05-%02d", i+1)
		series += fmt.Sprintf(`%q: {"4. close": "%.2f", "5. volume": "1500000"}`, date, c)
	}
	return fmt.Sprintf(`{"Time Series (Daily)": {%s}}`, series)
}

func TestFetchBatchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		fmt.Fprint(w, dailySeriesJSON(100, 110))
	}))
	defer srv.Close()

	f, admitted, _ := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK", "0005.HK"})

	require.Len(t, results, 2)
	for _, ticker := range []string{"0700.HK", "0005.HK"} {
		res := results[ticker]
		require.NoError(t, res.Err)
		require.NotNil(t, res.Snapshot)
		assert.Equal(t, 110.0, res.Snapshot.Price)
		assert.InDelta(t, 10.0, res.Snapshot.DailyChangePct, 1e-9)
		assert.Equal(t, int64(1500000), res.Snapshot.Volume)
	}
	assert.Equal(t, int64(2), atomic.LoadInt64(&admitted.calls),
		"every request must pass through the limiter")
}

func TestFetchBatchDeduplicatesTickers(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		fmt.Fprint(w, dailySeriesJSON(100, 101))
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK", "0700.HK", "0700.HK"})

	assert.Len(t, results, 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&requests))
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, dailySeriesJSON(100, 105))
	}))
	defer srv.Close()

	f, _, sleeps := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK"})

	res := results["0700.HK"]
	require.NoError(t, res.Err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))

	// Backoff doubles between attempts.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 10*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 20*time.Millisecond, (*sleeps)[1])
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK"})

	res := results["0700.HK"]
	require.Error(t, res.Err)
	assert.True(t, models.IsTransientFetch(res.Err))
	assert.Equal(t, int64(5), atomic.LoadInt64(&attempts))
}

func TestFetchFatalErrorDoesNotRetry(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		fmt.Fprint(w, `{"Error Message": "Invalid API call"}`)
	}))
	defer srv.Close()

	f, _, sleeps := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"BOGUS.HK"})

	res := results["BOGUS.HK"]
	require.Error(t, res.Err)
	assert.False(t, models.IsTransientFetch(res.Err))
	assert.Equal(t, int64(1), atomic.LoadInt64(&attempts))
	assert.Empty(t, *sleeps)
}

func TestFetchTreatsRateLimitNoteAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	}))
	defer srv.Close()

	f, _, sleeps := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK"})

	require.Error(t, results["0700.HK"].Err)
	assert.True(t, models.IsTransientFetch(results["0700.HK"].Err))
	assert.Len(t, *sleeps, 4, "transient 200-with-Note responses are retried")
}

// One ticker failing must not poison the rest of the batch.
func TestFetchBatchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD.HK" {
			fmt.Fprint(w, `{"Error Message": "Invalid API call"}`)
			return
		}
		fmt.Fprint(w, dailySeriesJSON(100, 102))
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.URL)
	results := f.FetchBatch(context.Background(), []string{"0700.HK", "BAD.HK", "0005.HK"})

	require.Len(t, results, 3)
	assert.NoError(t, results["0700.HK"].Err)
	assert.NoError(t, results["0005.HK"].Err)
	assert.Error(t, results["BAD.HK"].Err)
}

// With the real limiter, dispatch is parallel but admission is serialized:
// n requests at r per second cannot complete faster than (n-1)/r.
func TestFetchBatchPacing(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		fmt.Fprint(w, dailySeriesJSON(100, 101))
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(srv.URL)
	f.limiter = rate.NewLimiter(10, 1)

	start := time.Now()
	f.FetchBatch(context.Background(), []string{"A.HK", "B.HK", "C.HK", "D.HK"})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond,
		"4 requests at 10 req/s need roughly 300ms of pacing")
	assert.Len(t, stamps, 4)
}

func TestRSI14(t *testing.T) {
	// Too few points: neutral.
	assert.Equal(t, 50.0, rsi14([]float64{100, 101, 102}))

	// Monotonic gains: fully overbought.
	up := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	assert.Equal(t, 100.0, rsi14(up))

	// Monotonic losses: fully oversold.
	down := make([]float64, 20)
	for i := range down {
		down[i] = 100 - float64(i)
	}
	assert.Equal(t, 0.0, rsi14(down))

	// Mixed series stays inside the band.
	mixed := make([]float64, 30)
	for i := range mixed {
		if i%2 == 0 {
			mixed[i] = 100 + float64(i)/2
		} else {
			mixed[i] = 100 - float64(i)/3
		}
	}
	got := rsi14(mixed)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 100.0)
}
