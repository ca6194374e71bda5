package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"portfolio-tracker/internal/models"
)

const alphaVantageURL = "https://www.alphavantage.co/query"

// FetchResult is the per-ticker outcome of a batch fetch. Exactly one of
// Snapshot and Err is set.
type FetchResult struct {
	Snapshot *models.QuoteSnapshot
	Err      error
}

type admitter interface {
	Wait(ctx context.Context) error
}

// Fetcher retrieves daily quote data from Alpha Vantage. All outbound
// requests, including retries, pass through a shared rate limiter so the
// global ceiling holds regardless of batch size: dispatch is parallel,
// admission is serialized.
type Fetcher struct {
	apiKey      string
	client      *http.Client
	limiter     admitter
	store       *QuoteStore
	baseURL     string
	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
}

func NewFetcher(apiKey string, requestsPerSecond float64, store *QuoteStore) *Fetcher {
	return &Fetcher{
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		store:       store,
		baseURL:     alphaVantageURL,
		maxAttempts: 5,
		backoffBase: time.Second,
		sleep:       time.Sleep,
	}
}

// FetchBatch retrieves snapshots for every ticker in the set. One ticker's
// failure never affects the others, and the call never fails atomically:
// whatever was fetched before a cancellation is kept and returned.
// Successful snapshots are persisted through the Quote Store before they
// appear in the result.
func (f *Fetcher) FetchBatch(ctx context.Context, tickers []string) map[string]FetchResult {
	results := make(map[string]FetchResult, len(tickers))
	seen := make(map[string]bool, len(tickers))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			snap, err := f.fetchOne(ctx, ticker)
			if err == nil {
				if perr := f.store.Put(ctx, *snap); perr != nil {
					err = errors.Wrapf(perr, "persist snapshot for %s", ticker)
					snap = nil
				}
			}
			if err != nil {
				kind := "fatal"
				if models.IsTransientFetch(err) {
					kind = "transient"
				}
				Metrics.FetchFailures.WithLabelValues(kind).Inc()
				log.Warnf("⚠️ Fetch failed for %s: %v", ticker, err)
			}

			mu.Lock()
			results[ticker] = FetchResult{Snapshot: snap, Err: err}
			mu.Unlock()
		}(t)
	}

	wg.Wait()
	return results
}

// fetchOne retries transient failures with exponential backoff before
// surfacing the error. Fatal errors surface immediately.
func (f *Fetcher) fetchOne(ctx context.Context, ticker string) (*models.QuoteSnapshot, error) {
	var lastErr error
	backoff := f.backoffBase

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &models.FetchError{Ticker: ticker, Transient: true, Err: err}
		}

		snap, err := f.query(ctx, ticker)
		if err == nil {
			return snap, nil
		}
		if !models.IsTransientFetch(err) {
			return nil, err
		}

		lastErr = err
		if attempt < f.maxAttempts {
			log.Warnf("⚠️ Transient error fetching %s (attempt %d/%d), retrying in %s: %v",
				ticker, attempt, f.maxAttempts, backoff, err)
			f.sleep(backoff)
			backoff *= 2
		}
	}
	return nil, lastErr
}

type alphaVantageResponse struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
}

func (f *Fetcher) query(ctx context.Context, ticker string) (*models.QuoteSnapshot, error) {
	Metrics.FetchAttempts.Inc()

	url := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=compact&apikey=%s",
		f.baseURL, ticker, f.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.FetchError{Ticker: ticker, Transient: false, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{Ticker: ticker, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &models.FetchError{Ticker: ticker, Transient: true,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &models.FetchError{Ticker: ticker, Transient: false,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var payload alphaVantageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &models.FetchError{Ticker: ticker, Transient: false,
			Err: errors.Wrap(err, "failed to parse JSON")}
	}

	// Alpha Vantage reports rate limiting as a 200 with a "Note".
	if payload.Note != "" || strings.Contains(payload.Information, "rate limit") {
		return nil, &models.FetchError{Ticker: ticker, Transient: true,
			Err: fmt.Errorf("API rate limit exceeded")}
	}
	if payload.ErrorMessage != "" {
		return nil, &models.FetchError{Ticker: ticker, Transient: false,
			Err: errors.Wrap(models.ErrUnknownTicker, payload.ErrorMessage)}
	}
	if len(payload.TimeSeries) == 0 {
		return nil, &models.FetchError{Ticker: ticker, Transient: false,
			Err: fmt.Errorf("no data returned for symbol %s", ticker)}
	}

	snap, err := snapshotFromSeries(ticker, payload.TimeSeries)
	if err != nil {
		return nil, &models.FetchError{Ticker: ticker, Transient: false, Err: err}
	}
	return snap, nil
}

// snapshotFromSeries reduces the daily series to a single snapshot:
// last close, change vs the previous close, last volume and RSI(14).
// P/E and beta are not in the free endpoint, so they keep their defaults.
func snapshotFromSeries(ticker string, series map[string]map[string]string) (*models.QuoteSnapshot, error) {
	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	closes := make([]float64, 0, len(dates))
	for _, d := range dates {
		c, err := parsePrice(series[d]["4. close"])
		if err != nil {
			return nil, errors.Wrapf(err, "bad close for %s on %s", ticker, d)
		}
		closes = append(closes, c)
	}

	last := closes[len(closes)-1]
	prev := last
	if len(closes) > 1 {
		prev = closes[len(closes)-2]
	}
	changePct := 0.0
	if prev > 0 {
		changePct = (last - prev) / prev * 100
	}

	volume, err := parseVolume(series[dates[len(dates)-1]]["5. volume"])
	if err != nil {
		volume = 0
	}

	return &models.QuoteSnapshot{
		Ticker:         ticker,
		Name:           StockName(ticker),
		Price:          last,
		DailyChangePct: changePct,
		Volume:         volume,
		PERatio:        0,
		Beta:           1.0,
		RSI:            rsi14(closes),
		FetchedAt:      time.Now().UTC(),
	}, nil
}

// rsi14 computes the 14-period RSI with Wilder's smoothing. With too few
// data points it returns the neutral 50 so threshold alerts stay quiet.
func rsi14(closes []float64) float64 {
	const period = 14
	if len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/period, loss/period

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(period-1) + g) / period
		avgLoss = (avgLoss*(period-1) + l) / period
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func parsePrice(priceStr string) (float64, error) {
	cleaned := strings.TrimSpace(priceStr)
	if cleaned == "" {
		return 0, fmt.Errorf("empty price string")
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse '%s' as float: %v", cleaned, err)
	}
	return price, nil
}

func parseVolume(volumeStr string) (int64, error) {
	cleaned := strings.TrimSpace(volumeStr)
	if cleaned == "" {
		return 0, fmt.Errorf("empty volume string")
	}
	return strconv.ParseInt(cleaned, 10, 64)
}
