package models

import (
	"errors"
	"fmt"
)

// User-input rejections and quote problems surfaced by the ledger and
// evaluator. These are returned to the caller directly, never retried.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrStaleQuote           = errors.New("quote is stale and could not be refreshed")
	ErrUnknownTicker        = errors.New("unknown ticker")
	ErrTransport            = errors.New("notification transport failed")
)

// FetchError is a per-ticker failure from the market-data provider.
// Transient failures (timeouts, 429, 5xx) were already retried with backoff
// before this error surfaced; a non-transient one means retrying is useless.
type FetchError struct {
	Ticker    string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.Ticker, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a retryable fetch failure.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}
