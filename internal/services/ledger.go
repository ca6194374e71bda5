package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"portfolio-tracker/internal/models"
)

type transactionLog interface {
	Append(ctx context.Context, tx *models.Transaction) error
	FindByUser(ctx context.Context, userID string) ([]models.Transaction, error)
}

type userLookup interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

type quoteSource interface {
	Get(ctx context.Context, ticker string) (*models.QuoteSnapshot, Freshness, error)
}

type refresher interface {
	FetchBatch(ctx context.Context, tickers []string) map[string]FetchResult
}

// Ledger executes trades against the append-only transaction log. Cash and
// holdings are always derived by folding the log, never stored, so the
// balance can never drift from the transaction history.
type Ledger struct {
	txs     transactionLog
	users   userLookup
	quotes  quoteSource
	fetcher refresher

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewLedger(txs transactionLog, users userLookup, quotes quoteSource, fetcher refresher) *Ledger {
	return &Ledger{
		txs:       txs,
		users:     users,
		quotes:    quotes,
		fetcher:   fetcher,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// userLock serializes executes per user so concurrent trades cannot reorder
// and break the non-negative holdings invariant. Different users do not
// contend with one another.
func (s *Ledger) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// Execute appends exactly one transaction or nothing at all. The trade
// price comes from the Quote Store; a stale or missing quote forces a
// refresh first, and the trade is rejected with ErrStaleQuote if the
// refresh fails. We never trade on an unknown price.
func (s *Ledger) Execute(ctx context.Context, userID, ticker, side string, quantity float64) (*models.Transaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	if side != models.SideBuy && side != models.SideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}

	// Resolve the price before taking the user lock: the refresh may block
	// on the network and no lock should be held across it.
	price, err := s.currentPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch side {
	case models.SideBuy:
		cash := foldCash(user.StartingBalance, txs)
		cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
		if cash.LessThan(cost) {
			return nil, fmt.Errorf("%w: need %s, have %s",
				models.ErrInsufficientFunds, cost.StringFixed(2), cash.StringFixed(2))
		}
	case models.SideSell:
		held := foldHoldings(txs)[ticker].Quantity
		if held < quantity {
			return nil, fmt.Errorf("%w: own %v, trying to sell %v",
				models.ErrInsufficientHoldings, held, quantity)
		}
	}

	tx := &models.Transaction{
		UserID:    userID,
		Ticker:    ticker,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if err := s.txs.Append(ctx, tx); err != nil {
		return nil, err
	}

	log.Infof("✅ %s %v x %s @ %.2f for user %s", side, quantity, ticker, price, userID)
	return tx, nil
}

// currentPrice returns a fresh price or ErrStaleQuote, never a stale one.
func (s *Ledger) currentPrice(ctx context.Context, ticker string) (float64, error) {
	snap, freshness, err := s.quotes.Get(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if freshness == FreshnessFresh {
		return snap.Price, nil
	}

	log.Infof("🔄 Quote for %s is %s, forcing refresh before trade", ticker, freshness)
	res := s.fetcher.FetchBatch(ctx, []string{ticker})[ticker]
	if res.Err != nil || res.Snapshot == nil {
		return 0, fmt.Errorf("%w: %s", models.ErrStaleQuote, ticker)
	}
	return res.Snapshot.Price, nil
}

// Holdings folds the user's transactions in timestamp order.
func (s *Ledger) Holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	txs, err := s.txs.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byTicker := foldHoldings(txs)

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	holdings := make([]models.Holding, 0, len(tickers))
	for _, t := range tickers {
		holdings = append(holdings, byTicker[t])
	}
	return holdings, nil
}

// CashBalance derives the user's cash from the starting balance and the
// transaction log.
func (s *Ledger) CashBalance(ctx context.Context, userID string) (float64, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	txs, err := s.txs.FindByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return foldCash(user.StartingBalance, txs).InexactFloat64(), nil
}

func (s *Ledger) Transactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.txs.FindByUser(ctx, userID)
}

// HoldingValue is a holding priced at the current snapshot.
type HoldingValue struct {
	models.Holding
	Name           string  `json:"name"`
	CurrentPrice   float64 `json:"currentPrice"`
	Value          float64 `json:"value"`
	CostBasis      float64 `json:"costBasis"`
	UnrealizedPnL  float64 `json:"unrealizedPnl"`
	PnLPercent     float64 `json:"pnlPercent"`
	DailyChangePct float64 `json:"dailyChangePct"`
}

// MissingQuote marks a held ticker whose price could not be used: the
// valuation reports it distinctly instead of silently valuing it at zero.
type MissingQuote struct {
	Ticker    string `json:"ticker"`
	Freshness string `json:"freshness"`
}

type Valuation struct {
	Cash          float64        `json:"cash"`
	StockValue    float64        `json:"stockValue"`
	TotalValue    float64        `json:"totalValue"`
	UnrealizedPnL float64        `json:"unrealizedPnl"`
	Holdings      []HoldingValue `json:"holdings"`
	Missing       []MissingQuote `json:"missing"`
}

// Valuation prices the derived holdings with current Quote Store snapshots.
// It reads the cache only; tickers with a missing or stale quote end up in
// Missing rather than being priced.
func (s *Ledger) Valuation(ctx context.Context, userID string) (*Valuation, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		Cash:     foldCash(user.StartingBalance, txs).InexactFloat64(),
		Holdings: []HoldingValue{},
		Missing:  []MissingQuote{},
	}

	stockValue := decimal.Zero
	pnl := decimal.Zero
	for _, h := range holdings {
		snap, freshness, err := s.quotes.Get(ctx, h.Ticker)
		if err != nil {
			return nil, err
		}
		if freshness != FreshnessFresh {
			v.Missing = append(v.Missing, MissingQuote{Ticker: h.Ticker, Freshness: freshness.String()})
			continue
		}

		qty := decimal.NewFromFloat(h.Quantity)
		value := decimal.NewFromFloat(snap.Price).Mul(qty)
		costBasis := decimal.NewFromFloat(h.AverageCost).Mul(qty)
		unrealized := value.Sub(costBasis)

		pnlPct := 0.0
		if costBasis.IsPositive() {
			pnlPct = unrealized.Div(costBasis).InexactFloat64() * 100
		}

		stockValue = stockValue.Add(value)
		pnl = pnl.Add(unrealized)
		v.Holdings = append(v.Holdings, HoldingValue{
			Holding:        h,
			Name:           snap.Name,
			CurrentPrice:   snap.Price,
			Value:          value.InexactFloat64(),
			CostBasis:      costBasis.InexactFloat64(),
			UnrealizedPnL:  unrealized.InexactFloat64(),
			PnLPercent:     pnlPct,
			DailyChangePct: snap.DailyChangePct,
		})
	}

	v.StockValue = stockValue.InexactFloat64()
	v.UnrealizedPnL = pnl.InexactFloat64()
	v.TotalValue = decimal.NewFromFloat(v.Cash).Add(stockValue).InexactFloat64()
	return v, nil
}

// foldCash replays the transaction log over the starting balance.
func foldCash(startingBalance float64, txs []models.Transaction) decimal.Decimal {
	cash := decimal.NewFromFloat(startingBalance)
	for _, tx := range txs {
		amount := decimal.NewFromFloat(tx.Price).Mul(decimal.NewFromFloat(tx.Quantity))
		if tx.Side == models.SideBuy {
			cash = cash.Sub(amount)
		} else {
			cash = cash.Add(amount)
		}
	}
	return cash
}

// foldHoldings replays the transaction log into per-ticker positions with
// average cost. Sells reduce quantity at unchanged average cost.
func foldHoldings(txs []models.Transaction) map[string]models.Holding {
	type position struct {
		qty decimal.Decimal
		avg decimal.Decimal
	}
	positions := make(map[string]position)

	for _, tx := range txs {
		pos := positions[tx.Ticker]
		qty := decimal.NewFromFloat(tx.Quantity)
		price := decimal.NewFromFloat(tx.Price)

		if tx.Side == models.SideBuy {
			totalCost := pos.avg.Mul(pos.qty).Add(price.Mul(qty))
			pos.qty = pos.qty.Add(qty)
			pos.avg = totalCost.Div(pos.qty)
		} else {
			pos.qty = pos.qty.Sub(qty)
		}

		if pos.qty.IsPositive() {
			positions[tx.Ticker] = pos
		} else {
			delete(positions, tx.Ticker)
		}
	}

	holdings := make(map[string]models.Holding, len(positions))
	for ticker, pos := range positions {
		holdings[ticker] = models.Holding{
			Ticker:      ticker,
			Quantity:    pos.qty.InexactFloat64(),
			AverageCost: pos.avg.InexactFloat64(),
		}
	}
	return holdings
}
