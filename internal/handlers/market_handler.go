package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-tracker/internal/services"
)

type MarketHandler struct {
	store   *services.QuoteStore
	fetcher *services.Fetcher
	ai      *services.AIService
}

func NewMarketHandler(store *services.QuoteStore, fetcher *services.Fetcher, ai *services.AIService) *MarketHandler {
	return &MarketHandler{store: store, fetcher: fetcher, ai: ai}
}

// GetQuote serves the cached snapshot for a ticker, with its freshness.
// A stale snapshot is still served (serve-stale), flagged as such; only a
// complete miss with a failed fetch is an error. ?refresh=1 forces a fetch.
func (h *MarketHandler) GetQuote(c *gin.Context) {
	ticker := c.Param("ticker")
	ctx := c.Request.Context()

	snap, freshness, err := h.store.Get(ctx, ticker)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if freshness != services.FreshnessFresh || c.Query("refresh") == "1" {
		res := h.fetcher.FetchBatch(ctx, []string{ticker})[ticker]
		if res.Err == nil && res.Snapshot != nil {
			snap, freshness = res.Snapshot, services.FreshnessFresh
		} else if snap == nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "no quote data available for " + ticker})
			return
		}
		// refresh failed but a stale snapshot exists: serve it, flagged stale
	}

	c.JSON(http.StatusOK, gin.H{
		"quote":     snap,
		"freshness": freshness.String(),
	})
}

// ListQuotes returns every cached snapshot with its age.
func (h *MarketHandler) ListQuotes(c *gin.Context) {
	entries, err := h.store.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": entries})
}

// GetInsight returns AI commentary on a ticker. Commentary is served even
// on a stale snapshot; only a miss is an error.
func (h *MarketHandler) GetInsight(c *gin.Context) {
	ticker := c.Param("ticker")
	ctx := c.Request.Context()

	snap, freshness, err := h.store.Get(ctx, ticker)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if freshness == services.FreshnessMiss {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote data for " + ticker})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticker":    ticker,
		"insight":   h.ai.Insight(ctx, *snap),
		"freshness": freshness.String(),
	})
}
