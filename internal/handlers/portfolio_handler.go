package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/services"
)

type PortfolioHandler struct {
	ledger *services.Ledger
}

func NewPortfolioHandler(ledger *services.Ledger) *PortfolioHandler {
	return &PortfolioHandler{ledger: ledger}
}

type TradeRequest struct {
	Ticker   string  `json:"ticker" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

func (h *PortfolioHandler) Trade(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	side := strings.ToUpper(req.Side)
	tx, err := h.ledger.Execute(c.Request.Context(), userID.(string), req.Ticker, side, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientFunds),
			errors.Is(err, models.ErrInsufficientHoldings):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrStaleQuote):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Trade executed successfully",
		"transaction": tx,
	})
}

func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	valuation, err := h.ledger.Valuation(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to value portfolio: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, valuation)
}

func (h *PortfolioHandler) GetTransactions(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	txs, err := h.ledger.Transactions(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
