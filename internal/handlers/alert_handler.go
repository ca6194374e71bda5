package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/repository"
)

type AlertHandler struct {
	alerts *repository.AlertRepository
}

func NewAlertHandler(alerts *repository.AlertRepository) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

type CreateAlertRequest struct {
	Ticker    string  `json:"ticker" binding:"required"`
	Criterion string  `json:"criterion" binding:"required"`
	Threshold float64 `json:"threshold"`
	Signed    bool    `json:"signed"`
}

func (h *AlertHandler) CreateAlert(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if !models.ValidCriterion(req.Criterion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown criterion: " + req.Criterion})
		return
	}

	alert := &models.Alert{
		UserID:    userID.(string),
		Ticker:    req.Ticker,
		Criterion: req.Criterion,
		Threshold: req.Threshold,
		Signed:    req.Signed,
		Active:    true,
	}
	if err := h.alerts.Insert(c.Request.Context(), alert); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Alert created",
		"alert":   alert,
	})
}

func (h *AlertHandler) GetAlerts(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	alerts, err := h.alerts.FindByUser(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *AlertHandler) DeleteAlert(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	if err := h.alerts.Delete(c.Request.Context(), id, userID.(string)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted"})
}
