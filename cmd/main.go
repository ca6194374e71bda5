package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"portfolio-tracker/config"
	"portfolio-tracker/internal/handlers"
	"portfolio-tracker/internal/repository"
	"portfolio-tracker/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

func setupLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, relying on environment")
	}
	config.InitConfig()
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.ConnectDB()
	defer config.DisconnectDB()

	// Repositories
	userRepo := repository.NewUserRepository()
	txRepo := repository.NewTransactionRepository()
	alertRepo := repository.NewAlertRepository()
	quoteRepo := repository.NewQuoteRepository()
	aiCacheRepo := repository.NewAICacheRepository()

	// Services
	store := services.NewQuoteStore(quoteRepo, config.GetDuration("quote_ttl"))
	fetcher := services.NewFetcher(
		config.GetString("alpha_vantage_api_key"),
		config.GetFloat("fetch_rate_limit"),
		store,
	)
	ledger := services.NewLedger(txRepo, userRepo, store, fetcher)
	authService := services.NewAuthService(userRepo, config.GetFloat("starting_balance"))
	aiService := services.NewAIService(ctx,
		config.GetString("gemini_api_key"),
		config.GetString("gemini_model"),
		aiCacheRepo,
		config.GetDuration("ai_cache_ttl"),
	)
	emailNotifier := services.NewEmailNotifier(
		config.GetString("smtp_host"),
		config.GetInt("smtp_port"),
		config.GetString("smtp_user"),
		config.GetString("smtp_password"),
	)
	evaluator := services.Evaluator{
		Cooldown:     config.GetDuration("alert_cooldown"),
		QuoteTTL:     config.GetDuration("quote_ttl"),
		ResetOnClear: config.GetBool("alert_reset_on_clear"),
	}
	checker := services.NewAlertChecker(alertRepo, userRepo, store, fetcher, ledger,
		evaluator, emailNotifier, aiService)

	hub := services.NewQuoteHub()
	go hub.Run()

	// Background workers
	checker.Start(ctx, config.GetDuration("alert_poll_interval"))
	go refreshUniverse(ctx, fetcher, hub)

	// HTTP
	if !config.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	authHandler := handlers.NewAuthHandler(authService, config.GetString("jwt_secret"))
	marketHandler := handlers.NewMarketHandler(store, fetcher, aiService)
	portfolioHandler := handlers.NewPortfolioHandler(ledger)
	alertHandler := handlers.NewAlertHandler(alertRepo)
	authMiddleware := authHandler.AuthMiddleware()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK", "message": "Portfolio Tracker API is running"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Market data
	router.GET("/api/quotes", marketHandler.ListQuotes)
	router.GET("/api/quotes/:ticker", marketHandler.GetQuote)

	// Quote stream
	router.GET("/ws", func(c *gin.Context) {
		username := c.Query("username")
		if username == "" {
			username = "Anonymous"
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Errorf("Failed to upgrade connection: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to upgrade to WebSocket"})
			return
		}

		client := hub.RegisterClient(conn, username)
		go client.WritePump()
		go client.ReadPump()
	})

	// Auth
	router.POST("/api/auth/register", authHandler.Register)
	router.POST("/api/auth/login", authHandler.Login)
	router.GET("/api/auth/me", authMiddleware, authHandler.GetCurrentUser)

	// Protected portfolio routes
	router.POST("/api/trade", authMiddleware, portfolioHandler.Trade)
	router.GET("/api/portfolio", authMiddleware, portfolioHandler.GetPortfolio)
	router.GET("/api/transactions", authMiddleware, portfolioHandler.GetTransactions)

	// Protected alert routes
	router.POST("/api/alerts", authMiddleware, alertHandler.CreateAlert)
	router.GET("/api/alerts", authMiddleware, alertHandler.GetAlerts)
	router.DELETE("/api/alerts/:id", authMiddleware, alertHandler.DeleteAlert)

	// Insights
	router.GET("/api/insights/:ticker", authMiddleware, marketHandler.GetInsight)

	srv := &http.Server{
		Addr:    ":" + config.GetString("port"),
		Handler: router,
	}
	go func() {
		log.Infof("🚀 Portfolio Tracker API running on port %s", config.GetString("port"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}

// refreshUniverse fetches the tracked tickers on startup and then again on
// every refresh interval, broadcasting fresh snapshots to the quote stream.
// Stale cache entries are left in place when a fetch fails.
func refreshUniverse(ctx context.Context, fetcher *services.Fetcher, hub *services.QuoteHub) {
	// Small delay so the server is up before the first batch goes out.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	refresh := func() {
		log.Infof("📈 Refreshing %d tracked tickers...", len(services.TrackedTickers))
		results := fetcher.FetchBatch(ctx, services.TrackedTickers)

		ok := 0
		for _, res := range results {
			if res.Err == nil && res.Snapshot != nil {
				hub.BroadcastSnapshot(*res.Snapshot)
				ok++
			}
		}
		log.Infof("✅ Universe refresh completed: %d/%d tickers", ok, len(results))
	}

	refresh()
	ticker := time.NewTicker(config.GetDuration("refresh_interval"))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
