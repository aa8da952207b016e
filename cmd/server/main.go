package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/moneykids/invest-api/internal/auth"
	"github.com/moneykids/invest-api/internal/config"
	"github.com/moneykids/invest-api/internal/database"
	"github.com/moneykids/invest-api/internal/member"
	"github.com/moneykids/invest-api/internal/points"
	"github.com/moneykids/invest-api/internal/stock"
	"github.com/moneykids/invest-api/internal/trading"
	"github.com/moneykids/invest-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Demo credentials registered at startup so the simulation client can
// authenticate without a provisioning step.
var (
	DemoAPIKey    = "demo-api-key"
	DemoAPISecret = "demo-api-secret"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the invest API server with graceful shutdown
// support. It sets up the database, all services, the price snapshot
// processor and the API routes.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Storage.SQLitePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	memberService := member.NewService(db)
	memberHandlers := member.NewGinHandlers(memberService)

	pointsService := points.NewService(db)
	pointsHandlers := points.NewGinHandlers(pointsService)

	stockService := stock.NewService(db)
	stockHandlers := stock.NewGinHandlers(stockService)

	tradingService := trading.NewService(db)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	if err := seedDemoData(authService, memberService, stockService); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed demo data")
	}

	// Create and start the price snapshot processor
	priceProcessor := stock.NewProcessor(
		stockService.GetDB(),
		cfg.Prices.SnapshotInterval,
		cfg.Prices.RetentionDays,
	)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go priceProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, memberHandlers, pointsHandlers, stockHandlers, tradingHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// seedDemoData creates the stock catalog and a demo member bound to the demo
// API credentials. Seeding is idempotent across restarts.
func seedDemoData(
	authService *auth.Service,
	memberService *member.Service,
	stockService *stock.Service,
) error {
	catalog := []struct {
		symbol string
		name   string
	}{
		{"JJF", "Juju Foods"},
		{"KTT", "Kiddy Transit"},
		{"PXL", "Pixel Toys"},
	}
	for _, entry := range catalog {
		if _, err := stockService.CreateStock(entry.symbol, entry.name); err != nil {
			return err
		}
	}

	demo, err := memberService.CreateMember("demo", "Demo Member")
	if errors.Is(err, member.ErrUsernameTaken) {
		// Member survives restarts; look it up for credential binding
		demo, err = memberService.GetMemberByUsername("demo")
	}
	if err != nil {
		return err
	}

	authService.RegisterMemberCredentials(DemoAPIKey, DemoAPISecret, demo.MemberID)
	return nil
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for token issuance
// - Member and stock routes: Public read/registration endpoints
// - Trading routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	memberHandlers *member.GinHandlers,
	pointsHandlers *points.GinHandlers,
	stockHandlers *stock.GinHandlers,
	tradingHandlers *trading.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Member routes
		members := v1.Group("/members")
		{
			members.POST("", memberHandlers.CreateMemberHandler())
			members.GET("/:member_id", memberHandlers.GetMemberHandler())
			members.GET("/:member_id/points", pointsHandlers.GetMovementsHandler())
		}

		// Stock routes
		stocks := v1.Group("/stocks")
		{
			stocks.GET("", stockHandlers.ListStocksHandler())
			stocks.GET("/:stock_id/price", stockHandlers.GetPriceHandler())
			stocks.GET("/:stock_id/prices", stockHandlers.GetPriceHistoryHandler())
		}

		// Trading routes
		tradingGroup := v1.Group("/trading")
		tradingGroup.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			tradingGroup.POST("/:stock_id/buy", tradingHandlers.BuyHandler())
			tradingGroup.POST("/:stock_id/sell", tradingHandlers.SellHandler())
			tradingGroup.GET("/:stock_id/available", tradingHandlers.AvailabilityHandler())
			tradingGroup.GET("/holdings", tradingHandlers.HoldingsHandler())
		}
	}
}
