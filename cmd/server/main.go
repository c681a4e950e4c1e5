package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/dca-api/internal/auth"
	"github.com/ksred/dca-api/internal/custody"
	"github.com/ksred/dca-api/internal/database"
	"github.com/ksred/dca-api/internal/dca"
	"github.com/ksred/dca-api/internal/engine"
	"github.com/ksred/dca-api/internal/exchange"
	"github.com/ksred/dca-api/internal/guard"
	"github.com/ksred/dca-api/internal/scheduler"
	"github.com/ksred/dca-api/pkg/config"
	"github.com/ksred/dca-api/pkg/middleware"

	"github.com/gin-gonic/gin"
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

// main initializes and runs the DCA engine server with graceful shutdown
// support. The router address is the one provisioning-time parameter: it is
// consumed once here and bound immutably into the exchange collaborator.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	ledger := custody.NewLedger(db)

	dcaService := dca.NewService(db, ledger)
	dcaHandlers := dca.NewGinHandlers(dcaService)

	dexRouter := exchange.NewRouter(cfg.RouterAddress)
	zlog.Info().Str("router_address", dexRouter.Address()).Msg("bound to exchange router")

	priceGuard := guard.NewPriceGuard(dexRouter)
	executionEngine := engine.New(dcaService.Database(), priceGuard, dexRouter, cfg.SlippageBps, cfg.SwapTimeout)

	sched := scheduler.New(dcaService.Database(), executionEngine, cfg.WorkerCount)
	schedulerHandlers := scheduler.NewGinHandlers(sched, executionEngine)

	// Create and start the scheduling processor
	processor := scheduler.NewProcessor(sched, cfg.TickInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, dcaHandlers, schedulerHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
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

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: Protected by JWT authentication, owner-scoped
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	dcaHandlers *dca.GinHandlers,
	schedulerHandlers *scheduler.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", dcaHandlers.CreateOrderHandler())
			orders.GET("/:order_id", dcaHandlers.GetOrderHandler())
			orders.GET("/:order_id/executions", dcaHandlers.ListExecutionsHandler())
			orders.POST("/:order_id/fund", dcaHandlers.FundOrderHandler())
			orders.POST("/:order_id/cancel", dcaHandlers.CancelOrderHandler())
			orders.POST("/:order_id/withdraw", dcaHandlers.WithdrawHandler())
		}

		// Balance routes
		balances := v1.Group("/balances")
		balances.Use(middleware.JWTAuth(jwtSecret))
		{
			balances.GET("/:asset", dcaHandlers.BalanceHandler())
			balances.POST("/:asset/deposit", dcaHandlers.DepositHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/tick", schedulerHandlers.TickHandler())
			internal.POST("/execution/:order_id", schedulerHandlers.ExecuteOrderHandler())
		}
	}
}
