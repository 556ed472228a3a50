package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"lootbox-backend/internal/config"
	"lootbox-backend/internal/handlers"
	"lootbox-backend/internal/middleware"
	"lootbox-backend/internal/services"
	"lootbox-backend/internal/sui"
	"lootbox-backend/internal/telemetry"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Env == "production" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Str("service", "lootbox-backend").Logger()
}

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		bootLogger.Info().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "lootbox-backend", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)
	clock := clockwork.NewRealClock()

	ledger := sui.NewClient(cfg.SuiRPCURL, nil)
	signer := sui.NewSignerClient(cfg.SignerURL, nil)

	hub := handlers.NewWebSocketHub(logger)
	go hub.Run(ctx)

	notifications := services.NewNotifications(clock, cfg.Opening.NotificationTTL, hub)

	readModels := services.NewReadModels(ledger, redisService, services.ReadModelConfig{
		CoinType:    cfg.CoinType,
		RewardType:  cfg.GameItemType(),
		LootBoxType: cfg.LootBoxType(),
	}, clock, logger)

	resolver := services.NewConfirmationResolver(ledger, services.ResolverConfig{
		RewardType: cfg.GameItemType(),
		Retry: services.RetryPolicy{
			MaxRetries: cfg.Opening.ConfirmRetries,
			Delay:      cfg.Opening.ConfirmRetryDelay,
			Clock:      clock,
		},
		Logger: logger,
	})

	openers := services.NewOpeners(services.NewOpenerConfig(cfg), services.OpenerDeps{
		Submitter:   signer,
		Ledger:      ledger,
		Resolver:    resolver,
		Refresher:   readModels,
		Notifier:    notifications,
		Broadcaster: hub,
		History:     redisService,
		Clock:       clock,
		Logger:      logger,
	})

	go func() {
		ticker := clock.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				removed := openers.CleanupIdle()
				notifications.CleanupExpired()
				logger.Debug().Int("openers_removed", removed).Msg("cleaned up idle state")
			}
		}
	}()

	purchaser := services.NewPurchaser(services.NewPurchaseConfig(cfg), signer, readModels, notifications, clock, logger)

	authHandler := handlers.NewAuthHandler(redisService, jwtService, logger)
	userHandler := handlers.NewUserHandler(redisService, readModels)
	openingHandler := handlers.NewOpeningHandler(openers, redisService)
	walletHandler := handlers.NewWalletHandler(readModels, purchaser, notifications, cfg.ObjectLink)
	wsHandler := handlers.NewWebSocketHandler(hub, openers, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/auth/session", authHandler.Authenticate)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService), middleware.RateLimitMiddleware(redisService, logger))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		protected.GET("/balance", walletHandler.GetBalance)
		protected.GET("/inventory", walletHandler.GetInventory)
		protected.GET("/notifications", walletHandler.GetNotifications)

		boxes := protected.Group("/boxes")
		{
			boxes.GET("", walletHandler.GetLootBoxes)
			boxes.POST("/purchase", walletHandler.Purchase)
			boxes.POST("/open", openingHandler.Open)
			boxes.POST("/open-batch", openingHandler.OpenBatch)
		}

		opening := protected.Group("/opening")
		{
			opening.GET("", openingHandler.GetSession)
			opening.POST("/cancel", openingHandler.Cancel)
			opening.POST("/dismiss", openingHandler.Dismiss)
		}

		protected.GET("/openings/history", openingHandler.GetHistory)
	}

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("owner", c.GetString("address")).
			Msg("request")
	}
}
