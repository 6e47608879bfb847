package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bilgisen/anitory/internal/ai"
	"github.com/bilgisen/anitory/internal/api"
	"github.com/bilgisen/anitory/internal/app"
	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/config"
	"github.com/bilgisen/anitory/internal/editor"
	"github.com/bilgisen/anitory/internal/feed"
	"github.com/bilgisen/anitory/internal/logger"
	"github.com/bilgisen/anitory/internal/media"
	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/bilgisen/anitory/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:   cfg.LogLevel,
		Output:  cfg.LogFile,
		Pretty:  !cfg.IsProduction(),
		Service: "anitory-api",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("Starting application...")

	ctx := context.Background()
	core, err := app.Open(ctx, cfg, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize infrastructure")
	}
	defer func() {
		log.Info().Msg("Closing connections...")
		if err := core.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing connections")
		}
	}()

	// AI is optional; without a key the AI endpoints report unavailability
	var gemini *ai.GeminiClient
	var enhancer editor.Enhancer
	if cfg.AIApiKey != "" {
		gemini = ai.NewGeminiClient(cfg.AIApiKey, cfg.AIModel, cfg.AITimeout, logger.Component("ai"))
		enhancer = gemini
	} else {
		log.Warn().Msg("AI_API_KEY not set, AI features disabled")
	}

	var objects media.ObjectStore
	if cfg.R2Enabled() {
		r2, err := media.NewR2Store(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize R2, covers stay inline")
		} else {
			objects = r2
		}
	}

	if cfg.IdentityAPIKey == "" {
		log.Warn().Msg("IDENTITY_API_KEY not set, sign-up and sign-in will fail")
	}
	authService := auth.NewService(
		auth.NewIdentityClient(cfg.IdentityAPIKey, cfg.HTTPTimeout),
		core.Storage,
		core.Sessions,
		logger.Component("auth"),
	)

	ed := editor.New(
		core.Storage,
		enhancer,
		feed.NewFetcher(core.Cache, logger.Component("fetcher")),
		media.NewCovers(objects, logger.Component("media")),
		logger.Component("editor"),
	)
	handlers := api.NewHandlers(cfg, core.Storage, feed.NewProcessor(core.Storage), ed, authService, gemini)

	// Create Fiber app with custom config
	server := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    8 << 20,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + middleware.TabHeader,
	}))
	server.Use(middleware.RequestLogger())

	if cfg.MetricsEnabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		server.Use(metrics.FiberMiddleware())
		server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Setup API routes
	api.SetupRoutes(server, handlers)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create a deadline for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
