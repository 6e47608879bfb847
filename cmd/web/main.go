package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilgisen/anitory/internal/app"
	"github.com/bilgisen/anitory/internal/config"
	"github.com/bilgisen/anitory/internal/logger"
	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/bilgisen/anitory/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The realtime gateway: browsers hold a websocket here and receive fresh
// state whenever any process publishes a change notification.
func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{
		Level:   cfg.LogLevel,
		Output:  cfg.LogFile,
		Pretty:  !cfg.IsProduction(),
		Service: "anitory-realtime",
	}); err != nil {
		panic(err)
	}
	log := logger.Get()

	core, err := app.Open(context.Background(), cfg, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize infrastructure")
	}
	defer core.Close()

	hub := realtime.NewHub(core.Notifier, core.Storage, logger.Component("realtime"))

	mux := http.NewServeMux()
	mux.Handle("/ws", realtime.NewHandler(hub, core.Sessions, cfg.AllowedOrigins, logger.Component("realtime")))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsEnabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		mux.Handle("/metrics", promhttp.Handler())
	}
	// Serve static files from the web/static directory
	mux.Handle("/", http.FileServer(http.Dir("web/static")))

	server := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.WebPort).Msg("Realtime gateway starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Int("clients", hub.Clients()).Msg("Shutting down realtime gateway...")
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
