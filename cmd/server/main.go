// Package main is the entry point for the recurring investment engine.
// It executes standing "buy a fixed amount of X every period" orders on a
// cron-driven scan and exposes the orders, ledger and history over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/di"
	"github.com/aristath/autoinvest/internal/server"
	"github.com/aristath/autoinvest/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies and restores saved state
// 4. Starts the HTTP server
// 5. Runs one catch-up scan for orders that fell due while stopped, then
//    starts the scan scheduler
// 6. Waits for a shutdown signal, then stops, saves and closes
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still reported
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("store", cfg.Store.Backend).
		Str("price_feed", cfg.PriceFeed.Mode).
		Str("scan_schedule", cfg.ScanSchedule).
		Msg("Starting autoinvest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Catch up before the schedule takes over, so the two never overlap
	if err := container.Scheduler.RunNow(container.ScanJob); err != nil {
		log.Error().Err(err).Msg("Startup scan failed")
	}
	container.Scheduler.Start()

	<-quit

	log.Info().Msg("Shutting down...")

	// Waits for a running scan to finish
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.Snapshotter.SaveAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to save state on shutdown")
	}

	log.Info().Msg("Server stopped")
}
