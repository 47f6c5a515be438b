// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Open the durable store
// 2. Initialize modules and services
// 3. Restore saved state
// 4. Register jobs
// 5. Start the price stream (stream mode only)
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Open the durable store
	container, err := InitializeStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// Step 2: Initialize services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 3: Restore saved state
	if err := LoadState(ctx, container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	// Step 4: Register jobs
	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	// Step 5: Start the price stream; it keeps reconnecting in the background
	if container.StreamFeed != nil {
		if err := container.StreamFeed.Start(); err != nil {
			log.Warn().Err(err).Msg("Price stream not connected yet, retrying in background")
		}
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// LoadState restores orders, history and ledger from the durable store and
// seeds the last-known-price cache from the restored ledger.
func LoadState(ctx context.Context, container *Container, log zerolog.Logger) error {
	if err := container.Snapshotter.LoadAll(ctx); err != nil {
		return err
	}

	seeded := 0
	for instrumentID, price := range container.Ledger.Snapshot().LastPrices {
		container.PriceCache.Remember(instrumentID, price)
		seeded++
	}
	container.Metrics.SetCashBalance(container.Ledger.CashBalance())

	log.Info().
		Int("orders", len(container.OrderStore.List())).
		Int("history_records", container.HistoryLog.Len()).
		Int("seeded_prices", seeded).
		Float64("cash_balance", container.Ledger.CashBalance()).
		Msg("State restored")
	return nil
}

// Close releases the price stream and the state database
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.StreamFeed != nil {
		_ = c.StreamFeed.Stop()
	}
	if c.StateDB != nil {
		_ = c.StateDB.Close()
	}
}
