// Package di provides dependency injection for the durable store.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/database"
	"github.com/aristath/autoinvest/internal/persistence"
)

// InitializeStore opens the configured durable store backend
func InitializeStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	switch cfg.Store.Backend {
	case config.StoreSQLite:
		// state.db - orders, execution history and ledger as msgpack blobs
		stateDB, err := database.New(database.Config{
			Path:    cfg.StatePath(),
			Profile: database.ProfileLedger, // the ledger records real money
			Name:    "state",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state database: %w", err)
		}
		if err := stateDB.Migrate(); err != nil {
			stateDB.Close()
			return nil, fmt.Errorf("failed to migrate state database: %w", err)
		}
		container.StateDB = stateDB
		container.Store = persistence.NewSQLiteStore(stateDB.Conn())

	case config.StoreS3:
		store, err := persistence.NewS3Store(ctx, persistence.S3Config{
			Bucket:          cfg.Store.S3Bucket,
			Prefix:          cfg.Store.S3Prefix,
			Region:          cfg.Store.S3Region,
			Endpoint:        cfg.Store.S3Endpoint,
			AccessKeyID:     cfg.Store.S3AccessKeyID,
			SecretAccessKey: cfg.Store.S3SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 store: %w", err)
		}
		container.Store = store

	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store, state will not survive a restart")
		container.Store = persistence.NewMemoryStore()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	log.Info().Str("backend", cfg.Store.Backend).Msg("Durable store initialized")
	return container, nil
}
