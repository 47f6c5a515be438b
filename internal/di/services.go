// Package di provides dependency injection for services.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/clients/prices"
	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/metrics"
	"github.com/aristath/autoinvest/internal/modules/history"
	"github.com/aristath/autoinvest/internal/modules/ledger"
	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/aristath/autoinvest/internal/persistence"
	"github.com/aristath/autoinvest/internal/services"
)

// InitializeServices creates the modules, the price feed and the engine
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}

	// Events first, everything else emits through the manager
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Metrics = metrics.New(log)
	container.Metrics.Subscribe(container.EventBus)

	// Modules
	container.OrderStore = recurring.NewOrderStore(container.Clock, container.EventManager, log)
	container.Ledger = ledger.New(cfg.InitialCash, container.Clock, container.EventManager, log)
	container.HistoryLog = history.NewLog(log)

	// Price feed
	feed, err := newPriceFeed(container, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize price feed: %w", err)
	}
	container.PriceFeed = feed
	container.PriceCache = prices.NewLastKnownCache(feed, container.Clock)

	// Engine
	container.ExecutionService = services.NewRecurringExecutionService(
		container.OrderStore,
		container.Ledger,
		container.HistoryLog,
		container.PriceCache,
		container.PriceCache,
		container.EventManager,
		services.ExecutionConfig{
			PriceTimeout:       cfg.PriceFeed.Timeout,
			Concurrency:        cfg.ScanConcurrency,
			StalePriceFallback: cfg.PriceFeed.StalePriceFallback,
		},
		log,
	)

	container.Snapshotter = persistence.NewSnapshotter(
		container.Store,
		container.OrderStore,
		container.HistoryLog,
		container.Ledger,
		log,
	)

	log.Info().Msg("Services initialized")
	return nil
}

func newPriceFeed(container *Container, cfg *config.Config, log zerolog.Logger) (domain.PriceFeed, error) {
	switch cfg.PriceFeed.Mode {
	case config.PriceFeedStatic:
		parsed, err := prices.ParseStaticPrices(cfg.PriceFeed.StaticPrices)
		if err != nil {
			return nil, err
		}
		log.Info().Int("instruments", len(parsed)).Msg("Using static price feed")
		return prices.NewStaticFeed(parsed), nil

	case config.PriceFeedHTTP:
		log.Info().Str("url", cfg.PriceFeed.URL).Msg("Using HTTP price feed")
		return prices.NewHTTPFeed(cfg.PriceFeed.URL, cfg.PriceFeed.Timeout, log), nil

	case config.PriceFeedStream:
		stream := prices.NewStreamFeed(cfg.PriceFeed.URL, cfg.PriceFeed.MaxAge, log)
		container.StreamFeed = stream
		return stream, nil

	default:
		return nil, fmt.Errorf("unknown price feed mode %q", cfg.PriceFeed.Mode)
	}
}
