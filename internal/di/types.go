/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/autoinvest/internal/clients/prices"
	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/database"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/metrics"
	"github.com/aristath/autoinvest/internal/modules/history"
	"github.com/aristath/autoinvest/internal/modules/ledger"
	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/aristath/autoinvest/internal/persistence"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/services"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Storage: one durable store (SQLite state.db, S3 or memory)
 * - Clients: the configured price feed, wrapped in a last-known-price cache
 * - Modules: order store, ledger, execution history
 * - Services: the recurring execution engine and the state snapshotter
 * - Scheduling: cron scheduler with the recurring scan job
 */
type Container struct {
	Config *config.Config
	Clock  domain.Clock

	// Storage
	StateDB     *database.DB // nil unless the sqlite backend is selected
	Store       domain.DurableStore
	Snapshotter *persistence.Snapshotter

	// Events and observability
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics

	// Price feed
	PriceFeed  domain.PriceFeed       // the configured upstream feed
	PriceCache *prices.LastKnownCache // wraps PriceFeed; what the engine queries
	StreamFeed *prices.StreamFeed     // nil unless stream mode

	// Modules
	OrderStore *recurring.OrderStore
	Ledger     *ledger.Ledger
	HistoryLog *history.Log

	// Services
	ExecutionService *services.RecurringExecutionService

	// Scheduling
	Scheduler *scheduler.Scheduler
	ScanJob   *scheduler.RecurringScanJob
}
