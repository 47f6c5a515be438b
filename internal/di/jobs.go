package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the recurring scan.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log)

	// Each price lookup is already bounded, so the scan itself has no deadline
	container.ScanJob = scheduler.NewRecurringScanJob(
		container.ExecutionService,
		container.Snapshotter,
		container.Clock,
		0,
		log,
	)

	if err := container.Scheduler.AddJob(cfg.ScanSchedule, container.ScanJob); err != nil {
		return fmt.Errorf("failed to register recurring scan job: %w", err)
	}
	return nil
}
