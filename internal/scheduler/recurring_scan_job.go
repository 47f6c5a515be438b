package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/services"
)

// ScanRunner executes one pass over due orders
type ScanRunner interface {
	ScanOnce(ctx context.Context, now time.Time) services.ScanResult
}

// StateSaver persists engine state after a scan
type StateSaver interface {
	SaveAll(ctx context.Context) error
}

// RecurringScanJob runs the execution scan and persists the result.
// Scheduled and manual runs share the job, so they never overlap.
type RecurringScanJob struct {
	mu      sync.Mutex
	lastMu  sync.RWMutex
	engine  ScanRunner
	saver   StateSaver
	clock   domain.Clock
	timeout time.Duration
	last    *services.ScanResult
	log     zerolog.Logger
}

// NewRecurringScanJob creates the scan job. A zero timeout means no deadline.
func NewRecurringScanJob(engine ScanRunner, saver StateSaver, clock domain.Clock, timeout time.Duration, log zerolog.Logger) *RecurringScanJob {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &RecurringScanJob{
		engine:  engine,
		saver:   saver,
		clock:   clock,
		timeout: timeout,
		log:     log.With().Str("job", "recurring_scan").Logger(),
	}
}

// Name returns the job name
func (j *RecurringScanJob) Name() string {
	return "recurring_scan"
}

// Run executes a scan on the cron goroutine
func (j *RecurringScanJob) Run() error {
	_, err := j.RunScan(context.Background())
	return err
}

// RunScan executes a scan at the clock's current time and saves state.
// The scan result is returned even when saving fails.
func (j *RecurringScanJob) RunScan(ctx context.Context) (services.ScanResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	result := j.engine.ScanOnce(ctx, j.clock.Now())
	j.lastMu.Lock()
	j.last = &result
	j.lastMu.Unlock()

	if j.saver == nil {
		return result, nil
	}
	// Executions already applied must be saved even past the scan deadline.
	if err := j.saver.SaveAll(context.WithoutCancel(ctx)); err != nil {
		j.log.Error().Err(err).Msg("Failed to persist state after scan")
		return result, fmt.Errorf("failed to persist state after scan: %w", err)
	}
	return result, nil
}

// LastResult returns the most recent scan result, if any
func (j *RecurringScanJob) LastResult() (services.ScanResult, bool) {
	j.lastMu.RLock()
	defer j.lastMu.RUnlock()
	if j.last == nil {
		return services.ScanResult{}, false
	}
	return *j.last, true
}
