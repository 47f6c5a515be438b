// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrDuplicateJob is returned when a job name is registered twice
var ErrDuplicateJob = errors.New("job already registered")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobInfo describes a registered job for status endpoints
type JobInfo struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	PrevRun  *time.Time `json:"prev_run,omitempty"`
}

type registration struct {
	id       cron.EntryID
	schedule string
}

// Scheduler runs named jobs on cron schedules. A panicking job is recovered
// and a tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]registration
	log  zerolog.Logger
}

// cronLogger routes cron's own messages (recovered panics, skipped ticks) to zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// New creates a scheduler that accepts six-field (seconds) specs and descriptors
func New(log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs: make(map[string]registration),
		log:  l,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under its name. Schedule examples:
//   - "@every 1h"          - Every hour from start
//   - "0 0 9 * * MON-FRI"  - 9 AM weekdays
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("%s: %w", job.Name(), ErrDuplicateJob)
	}

	id, err := s.cron.AddJob(schedule, cron.FuncJob(func() {
		_ = s.run(job, "cron")
	}))
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}
	s.jobs[job.Name()] = registration{id: id, schedule: schedule}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule
func (s *Scheduler) RunNow(job Job) error {
	return s.run(job, "manual")
}

func (s *Scheduler) run(job Job, trigger string) error {
	start := time.Now()
	log := s.log.With().Str("job", job.Name()).Str("trigger", trigger).Logger()
	log.Debug().Msg("Running job")

	err := job.Run()
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
		return err
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}

// Jobs lists registered jobs by name. NextRun is unset until Start.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, reg := range s.jobs {
		info := JobInfo{Name: name, Schedule: reg.schedule}
		entry := s.cron.Entry(reg.id)
		if !entry.Next.IsZero() {
			next := entry.Next
			info.NextRun = &next
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			info.PrevRun = &prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
