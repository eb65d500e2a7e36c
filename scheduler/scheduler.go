// Package scheduler runs the background jobs of the drug portal: warming the
// drug index until every initial letter is loaded, expiring idle sessions and
// watching for an index that never finished loading.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Options configures the background jobs
type Options struct {
	InitialLetters string
	WarmupInterval time.Duration
	SweepInterval  time.Duration
	StaleAfter     time.Duration
}

// Scheduler handles index warm-up and housekeeping using dependency injection
type Scheduler struct {
	store     interfaces.DrugStore
	sessions  interfaces.SessionStore
	opts      Options
	scheduler *gocron.Scheduler

	ctx       context.Context
	cancel    context.CancelFunc
	warm      atomic.Bool
	startedAt time.Time
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(store interfaces.DrugStore, sessions interfaces.SessionStore, opts Options) *Scheduler {
	if opts.WarmupInterval <= 0 {
		opts.WarmupInterval = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     store,
		sessions:  sessions,
		opts:      opts,
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Start schedules the jobs and returns immediately. The warm-up job runs
// right away, so the initial load happens in the background while the
// server is already answering.
func (s *Scheduler) Start() error {
	s.startedAt = s.now()

	if _, err := s.scheduler.Every(s.opts.WarmupInterval).Tag("warmup").SingletonMode().Do(s.warmUp); err != nil {
		logging.Error("Failed to schedule warm-up", "error", err)
		return fmt.Errorf("failed to schedule warm-up: %w", err)
	}

	if s.sessions != nil {
		if _, err := s.scheduler.Every(s.opts.SweepInterval).Tag("sessions").WaitForSchedule().Do(s.sweepSessions); err != nil {
			logging.Error("Failed to schedule session sweep", "error", err)
			return fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}

	if _, err := s.scheduler.Every(1).Hour().Tag("stale").WaitForSchedule().Do(func() { s.checkStale() }); err != nil {
		logging.Error("Failed to schedule index monitor", "error", err)
		return fmt.Errorf("failed to schedule index monitor: %w", err)
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels a running warm-up and stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// Warm reports whether every initial letter has been loaded
func (s *Scheduler) Warm() bool {
	return s.warm.Load()
}

// warmUp runs the initial load until it succeeds for every letter.
// Letters already loaded are served from the index without a download.
func (s *Scheduler) warmUp() {
	if s.warm.Load() {
		return
	}

	report := s.store.LoadInitialData(s.ctx)
	if report.Skipped {
		return
	}

	if len(report.Failed) == 0 && len(report.Pending) == 0 && report.Succeeded() {
		s.warm.Store(true)
		logging.Info("Drug index warm-up complete",
			"letters", report.Loaded,
			"records", s.store.Stats().TotalRecords,
			"duration", report.Duration.String())
		return
	}

	logging.Warn("Drug index warm-up incomplete, will retry",
		"failed_letters", report.Failed,
		"pending_letters", report.Pending,
		"retry_in", s.opts.WarmupInterval.String())
}

// sweepSessions drops sessions idle for longer than the store TTL
func (s *Scheduler) sweepSessions() {
	if removed := s.sessions.Sweep(s.now()); removed > 0 {
		logging.Debug("Expired sessions removed", "count", removed, "remaining", s.sessions.Len())
	}
}

// checkStale warns when initial letters are still missing long after start
func (s *Scheduler) checkStale() bool {
	missing := s.missingLetters()
	if len(missing) == 0 || s.now().Sub(s.startedAt) < s.opts.StaleAfter {
		return false
	}

	logging.Warn("Drug index still incomplete",
		"missing_letters", missing,
		"since", s.startedAt.Format(time.RFC3339),
		"is_loading", s.store.IsLoading())
	return true
}

func (s *Scheduler) missingLetters() []string {
	loaded := s.store.Stats().LoadedLetters
	var missing []string
	for _, r := range s.opts.InitialLetters {
		if !slices.Contains(loaded, string(r)) {
			missing = append(missing, string(r))
		}
	}
	return missing
}
