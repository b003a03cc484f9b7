package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/model"
)

const (
	// DefaultPollInterval is the time between due-export scans.
	DefaultPollInterval = 60 * time.Second
	// DefaultBatchSize caps the exports claimed per tick.
	DefaultBatchSize = 50
)

// Store is the scheduled export access the scheduler needs.
type Store interface {
	DueExports(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledExport, error)
	ClaimExport(ctx context.Context, id string, prev time.Time, next *time.Time) error
}

// LockFunc takes a lock shared by every scheduler process. ok is false when
// another process holds it.
type LockFunc func(ctx context.Context) (release func(), ok bool, err error)

// SchedulerConfig tunes the polling loop.
type SchedulerConfig struct {
	PollInterval  time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
	BatchSize     int
}

// Scheduler polls for due exports and runs them in the background.
type Scheduler struct {
	store   Store
	runner  *Runner
	lock    LockFunc
	cfg     SchedulerConfig
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	// ticking is held while a tick queries and claims.
	ticking  sync.Mutex
	jobs     sync.WaitGroup
	inFlight atomic.Int64

	jobCtx   context.Context
	stopJobs context.CancelFunc

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler.
func NewScheduler(store Store, runner *Runner, cfg SchedulerConfig, logger *slog.Logger, recorder metrics.Recorder) *Scheduler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	jobCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		runner:   runner,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   logger.With("component", "export_scheduler"),
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
		jobCtx:   jobCtx,
		stopJobs: stop,
	}
}

// SetLock installs a cross-process tick lock.
func (s *Scheduler) SetLock(lock LockFunc) {
	s.lock = lock
}

// Run polls until ctx is cancelled or Shutdown is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	s.logger.Info("export_scheduler_started", "interval", s.cfg.PollInterval.String(), "max_concurrent", s.cfg.MaxConcurrent)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("export_scheduler_stopping")
			return nil
		case <-ticker.C:
			// A slow tick must not hold up the ticker, and an overlapping one is skipped.
			s.jobs.Add(1)
			go func() {
				defer s.jobs.Done()
				if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("export_tick_failed", "error", err)
				}
			}()
		}
	}
}

// RunOnce claims due exports and starts them. It returns how many were
// started and does not wait for them; see Wait.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.ticking.TryLock() {
		s.logger.Warn("export_tick_skipped", "reason", "previous tick still running")
		return 0, nil
	}
	defer s.ticking.Unlock()

	if s.lock != nil {
		release, ok, err := s.lock(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		if !ok {
			s.logger.Debug("export_tick_skipped", "reason", "lock held elsewhere")
			return 0, nil
		}
		defer release()
	}

	now := s.now()
	due, err := s.store.DueExports(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due exports: %w", err)
	}

	started := 0
	for _, e := range due {
		if !s.sem.TryAcquire(1) {
			s.logger.Warn("export_slots_full", "remaining", len(due)-started)
			break
		}
		if err := s.claim(ctx, e, now); err != nil {
			s.sem.Release(1)
			if errors.Is(err, ErrClaimLost) {
				s.logger.Debug("export_claim_lost", "scheduled_export_id", e.ID)
				continue
			}
			s.logger.Error("export_claim_failed", "scheduled_export_id", e.ID, "error", err)
			continue
		}
		h, err := s.runner.Begin(ctx, e, model.TriggeredByScheduler, "")
		if err != nil {
			s.sem.Release(1)
			s.logger.Error("export_history_create_failed", "scheduled_export_id", e.ID, "error", err)
			continue
		}
		s.launch(h, e)
		started++
	}
	return started, nil
}

// claim advances next_run_at past now so no other tick picks the export up.
// An export whose schedule no longer parses is claimed with no next run.
func (s *Scheduler) claim(ctx context.Context, e *model.ScheduledExport, now time.Time) error {
	var next *time.Time
	if t, err := NextRun(e, now); err != nil {
		s.logger.Error("export_schedule_invalid", "scheduled_export_id", e.ID, "error", err)
	} else {
		next = &t
	}
	return s.store.ClaimExport(ctx, e.ID, *e.NextRunAt, next)
}

// Submit runs an already-recorded history in the background, waiting for a
// free slot. e is nil for ad-hoc exports.
func (s *Scheduler) Submit(h *model.ExportHistory, e *model.ScheduledExport) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		if err := s.sem.Acquire(s.jobCtx, 1); err != nil {
			// Shutting down before a slot freed up; the cancelled job records its failure.
			s.runJob(h, e)
			return
		}
		defer s.sem.Release(1)
		s.runJob(h, e)
	}()
}

// launch runs h in a slot the caller already holds.
func (s *Scheduler) launch(h *model.ExportHistory, e *model.ScheduledExport) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer s.sem.Release(1)
		s.runJob(h, e)
	}()
}

func (s *Scheduler) runJob(h *model.ExportHistory, e *model.ScheduledExport) {
	s.metrics.SetExportsInFlight(s.inFlight.Add(1))
	defer func() { s.metrics.SetExportsInFlight(s.inFlight.Add(-1)) }()

	ctx, cancel := context.WithTimeout(s.jobCtx, s.cfg.JobTimeout)
	defer cancel()
	_ = s.runner.Execute(ctx, h, e)
}

// InFlight returns the number of running exports.
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// Wait blocks until every started tick and export finishes or ctx ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops polling and waits for running exports. Exports still
// running when ctx ends are cancelled and recorded as failed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	s.logger.Info("export_scheduler_shutdown_initiated", "in_flight", s.inFlight.Load())
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	err := s.Wait(ctx)
	if err != nil {
		s.logger.Warn("export_scheduler_shutdown_timed_out")
		s.stopJobs()
		// Cancelled jobs still record their failure before returning.
		waitCtx, cancelWait := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancelWait()
		_ = s.Wait(waitCtx)
		return err
	}
	s.stopJobs()
	s.logger.Info("export_scheduler_shutdown_complete")
	return nil
}
