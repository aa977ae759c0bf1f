package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Reconciler on a fixed interval using robfig/cron/v3, the
// same scheduling library the rest of the example pack reaches for. Cron
// guarantees dispatch on schedule but not mutual exclusion across ticks, so
// Scheduler adds its own non-overlap guard: a size-1 buffered channel used
// as a non-blocking lock. A tick that finds the lock held is skipped rather
// than queued, since the next tick will reconcile from current state anyway.
type Scheduler struct {
	cron   *cron.Cron
	recon  *Reconciler
	logger *slog.Logger
	gate   chan struct{}
	entry  cron.EntryID
}

// NewScheduler builds a Scheduler around recon. Call Start with the desired
// interval to begin ticking.
func NewScheduler(recon *Reconciler, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		recon:  recon,
		logger: logger,
		gate:   make(chan struct{}, 1),
	}
}

// Start schedules the periodic cycle and begins running it in the
// background. The returned error is non-nil only if the interval cannot be
// expressed as a cron spec.
func (s *Scheduler) Start(interval time.Duration) error {
	spec := fmt.Sprintf("@every %s", interval)
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return fmt.Errorf("schedule sync interval %s: %w", interval, err)
	}
	s.entry = id
	s.cron.Start()
	return nil
}

// Stop halts future ticks and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// TriggerNow runs one cycle immediately, outside the cron schedule, honoring
// the same non-overlap guard as scheduled ticks. Used by the HTTP API's
// manual sync endpoint.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
	default:
		return fmt.Errorf("sync already in progress")
	}
	defer func() { <-s.gate }()
	return s.recon.RunOnce(ctx)
}

func (s *Scheduler) tick() {
	select {
	case s.gate <- struct{}{}:
	default:
		s.logger.Warn("sync: previous cycle still running, skipping tick")
		return
	}
	defer func() { <-s.gate }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.recon.RunOnce(ctx); err != nil {
		s.logger.Error("sync: cycle failed", "error", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Info("sync: cycle completed", "elapsed", time.Since(start))
}
