// Package scheduler runs the processor's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one run of a scheduled job
type JobFunc func(ctx context.Context, now time.Time) error

// Scheduler wraps a cron runner. A panicking job is recovered and logged, and a
// job still running when its next tick fires skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		logger: logger,
	}
}

// Register adds a job under a standard five-field cron spec
func (s *Scheduler) Register(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := s.now()
		s.logger.Info("Running scheduled job", "job", name)

		if err := job(s.ctx, started.UTC()); err != nil {
			s.logger.Error("Scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Info("Scheduled job finished", "job", name, "duration", time.Since(started).String())
	})
	if err != nil {
		s.logger.Error("Failed to schedule job", "job", name, "schedule", spec, "error", err)
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.logger.Info("Scheduled job", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling new runs and waits for running jobs until ctx expires,
// after which running jobs see their context cancelled
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduled jobs still running at shutdown: %w", ctx.Err())
	}
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
