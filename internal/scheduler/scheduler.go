// Package scheduler runs the periodic evergreen repair job.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DefaultInterval is how often evergreen parents are repaired.
const DefaultInterval = 5 * time.Minute

// Repairer re-derives evergreen children. Implemented by engine.Engine.
type Repairer interface {
	RepairAll(ctx context.Context) (int, error)
}

// Scheduler runs Repairer.RepairAll on a fixed interval.
type Scheduler struct {
	repairer Repairer
	interval time.Duration
	logger   *slog.Logger
	runs     atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the repair interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler.
func New(r Repairer, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		repairer: r,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, errors.New("scheduler: interval must be positive")
	}
	return s, nil
}

// Runs returns how many repair passes have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Run starts the job, repairing once immediately, and blocks until ctx is
// done. Passes never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.repair(ctx) }),
		gocron.WithName("evergreen-repair"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}

	sched.Start()
	s.logger.Info("repair scheduler started", "interval", s.interval)
	<-ctx.Done()
	return sched.Shutdown()
}

func (s *Scheduler) repair(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	repaired, err := s.repairer.RepairAll(ctx)
	s.runs.Add(1)
	if err != nil {
		s.logger.Error("evergreen repair failed", "error", err)
		return
	}
	s.logger.Debug("evergreen repair finished",
		"repaired", repaired,
		"duration", time.Since(start),
	)
}
