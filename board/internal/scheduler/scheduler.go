// Package scheduler drives the sweep cadence: one sweep at startup, then
// one per interval, plus a daily maintenance tick for retention pruning.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Config configures the scheduler.
type Config struct {
	// Interval is the time between sweeps. Default: 10 minutes.
	Interval time.Duration
	// PruneInterval is the time between retention prunes. Default: 24 hours.
	PruneInterval time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = 24 * time.Hour
	}
}

// Sweep runs one full observation pass. It must honor ctx at source
// boundaries, not mid-source.
type Sweep func(ctx context.Context) error

// Prune applies the retention policy.
type Prune func(ctx context.Context) error

// Scheduler runs sweeps on a ticker. A sweep in flight is never cancelled
// mid-source; cancellation takes effect at the next boundary.
type Scheduler struct {
	sweep  Sweep
	prune  Prune
	config Config
	logger *slog.Logger
}

// New creates a Scheduler.
func New(sweep Sweep, prune Prune, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sweep: sweep, prune: prune, config: cfg, logger: logger}
}

// Run sweeps once immediately, then on every tick. Blocks until ctx is
// cancelled. Sweep errors are logged, never fatal to the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	pruneTicker := time.NewTicker(s.config.PruneInterval)
	defer pruneTicker.Stop()

	s.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		case <-pruneTicker.C:
			if s.prune == nil {
				continue
			}
			if err := s.prune(ctx); err != nil {
				s.logger.Error("scheduler: prune", "error", err)
			}
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.sweep(ctx); err != nil {
		s.logger.Error("scheduler: sweep", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.logger.Debug("scheduler: sweep done", "duration_ms", time.Since(start).Milliseconds())
}
