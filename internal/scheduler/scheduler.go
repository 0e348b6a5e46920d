// Package scheduler drives the daemon's periodic work: heartbeat, trait
// evolution, and bridge polling. The three tasks run independently; a slow
// or panicking tick never delays the others.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/cathedral/nova/internal/bridge"
)

// cronParser parses standard 5-field cron expressions.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Engine is the slice of the daemon the scheduler drives.
type Engine interface {
	EmitHeartbeat(ctx context.Context) (string, error)
	Evolve(ctx context.Context) (string, error)
	PollBridge(ctx context.Context) (bridge.PollResult, error)
}

// Config holds the scheduler's dependencies and cadences.
type Config struct {
	Engine Engine
	Logger *slog.Logger

	HeartbeatInterval  time.Duration
	EvolutionInterval  time.Duration
	BridgePollInterval time.Duration

	// Optional cron-expression overrides. When set, the task fires on the
	// cron schedule instead of its fixed interval.
	HeartbeatCron string
	EvolutionCron string

	// Wake triggers an immediate bridge poll between ticks (fed by the
	// inbox watcher). Optional.
	Wake <-chan struct{}
}

// Scheduler runs the periodic tasks until its context is canceled.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the configuration and builds a Scheduler. Invalid cron
// overrides are reported at construction, not at the first tick.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 180 * time.Second
	}
	if cfg.EvolutionInterval <= 0 {
		cfg.EvolutionInterval = 600 * time.Second
	}
	if cfg.BridgePollInterval <= 0 {
		cfg.BridgePollInterval = 10 * time.Second
	}
	for name, expr := range map[string]string{"heartbeat": cfg.HeartbeatCron, "evolution": cfg.EvolutionCron} {
		if expr == "" {
			continue
		}
		if _, err := cronParser.Parse(expr); err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", name, err)
		}
	}
	return &Scheduler{cfg: cfg, logger: logger}, nil
}

// Start launches the task loops.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.launch(ctx, "heartbeat", s.cfg.HeartbeatInterval, s.cfg.HeartbeatCron, nil, func(ctx context.Context) error {
		_, err := s.cfg.Engine.EmitHeartbeat(ctx)
		return err
	})
	s.launch(ctx, "evolution", s.cfg.EvolutionInterval, s.cfg.EvolutionCron, nil, func(ctx context.Context) error {
		_, err := s.cfg.Engine.Evolve(ctx)
		return err
	})
	s.launch(ctx, "bridge_poll", s.cfg.BridgePollInterval, "", s.cfg.Wake, func(ctx context.Context) error {
		res, err := s.cfg.Engine.PollBridge(ctx)
		if err == nil && (res.Ingested > 0 || res.Rejected > 0) {
			s.logger.Info("bridge poll", "ingested", res.Ingested, "rejected", res.Rejected, "skipped", res.Skipped)
		}
		return err
	})

	s.logger.Info("scheduler started",
		"heartbeat", s.describe(s.cfg.HeartbeatInterval, s.cfg.HeartbeatCron),
		"evolution", s.describe(s.cfg.EvolutionInterval, s.cfg.EvolutionCron),
		"bridge_poll", s.cfg.BridgePollInterval.String(),
	)
}

func (s *Scheduler) describe(interval time.Duration, cronExpr string) string {
	if cronExpr != "" {
		return "cron " + cronExpr
	}
	return interval.String()
}

// Stop cancels the loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// launch starts one task loop. With a cron expression, waits are computed
// from the expression; otherwise a fixed ticker drives the task. The wake
// channel, when set, fires the task ahead of schedule.
func (s *Scheduler) launch(ctx context.Context, name string, interval time.Duration, cronExpr string, wake <-chan struct{}, task func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var schedule cronlib.Schedule
		if cronExpr != "" {
			schedule, _ = cronParser.Parse(cronExpr)
		}

		next := func() <-chan time.Time {
			if schedule != nil {
				return time.After(time.Until(schedule.Next(time.Now())))
			}
			return time.After(interval)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-next():
				s.runTask(ctx, name, task)
			case <-wakeChan(wake):
				s.runTask(ctx, name, task)
			}
		}
	}()
}

// wakeChan makes a nil wake channel safe to select on.
func wakeChan(wake <-chan struct{}) <-chan struct{} {
	if wake == nil {
		return nil
	}
	return wake
}

// runTask executes one tick, converting a panic into a logged skip so the
// task resumes at its next scheduled time.
func (s *Scheduler) runTask(ctx context.Context, name string, task func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked, skipping tick", "task", name, "panic", r)
		}
	}()
	if err := task(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("task tick failed", "task", name, "error", err)
	}
}
