package schedule

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Runner produces the output text for a due recurring schedule.
type Runner interface {
	Execute(ctx context.Context, sched *Schedule) (string, error)
}

// Deliverer sends schedule output to its recipient.
type Deliverer interface {
	Send(ctx context.Context, recipient, text string) error
}

// Config holds the scheduler's dependencies and settings.
type Config struct {
	Logger    *slog.Logger
	Store     *Store
	Executor  Runner
	Deliverer Deliverer
	// Interval between polls (default 30s).
	Interval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scheduler polls the store on a fixed interval and fires due schedules.
// Each tick processes its due set sequentially, so a slow execution
// delays later ones within the tick but never overlaps them. Ticks that
// elapse while one is still running are dropped by the ticker.
type Scheduler struct {
	logger    *slog.Logger
	store     *Store
	executor  Runner
	deliverer Deliverer
	interval  time.Duration
	now       func() time.Time
}

// New creates a scheduler from config.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		logger:    logger,
		store:     cfg.Store,
		executor:  cfg.Executor,
		deliverer: cfg.Deliverer,
		interval:  interval,
		now:       now,
	}
}

// Start recomputes recurring schedules from the current time, then runs
// the poll loop until ctx is cancelled. Occurrences missed while the
// process was down are skipped, never queued for catch-up.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.recompute(); err != nil {
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// recompute resets every enabled recurring schedule's next run time to
// the first cron occurrence after now. A schedule whose cron expression
// or timezone no longer parses is disabled rather than retried.
func (s *Scheduler) recompute() error {
	schedules, err := s.store.List(true)
	if err != nil {
		return err
	}

	now := s.now()
	for _, sched := range schedules {
		if sched.Kind != KindRecurring {
			continue
		}
		next, err := NextAfter(sched.CronExpr, sched.Timezone, now)
		if err != nil {
			s.logger.Warn("disabling schedule with invalid definition",
				"schedule", sched.ID, "error", err)
			if derr := s.store.Disable(sched.ID); derr != nil {
				s.logger.Error("disable schedule failed", "schedule", sched.ID, "error", derr)
			}
			continue
		}
		if err := s.store.SetNextRun(sched.ID, next); err != nil {
			return err
		}
		s.logger.Debug("schedule recomputed", "schedule", sched.ID, "next_run", next)
	}
	return nil
}

// tick fires every due schedule, sequentially.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.Due(now)
	if err != nil {
		s.logger.Error("due query failed", "error", err)
		return
	}

	for _, sched := range due {
		s.fire(ctx, sched, now)
	}
}

// fire processes one due schedule. Delivery failures are logged and never
// block the state transition: the schedule still advances or is deleted.
func (s *Scheduler) fire(ctx context.Context, sched *Schedule, now time.Time) {
	switch sched.Kind {
	case KindReminder:
		s.deliver(ctx, sched, "⏰ Reminder: "+sched.Prompt)
		if err := s.store.Delete(sched.ID); err != nil {
			s.logger.Error("delete fired reminder failed", "schedule", sched.ID, "error", err)
		}
		s.logger.Info("reminder fired", "schedule", sched.ID)

	case KindRecurring:
		output, err := s.executor.Execute(ctx, sched)
		if err != nil {
			// Not advanced; retried on the next tick.
			s.logger.Error("schedule execution failed", "schedule", sched.ID, "error", err)
			return
		}

		next, err := NextAfter(sched.CronExpr, sched.Timezone, now)
		if err != nil {
			// Fail-safe against busy-looping on a corrupt schedule.
			s.logger.Warn("disabling schedule with invalid definition",
				"schedule", sched.ID, "error", err)
			if derr := s.store.Disable(sched.ID); derr != nil {
				s.logger.Error("disable schedule failed", "schedule", sched.ID, "error", derr)
			}
			return
		}

		s.deliver(ctx, sched, output)
		if err := s.store.Advance(sched.ID, now, next); err != nil {
			s.logger.Error("advance schedule failed", "schedule", sched.ID, "error", err)
			return
		}
		s.logger.Info("schedule fired", "schedule", sched.ID, "next_run", next)

	default:
		s.logger.Warn("disabling schedule of unknown kind",
			"schedule", sched.ID, "kind", sched.Kind)
		if err := s.store.Disable(sched.ID); err != nil {
			s.logger.Error("disable schedule failed", "schedule", sched.ID, "error", err)
		}
	}
}

func (s *Scheduler) deliver(ctx context.Context, sched *Schedule, text string) {
	if s.deliverer == nil || text == "" {
		return
	}
	if err := s.deliverer.Send(ctx, sched.UserID, text); err != nil {
		s.logger.Error("delivery failed", "schedule", sched.ID, "error", err)
	}
}
