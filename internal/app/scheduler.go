package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"cryptoLifecycleBot/config"
	"cryptoLifecycleBot/internal/ports"
)

// CycleRunner executes one engine cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

var _ CycleRunner = (*Engine)(nil)

// Scheduler fires cycles on wall-clock slots: every multiple of interval, lead early.
type Scheduler struct {
	runner   CycleRunner
	logger   ports.Logger
	metrics  ports.Metrics
	interval time.Duration
	lead     time.Duration
	grace    time.Duration
	poll     time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewScheduler creates a Scheduler driven by the timing section of cfg.
func NewScheduler(cfg *config.Config, runner CycleRunner, logger ports.Logger, metrics ports.Metrics) *Scheduler {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	poll := cfg.StopPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		interval: cfg.CycleInterval,
		lead:     cfg.CycleLead,
		grace:    cfg.MisfireGrace,
		poll:     poll,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// nextSlot returns the first slot strictly after t.
func nextSlot(t time.Time, interval, lead time.Duration) time.Time {
	return t.Add(lead).Truncate(interval).Add(interval).Add(-lead)
}

// Run blocks until ctx is cancelled. Cancellation is observed between cycles only;
// a running cycle always completes.
func (s *Scheduler) Run(ctx context.Context) error {
	slot := nextSlot(s.now(), s.interval, s.lead)
	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
		"lead":     s.lead.String(),
		"next":     slot.Format(time.RFC3339),
	})

	for {
		if !s.waitUntil(ctx, slot) {
			s.logger.Info(ctx, "Scheduler stopped")
			return nil
		}

		if late := s.now().Sub(slot); late > s.grace {
			s.logger.Warn(ctx, "Missed cycle slot, skipping", map[string]interface{}{
				"slot": slot.Format(time.RFC3339),
				"late": late.String(),
			})
			s.metrics.CycleCompleted("missed", 0)
			slot = slot.Add(s.interval)
			continue
		}

		s.runSafely(ctx)
		slot = slot.Add(s.interval)
	}
}

// waitUntil sleeps in poll-sized steps until slot, returning false once ctx is done.
func (s *Scheduler) waitUntil(ctx context.Context, slot time.Time) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		remaining := slot.Sub(s.now())
		if remaining <= 0 {
			return true
		}
		if remaining > s.poll {
			remaining = s.poll
		}
		s.sleep(remaining)
	}
}

// runSafely runs one cycle detached from cancellation and recovers any panic.
func (s *Scheduler) runSafely(ctx context.Context) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Cycle panicked", map[string]interface{}{
				"stack": string(debug.Stack()),
			})
			s.metrics.CycleCompleted("panic", s.now().Sub(start).Seconds())
		}
	}()

	if _, err := s.runner.RunCycle(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error(ctx, err, "Cycle failed")
	}
}
