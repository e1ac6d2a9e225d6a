package service

import (
	"context"
	"time"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/metrics"
)

// SchedulerService drives the collection job on the configured wall-clock
// schedule. Jobs run on the scheduler goroutine, one at a time.
type SchedulerService struct {
	job           Job
	offsetMinutes int
	periodMinutes int
	period        time.Duration
	loc           *time.Location
	log           *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewSchedulerService(job Job, cfg config.Config, log *logger.Logger) *SchedulerService {
	if log == nil {
		log = logger.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &SchedulerService{
		job:           job,
		offsetMinutes: cfg.StartTimeOffsetMinutes,
		periodMinutes: cfg.PeriodMinutes,
		period:        cfg.Period(),
		loc:           loc,
		log:           log,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

// Run waits for the first tick, then runs the job every period until ctx is
// canceled. Job failures are logged and never stop the loop.
func (s *SchedulerService) Run(ctx context.Context) {
	now := s.now().In(s.loc)
	next := now.Add(ComputeInitialDelay(now, s.offsetMinutes))
	s.log.Infow("scheduler_started",
		"first_run", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second).String(),
		"period", s.period.String(), "timezone", s.loc.String())

	for {
		metrics.NextRun.Set(float64(next.Unix()))
		if !s.sleep(ctx, next.Sub(s.now())) {
			s.log.Infow("scheduler_stopped")
			return
		}

		s.runJob(ctx, next)
		if ctx.Err() != nil {
			s.log.Infow("scheduler_stopped")
			return
		}

		now := s.now().In(s.loc)
		planned := next
		next = NextRunAfter(next, s.periodMinutes, now)
		if skipped := s.skippedTicks(planned, next); skipped > 0 {
			s.log.Warnw("ticks_skipped", "count", skipped, "catch_up_at", next.Format(time.RFC3339))
		}
		s.log.Infow("next_run_scheduled", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second).String())
	}
}

func (s *SchedulerService) runJob(ctx context.Context, scheduledAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("job_panicked", "scheduled_at", scheduledAt.Format(time.RFC3339), "panic", r)
		}
	}()
	if err := s.job.Run(ctx, scheduledAt); err != nil {
		s.log.Errorw("job_failed", "scheduled_at", scheduledAt.Format(time.RFC3339), "err", err)
	}
}

// skippedTicks counts the ticks strictly between planned and next.
func (s *SchedulerService) skippedTicks(planned, next time.Time) int {
	n := 0
	for t := advance(planned, s.periodMinutes, 1); t.Before(next); t = advance(t, s.periodMinutes, 1) {
		n++
	}
	return n
}

// sleepContext blocks for d or until ctx is done. It reports whether the
// full duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
