package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/delivery"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/metrics"
	"ecs_event_collector/internal/models"
	"ecs_event_collector/internal/repository"

	"github.com/google/uuid"
)

// EventFetcher retrieves the raw events of one window.
type EventFetcher interface {
	Fetch(ctx context.Context, window models.TimeWindow, format models.ReportFormat) (models.EventPayload, error)
}

// Deliverer hands a payload to one channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, payload models.EventPayload, window models.TimeWindow, format models.ReportFormat) error
}

// CollectionJob is one tick of work: fetch yesterday's events and deliver
// them everywhere.
type CollectionJob struct {
	fetcher    EventFetcher
	deliverers []Deliverer
	runs       repository.RunRepo
	format     models.ReportFormat
	loc        *time.Location
	log        *logger.Logger
	now        func() time.Time
}

func NewCollectionJob(cfg config.Config, fetcher EventFetcher, runs repository.RunRepo, log *logger.Logger, deliverers ...Deliverer) *CollectionJob {
	if log == nil {
		log = logger.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &CollectionJob{
		fetcher:    fetcher,
		deliverers: deliverers,
		runs:       runs,
		format:     cfg.ReportFormat,
		loc:        loc,
		log:        log,
		now:        time.Now,
	}
}

// Run executes the job once. Every configured channel is tried even when
// another one fails; the returned error joins all failures.
func (j *CollectionJob) Run(ctx context.Context, scheduledAt time.Time) error {
	started := j.now()
	window := ComputeReportWindow(started.In(j.loc))
	run := models.CollectionRun{
		ID:          uuid.NewString(),
		ScheduledAt: scheduledAt.UTC(),
		StartedAt:   started.UTC(),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Format:      j.format,
	}
	log := j.log.With("run_id", run.ID)
	log.Infow("job_started",
		"window_start", window.StartParam(), "window_end", window.EndParam(), "format", j.format)

	payload, err := j.fetcher.Fetch(ctx, window, j.format.FetchFormat())
	if err != nil {
		run.Status = models.RunFetchFailed
		run.Error = err.Error()
		j.finish(ctx, log, run)
		return fmt.Errorf("collect events %s - %s: %w", window.StartParam(), window.EndParam(), err)
	}
	run.PayloadBytes = len(payload.Body)
	run.Truncated = payload.Truncated

	var errs []error
	for _, d := range j.deliverers {
		if err := d.Deliver(ctx, payload, window, j.format); err != nil {
			var derr *delivery.Error
			if !errors.As(err, &derr) {
				err = &delivery.Error{Channel: d.Name(), Err: err}
			}
			metrics.Deliveries.WithLabelValues(d.Name(), metrics.OutcomeFailure).Inc()
			log.Errorw("delivery_failed", "channel", d.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		metrics.Deliveries.WithLabelValues(d.Name(), metrics.OutcomeSuccess).Inc()
		log.Infow("delivery_succeeded", "channel", d.Name())
	}

	if err := errors.Join(errs...); err != nil {
		run.Status = models.RunDeliveryFailed
		run.Error = err.Error()
		j.finish(ctx, log, run)
		return err
	}
	run.Status = models.RunSucceeded
	j.finish(ctx, log, run)
	return nil
}

// finish stamps and stores the run. Storage failures are only logged.
func (j *CollectionJob) finish(ctx context.Context, log *logger.Logger, run models.CollectionRun) {
	finished := j.now()
	run.FinishedAt = finished.UTC()

	metrics.Jobs.WithLabelValues(string(run.Status)).Inc()
	if run.Status == models.RunSucceeded {
		metrics.LastSuccess.Set(float64(finished.Unix()))
	}
	log.Infow("job_finished", "status", run.Status,
		"payload_bytes", run.PayloadBytes, "truncated", run.Truncated,
		"duration", finished.Sub(run.StartedAt).Round(time.Millisecond).String())

	if j.runs == nil {
		return
	}
	if err := j.runs.Append(context.WithoutCancel(ctx), run); err != nil {
		log.Warnw("run_record_failed", "err", err)
	}
}
