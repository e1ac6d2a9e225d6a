package service

import (
	"context"
	"time"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/models"
	"ecs_event_collector/internal/repository"
)

// RunHistory exposes the stored outcome of past jobs.
type RunHistory interface {
	List(ctx context.Context, limit int) ([]models.CollectionRun, error)
	Last(ctx context.Context) (models.CollectionRun, bool, error)
}

// Job is one collection run for the tick planned at scheduledAt.
type Job interface {
	Run(ctx context.Context, scheduledAt time.Time) error
}

// Scheduler runs the job loop until ctx is canceled.
type Scheduler interface {
	Run(ctx context.Context)
}

// Service aggregates the collector's sub-services.
type Service struct {
	History   RunHistory
	Job       Job
	Scheduler Scheduler
}

// NewService wires the repository layer, the fetcher and the delivery
// channels into concrete services.
func NewService(cfg config.Config, repos *repository.Repository, fetcher EventFetcher, log *logger.Logger, deliverers ...Deliverer) *Service {
	job := NewCollectionJob(cfg, fetcher, repos.Runs, log, deliverers...)
	return &Service{
		History:   NewRunHistoryService(repos.Runs),
		Job:       job,
		Scheduler: NewSchedulerService(job, cfg, log),
	}
}
