package service

import (
	"context"

	"ecs_event_collector/internal/models"
	"ecs_event_collector/internal/repository"
)

const (
	DefaultRunLimit = 20
	MaxRunLimit     = 200
)

// RunHistoryService reads the run history for the status API.
type RunHistoryService struct {
	runs repository.RunRepo
}

func NewRunHistoryService(runs repository.RunRepo) *RunHistoryService {
	return &RunHistoryService{runs: runs}
}

// List returns the most recent runs. limit is clamped to [1, MaxRunLimit];
// zero or negative means DefaultRunLimit.
func (s *RunHistoryService) List(ctx context.Context, limit int) ([]models.CollectionRun, error) {
	switch {
	case limit <= 0:
		limit = DefaultRunLimit
	case limit > MaxRunLimit:
		limit = MaxRunLimit
	}
	return s.runs.List(ctx, limit)
}

// Last returns the newest run, or false when nothing ran yet.
func (s *RunHistoryService) Last(ctx context.Context) (models.CollectionRun, bool, error) {
	runs, err := s.runs.List(ctx, 1)
	if err != nil {
		return models.CollectionRun{}, false, err
	}
	if len(runs) == 0 {
		return models.CollectionRun{}, false, nil
	}
	return runs[0], true, nil
}
