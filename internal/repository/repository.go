package repository

import (
	"context"
	"database/sql"

	"ecs_event_collector/internal/models"
)

// RunRepo persists the outcome of every collection job.
type RunRepo interface {
	Append(ctx context.Context, run models.CollectionRun) error
	List(ctx context.Context, limit int) ([]models.CollectionRun, error)
}

type Repository struct {
	Runs RunRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Runs: NewRunSQLite(db),
	}
}
