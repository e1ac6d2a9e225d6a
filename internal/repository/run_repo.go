package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecs_event_collector/internal/models"

	"github.com/google/uuid"
)

// Times are stored as RFC3339 text in UTC so they sort lexically.
const timeLayout = time.RFC3339

type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite { return &RunSQLite{db: db} }

// Append inserts one collection run. A missing ID is generated.
func (r *RunSQLite) Append(ctx context.Context, run models.CollectionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO collection_runs (id, scheduled_at, started_at, finished_at, window_start, window_end, format, status, error, payload_bytes, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.ScheduledAt),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		formatTime(run.WindowStart),
		formatTime(run.WindowEnd),
		string(run.Format),
		string(run.Status),
		nullString(run.Error),
		run.PayloadBytes,
		run.Truncated,
	)
	if err != nil {
		return fmt.Errorf("insert collection run %s: %w", run.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (r *RunSQLite) List(ctx context.Context, limit int) ([]models.CollectionRun, error) {
	if limit <= 0 {
		return []models.CollectionRun{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scheduled_at, started_at, finished_at, window_start, window_end, format, status, error, payload_bytes, truncated
		FROM collection_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query collection runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.CollectionRun, 0, limit)
	for rows.Next() {
		var run models.CollectionRun
		var scheduled, started, finished, wStart, wEnd string
		var format, status string
		var errText sql.NullString
		if err := rows.Scan(&run.ID, &scheduled, &started, &finished, &wStart, &wEnd,
			&format, &status, &errText, &run.PayloadBytes, &run.Truncated); err != nil {
			return nil, fmt.Errorf("scan collection run: %w", err)
		}
		for _, f := range []struct {
			dst *time.Time
			src string
		}{
			{&run.ScheduledAt, scheduled},
			{&run.StartedAt, started},
			{&run.FinishedAt, finished},
			{&run.WindowStart, wStart},
			{&run.WindowEnd, wEnd},
		} {
			if *f.dst, err = parseTime(f.src); err != nil {
				return nil, fmt.Errorf("collection run %s: %w", run.ID, err)
			}
		}
		run.Format = models.ReportFormat(format)
		run.Status = models.RunStatus(status)
		run.Error = errText.String
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
