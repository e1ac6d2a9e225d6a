package models

import "time"

// RunStatus is the outcome of one collection run.
type RunStatus string

const (
	RunSucceeded      RunStatus = "succeeded"
	RunFetchFailed    RunStatus = "fetch_failed"
	RunDeliveryFailed RunStatus = "delivery_failed"
)

// CollectionRun is a single row of the run history.
type CollectionRun struct {
	ID           string       `json:"id"`
	ScheduledAt  time.Time    `json:"scheduled_at"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	WindowStart  time.Time    `json:"window_start"`
	WindowEnd    time.Time    `json:"window_end"`
	Format       ReportFormat `json:"format"`
	Status       RunStatus    `json:"status"`
	Error        string       `json:"error,omitempty"`
	PayloadBytes int          `json:"payload_bytes"`
	Truncated    bool         `json:"truncated,omitempty"`
}
