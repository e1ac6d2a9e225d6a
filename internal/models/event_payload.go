package models

// EventPayload is the raw response body of one events request.
type EventPayload struct {
	Body   []byte
	Format ReportFormat // JSON or XML, never HTML
	// Truncated is set when the API reported further pages that were not fetched.
	Truncated bool
}
