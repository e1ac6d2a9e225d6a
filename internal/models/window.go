package models

import "time"

// timestampLayout renders UTC instants with a literal Z designator.
const timestampLayout = "2006-01-02T15:04:05Z"

// TimeWindow is the half-open collection interval [Start, End), both in UTC.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration is End - Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// StartParam is Start formatted for transmission.
func (w TimeWindow) StartParam() string { return FormatTimestamp(w.Start) }

// EndParam is End formatted for transmission.
func (w TimeWindow) EndParam() string { return FormatTimestamp(w.End) }

// FormatTimestamp renders t as ISO-8601 extended in UTC with second
// precision, e.g. 2024-03-01T00:00:00Z. It never emits +00:00.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
