package service

import (
	"time"

	"ecs_event_collector/internal/models"
)

const (
	minutesPerDay = 24 * 60
	day           = 24 * time.Hour
)

// ComputeInitialDelay returns how long to wait from now until local midnight
// of now's day plus startOffsetMinutes. A target that already passed moves
// to the same wall-clock time on the next calendar day. Negative offsets
// count back from the following midnight, so -60 means 23:00.
func ComputeInitialDelay(now time.Time, startOffsetMinutes int) time.Duration {
	if startOffsetMinutes < 0 {
		startOffsetMinutes += minutesPerDay
	}
	y, m, d := now.Date()
	target := time.Date(y, m, d, 0, startOffsetMinutes, 0, 0, now.Location())
	if target.Before(now) {
		target = time.Date(y, m, d+1, 0, startOffsetMinutes, 0, 0, now.Location())
	}
	if delay := target.Sub(now); delay > 0 {
		return delay
	}
	return 0
}

// ComputeReportWindow returns the 24h interval ending at local midnight of
// now's day, in UTC.
func ComputeReportWindow(now time.Time) models.TimeWindow {
	y, m, d := now.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UTC()
	return models.TimeWindow{Start: end.Add(-day), End: end}
}

// NextRunAfter returns the tick that follows last. Whole-day periods keep
// the wall-clock time across DST changes. When now is already past several
// ticks, the latest of them is returned so that at most one catch-up run
// happens.
func NextRunAfter(last time.Time, periodMinutes int, now time.Time) time.Time {
	next := advance(last, periodMinutes, 1)
	if !next.Before(now) {
		return next
	}

	if periodMinutes%minutesPerDay != 0 {
		period := time.Duration(periodMinutes) * time.Minute
		missed := int(now.Sub(last) / period)
		return advance(last, periodMinutes, missed)
	}
	for {
		after := advance(next, periodMinutes, 1)
		if after.After(now) {
			return next
		}
		next = after
	}
}

func advance(t time.Time, periodMinutes, times int) time.Time {
	if periodMinutes%minutesPerDay == 0 {
		return t.AddDate(0, 0, times*periodMinutes/minutesPerDay)
	}
	return t.Add(time.Duration(times*periodMinutes) * time.Minute)
}
