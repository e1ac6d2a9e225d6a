// Package delivery hands a fetched event payload to its recipients.
package delivery

import (
	"fmt"

	"ecs_event_collector/internal/models"
)

// Channel names, used in logs, metrics and errors.
const (
	ChannelMail = "mail"
	ChannelS3   = "s3"
)

// compactLayout keeps object names and attachment file names free of colons.
const compactLayout = "20060102T150405Z"

// Error is returned by a channel that failed to deliver a payload.
type Error struct {
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("delivery via %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ObjectName names the payload of window, e.g.
// "ecs/ecs-events-20240301T000000Z-20240302T000000Z.xml".
func ObjectName(prefix string, window models.TimeWindow, format models.ReportFormat) string {
	return fmt.Sprintf("%secs-events-%s-%s.%s",
		prefix,
		window.Start.UTC().Format(compactLayout),
		window.End.UTC().Format(compactLayout),
		format.Extension(),
	)
}
