package config

import "fmt"

// Error reports missing or invalid settings. It is fatal at startup.
type Error struct {
	Key    string // empty when the problem is not tied to one key
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "config: "
	if e.Key != "" {
		msg += e.Key + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
