package logger

import (
	"sync"
)

// Log levels accepted in the loglevel setting.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the process-wide logger used by cmd.
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return newNopLogger()
}

// ValidLevel reports whether level is one of the known level names.
func ValidLevel(level string) bool {
	switch level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return true
	}
	return false
}
