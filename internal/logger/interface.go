package logger

import (
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
}

// Sink receives state transition events with the time they happened.
type Sink interface {
	Log(level LogLevel, msg string, ts time.Time)
}
