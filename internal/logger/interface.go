package logger

import "codeberg.org/mutker/rfhealth/internal/errors"

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	// With returns a child logger that stamps every event with key=value.
	With(key, value string) Logger
}
