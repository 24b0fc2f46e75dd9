// Package logger defines the logging surface shared by the control loop and
// its adapters.
package logger

// Fields are structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger writes leveled messages. Implementations must be safe for use by
// the loop goroutine and the event consumers at the same time.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// With returns a child logger that adds fields to every line, e.g. the
	// session id.
	With(fields Fields) Logger
}
