package logger

// Logger is the logging port used by the market subsystems.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	// Warnw logs a rejected or stale request with structured fields.
	Warnw(msg string, fields map[string]any)
	Errorf(format string, args ...any)
}
