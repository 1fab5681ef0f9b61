package asyncmaria

import "github.com/sirupsen/logrus"

// Logger is the logging interface used throughout the client. It is a
// subset of logrus.FieldLogger, chosen so callers can plug in any logger
// that already speaks that shape without an adapter.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

// discardLogger implements Logger as a no-op. It is the default when no
// logger is configured via WithLogger.
type discardLogger struct{}

var _ Logger = discardLogger{}

func (discardLogger) WithField(string, any) Logger     { return discardLogger{} }
func (discardLogger) WithFields(map[string]any) Logger { return discardLogger{} }
func (discardLogger) WithError(error) Logger           { return discardLogger{} }
func (discardLogger) Debug(...any)                     {}
func (discardLogger) Info(...any)                      {}
func (discardLogger) Warn(...any)                      {}
func (discardLogger) Error(...any)                     {}

// logrusLogger adapts a logrus.FieldLogger to the Logger interface.
type logrusLogger struct{ logrus.FieldLogger }

// NewLogrusLogger wraps an existing logrus logger (or entry) for use as
// the client's Logger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return logrusLogger{FieldLogger: l}
}

func (l logrusLogger) WithField(key string, value any) Logger {
	return logrusLogger{FieldLogger: l.FieldLogger.WithField(key, value)}
}

func (l logrusLogger) WithFields(fields map[string]any) Logger {
	return logrusLogger{FieldLogger: l.FieldLogger.WithFields(fields)}
}

func (l logrusLogger) WithError(err error) Logger {
	return logrusLogger{FieldLogger: l.FieldLogger.WithError(err)}
}
