// Package logger provides the leveled, structured logging primitive used
// throughout seatd. It wraps logrus the same way canonical/lxd's
// shared/logger package does, exposing a Ctx map of structured fields
// instead of free-form printf verbs.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Ctx is a set of structured fields attached to a single log line.
type Ctx map[string]any

// Logger is a thin leveled wrapper around a logrus entry. It is safe for
// concurrent use.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to stderr at the given level ("debug",
// "info", "warn", "error" or "silent"). An unrecognized level falls back
// to "info".
func New(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch level {
	case "silent":
		l.SetLevel(logrus.PanicLevel)
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child Logger with the given fields merged into every
// subsequent line, used to tag a logger with a per-connection
// correlation id.
func (l *Logger) With(ctx Ctx) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(ctx))}
}

func (l *Logger) fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return nil
	}

	f := logrus.Fields{}
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}

	return f
}

// Debug logs msg at debug level with optional structured context.
func (l *Logger) Debug(msg string, ctx ...Ctx) {
	l.entry.WithFields(l.fields(ctx)).Debug(msg)
}

// Info logs msg at info level with optional structured context.
func (l *Logger) Info(msg string, ctx ...Ctx) {
	l.entry.WithFields(l.fields(ctx)).Info(msg)
}

// Warn logs msg at warn level with optional structured context.
func (l *Logger) Warn(msg string, ctx ...Ctx) {
	l.entry.WithFields(l.fields(ctx)).Warn(msg)
}

// Error logs msg at error level with optional structured context.
func (l *Logger) Error(msg string, ctx ...Ctx) {
	l.entry.WithFields(l.fields(ctx)).Error(msg)
}
