// Package logger provides a thread-safe, levelled logger backed by logrus.
//
// The API mirrors the small Info/Infof/Error/Errorf surface used throughout
// the module; fields attached with With are carried as structured logrus
// fields so a single login or send can be followed across its steps.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents a logging verbosity level.
type Level int

const (
	// LevelDebug emits all messages.
	LevelDebug Level = iota
	// LevelInfo emits INFO, WARN and ERROR messages.
	LevelInfo
	// LevelWarn emits WARN and ERROR messages.
	LevelWarn
	// LevelError emits only ERROR messages.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") into a
// Level.  Matching is case-insensitive; "warning" is accepted for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is a structured, levelled logger.
//
// Thread-safety: logrus serialises writes to its output with its own mutex,
// and SetLevel is atomic inside logrus, so a Logger and every child returned
// by With may be used from any goroutine.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// New creates a Logger that writes text lines to stderr at the given minimum
// level.
func New(level Level) *Logger {
	return NewWithOutput(os.Stderr, level)
}

// NewWithOutput creates a Logger that writes to w.
func NewWithOutput(w io.Writer, level Level) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(level.logrus())
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

// Discard returns a Logger that drops everything.  It is the default for the
// session client, which must not write anywhere unless asked to.
func Discard() *Logger {
	return NewWithOutput(io.Discard, LevelError)
}

// SetLevel changes the minimum log level at runtime.  Safe for concurrent use.
// The change is visible to every Logger derived from the same root.
func (l *Logger) SetLevel(level Level) {
	l.base.SetLevel(level.logrus())
}

// With returns a child logger that attaches key=value to every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string) { l.entry.Info(msg) }

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
