// Package obslog provides a thread-safe, levelled logger for the engine and
// its cmd/demo entry point, backed by logrus.
package obslog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the subset of severities the engine actually emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

// Logger wraps a *logrus.Logger with a settable minimum level, guarded by
// its own mutex so SetLevel may race with logging calls safely.
type Logger struct {
	base *logrus.Logger
	mu   sync.RWMutex
}

// New creates a Logger writing to stderr in text format at the given
// minimum level.
func New(level Level) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(toLogrusLevel(level))
	return &Logger{base: base}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetLevel(toLogrusLevel(level))
}

func (l *Logger) Debug(msg string)              { l.entry().Debug(msg) }
func (l *Logger) Debugf(format string, a ...any) { l.entry().Debugf(format, a...) }
func (l *Logger) Info(msg string)                { l.entry().Info(msg) }
func (l *Logger) Infof(format string, a ...any)  { l.entry().Infof(format, a...) }
func (l *Logger) Error(msg string)               { l.entry().Error(msg) }
func (l *Logger) Errorf(format string, a ...any) { l.entry().Errorf(format, a...) }

// WithField returns a structured entry, for call sites that want to attach
// context (host, attempt, status) to a single log line.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.entry().WithField(key, value)
}

func (l *Logger) entry() *logrus.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return logrus.NewEntry(l.base)
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
