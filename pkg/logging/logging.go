// Package logging wraps github.com/go-logr/logr so the rest of the archiver
// logs through a small, stable surface instead of depending on logr directly
// everywhere.
package logging

import (
	"github.com/go-logr/logr"
)

const (
	LEVEL_INFO  = 0
	LEVEL_DEBUG = 1
	LEVEL_TRACE = 2
)

// NewLogger wraps an existing logr.Logger. A zero-value logr.Logger is
// replaced with a discarding sink so callers never need to nil-check.
func NewLogger(log logr.Logger) *Logger {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Logger{log: log}
}

// DefaultLogger returns a Logger that discards everything. Save/restore runs
// silently unless a caller supplies its own logger via an option.
func DefaultLogger() *Logger {
	return &Logger{log: logr.Discard()}
}

// Logger narrows logr.Logger to the four verbs the engine needs.
type Logger struct {
	log logr.Logger
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_DEBUG).Info(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_TRACE).Info(msg, keysAndValues...)
}

func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(err, msg, keysAndValues...)
}

// WithName namespaces subsequent log lines by component, e.g. "save",
// "volume", "fec".
func (l *Logger) WithName(name string) *Logger {
	return &Logger{log: l.log.WithName(name)}
}
