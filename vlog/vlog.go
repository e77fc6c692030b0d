// Package vlog is the validator's logging collaborator (spec.md §6
// "Logging"): category-tagged, depth-indented messages at DEBUG/INFO/WARNING.
package vlog

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger writes depth-indented, component-tagged log lines on behalf of a
// single validator instance. Depth mirrors the validator's ancestor-chain
// depth, so nested sub-validator activity reads as an indented trace.
type Logger struct {
	entry *logrus.Entry
	depth int
}

// New returns a root Logger tagged with component, backed by base (pass
// logrus.StandardLogger() for the default global logger).
func New(base *logrus.Logger, component string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: base.WithField("component", component)}
}

// WithDepth returns a copy of l scoped to the given ancestor-chain depth.
func (l *Logger) WithDepth(depth int) *Logger {
	return &Logger{entry: l.entry, depth: depth}
}

// WithFields returns a copy of l with additional structured fields attached.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields), depth: l.depth}
}

func (l *Logger) prefix(msg string) string {
	if l.depth <= 0 {
		return msg
	}
	return strings.Repeat("  ", l.depth) + msg
}

// Infof logs at INFO with printf-style formatting, matching the shape
// external collaborators like sigverify.Logger expect.
func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(l.prefix(format), args...)
}

func (l *Logger) Debug(msg string) {
	l.entry.Debug(l.prefix(msg))
}

func (l *Logger) Info(msg string) {
	l.entry.Info(l.prefix(msg))
}

func (l *Logger) Warn(msg string) {
	l.entry.Warn(l.prefix(msg))
}
