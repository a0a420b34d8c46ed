// Package logging provides the structured logger shared by the launcher
// packages.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// Logger is the logging surface the launcher packages depend on.
// *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// New returns a logger writing to w. verbose enables debug output.
func New(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "starter",
		ReportTimestamp: true,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Debug(msg interface{}, keyvals ...interface{}) {}
func (nopLogger) Info(msg interface{}, keyvals ...interface{})  {}
func (nopLogger) Warn(msg interface{}, keyvals ...interface{})  {}
func (nopLogger) Error(msg interface{}, keyvals ...interface{}) {}
