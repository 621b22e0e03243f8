// Package logging holds the process wide zap logger. It is silent until SetLogger is called.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger replaces the logger. Passing nil restores the silent default.
// Safe for concurrent use with L.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// L returns the current logger.
func L() *zap.Logger {
	return loggerPtr.Load()
}

// New builds a development logger when verbose, a production logger otherwise.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
