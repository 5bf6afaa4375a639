package responsecache

import (
	"log/slog"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

// GetLogger returns the package-level logger used by middlewares that were
// not given one with WithLogger. It defaults to slog.Default().
func GetLogger() *slog.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// SetLogger replaces the package-level logger. Passing nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	defaultLogger.Store(l)
}

// log returns the logger for the Middleware.
// If a logger is configured on the Middleware, it returns that logger.
// Otherwise, it falls back to the package-level logger.
func (m *Middleware) log() *slog.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return GetLogger()
}
