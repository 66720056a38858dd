// Package logger provides the structured logging sink used throughout the
// engine, mirroring the teacher's zap-based call sites in table_store.go
// (logger.Error(msg, zap.Error(err))).
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log = mustBuild()
)

func mustBuild() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		// Fall back to a no-op logger rather than panicking at package init.
		return zap.NewNop()
	}
	return l
}

// SetLogger swaps the package-level logger, used by tests and by callers
// that want development-mode (human readable) output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func fields(kv []any) []zap.Field {
	fs := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fs = append(fs, zap.Any(key, kv[i+1]))
	}
	return fs
}

func Debug(msg string, kv ...any) { current().Debug(msg, fields(kv)...) }
func Info(msg string, kv ...any)  { current().Info(msg, fields(kv)...) }
func Warn(msg string, kv ...any)  { current().Warn(msg, fields(kv)...) }
func Error(msg string, kv ...any) { current().Error(msg, fields(kv)...) }

// Sync flushes any buffered log entries, intended to be called on shutdown.
func Sync() error {
	return current().Sync()
}
