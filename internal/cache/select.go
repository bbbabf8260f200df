package cache

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/oriys/cachesvc/internal/storage"
)

// selectBackend returns the first enabled candidate, falling back to a fresh
// in-memory backend which is always enabled.
func selectBackend(ctx context.Context, logger *slog.Logger, candidates ...storage.Backend) storage.Backend {
	for i, b := range candidates {
		if isNil(b) {
			continue
		}
		if b.IsEnabled(ctx) {
			if i > 0 {
				logger.Warn("cache backend fallback", "selected", b.Type())
			}
			return b
		}
		logger.Warn("cache backend disabled", "type", b.Type())
	}
	logger.Warn("cache backend fallback", "selected", storage.TypeMemory)
	return storage.NewMemory()
}

// isNil catches typed nil pointers stored in the interface.
func isNil(b storage.Backend) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
