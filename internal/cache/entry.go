package cache

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	// namespacePrefix is prepended to every caller key before it reaches the backend.
	namespacePrefix = "CacheService"

	// tagIndexKey is the caller-level key reserved for the tag index.
	// It is stored at namespacePrefix + tagIndexKey ("CacheService_tags").
	tagIndexKey = "_tags"

	// neverExpires is the expiration sentinel for entries without a lifetime.
	neverExpires int64 = math.MaxInt64
)

// entryOptions is the persisted expiration policy of an entry.
type entryOptions struct {
	Expires int64 `json:"expires"`          // epoch milliseconds
	MaxAge  int64 `json:"maxAge,omitempty"` // seconds, informational only
}

// entry is the record written to the backend for every key.
type entry struct {
	Value   json.RawMessage `json:"value"`
	Options entryOptions    `json:"options"`
}

// valid reports whether the entry is still alive at now.
func (e *entry) valid(now time.Time) bool {
	return e.Options.Expires > now.UnixMilli()
}

func namespaced(key string) string {
	return namespacePrefix + key
}

func denamespaced(storageKey string) (string, bool) {
	return strings.CutPrefix(storageKey, namespacePrefix)
}

func reserved(key string) bool {
	return key == tagIndexKey
}

// truthy mirrors how Exists judges a decoded value: nil, false, zero and the
// empty string count as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}
