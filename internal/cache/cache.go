// Package cache implements a tag-aware, expiring key/value cache on top of a
// storage.Backend. Keys are namespaced, expiration is checked lazily on read,
// and a tag index is kept inside the same backend so groups of entries can be
// fetched or invalidated together.
//
// A Cache serializes its own operations. Two Cache instances sharing one
// backend are not coordinated; the last write of the tag index wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oriys/cachesvc/internal/logging"
	"github.com/oriys/cachesvc/internal/storage"
)

var (
	// ErrEmptyKey is returned when a caller passes an empty key.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrReservedKey is returned when a caller addresses the tag index key.
	ErrReservedKey = errors.New("cache: reserved key")
)

// State classifies a key on lookup.
type State int

const (
	StateAbsent State = iota
	StatePresent
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateExpired:
		return "expired"
	default:
		return "absent"
	}
}

// Cache is the orchestrator over a single storage backend.
type Cache struct {
	mu       sync.Mutex
	backend  storage.Backend
	defaults Defaults
	now      func() time.Time
	metrics  Metrics
	logger   *slog.Logger
}

// New selects a backend and returns a Cache bound to it for its lifetime.
// Candidates are tried in order: primary, the session backend given with
// WithSessionBackend, then a new in-memory backend.
func New(ctx context.Context, primary storage.Backend, opts ...Option) *Cache {
	s := settings{
		clock:   time.Now,
		metrics: NoopMetrics{},
		logger:  logging.Op(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Cache{
		defaults: s.defaults,
		now:      s.clock,
		metrics:  s.metrics,
		logger:   s.logger.With("component", "cache"),
	}
	c.backend = selectBackend(ctx, c.logger, primary, s.session)
	c.logger.Info("cache backend selected", "type", c.backend.Type())
	return c
}

// Backend returns the backend chosen at construction.
func (c *Cache) Backend() storage.Backend {
	return c.backend
}

// Set stores value under key. The value must be JSON-encodable.
// A write rejected by the backend is returned as an error and leaves the
// tag index untouched.
func (c *Cache) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	if key == "" {
		return ErrEmptyKey
	}
	if reserved(key) {
		return ErrReservedKey
	}

	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	storageKey := namespaced(key)
	e := entry{Value: raw, Options: o.resolve(c.defaults, c.now())}
	if err := c.writeEntry(ctx, storageKey, e); err != nil {
		c.metrics.WriteRejected()
		return fmt.Errorf("set %q: %w", key, err)
	}
	c.metrics.Write()

	if o.tag != "" {
		if err := c.addToTag(ctx, o.tag, storageKey); err != nil {
			return fmt.Errorf("tag %q as %q: %w", key, o.tag, err)
		}
	}
	return nil
}

// Get returns the value stored under key. Expired entries are removed and
// reported as absent.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	if key == "" || reserved(key) {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, st := c.load(ctx, namespaced(key))
	if st != StatePresent {
		c.metrics.Miss()
		return nil, false
	}

	var v any
	if err := json.Unmarshal(e.Value, &v); err != nil {
		c.logger.Warn("cache entry value undecodable", "key", key, "error", err)
		c.metrics.Miss()
		return nil, false
	}
	c.metrics.Hit()
	return v, true
}

// GetInto decodes the value stored under key into dst. It reports false
// without error when the key is absent or expired.
func (c *Cache) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	if key == "" || reserved(key) {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, st := c.load(ctx, namespaced(key))
	if st != StatePresent {
		c.metrics.Miss()
		return false, nil
	}
	c.metrics.Hit()
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// GetAs is GetInto for a concrete type. A value that does not decode into T
// is reported as absent.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	ok, err := c.GetInto(ctx, key, &v)
	if err != nil || !ok {
		var zero T
		return zero, false
	}
	return v, true
}

// Exists reports whether Get would return a truthy value. A stored false,
// zero, empty string or null is indistinguishable from a missing key; use
// Lookup to tell them apart.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	v, ok := c.Get(ctx, key)
	return ok && truthy(v)
}

// Lookup classifies key without decoding its value. An expired entry is
// removed and reported as StateExpired once; later lookups see StateAbsent.
func (c *Cache) Lookup(ctx context.Context, key string) State {
	if key == "" || reserved(key) {
		return StateAbsent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, st := c.load(ctx, namespaced(key))
	return st
}

// TTL returns the remaining lifetime of key. Entries without expiration
// report -1; absent or expired keys report -2.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, State) {
	if key == "" || reserved(key) {
		return -2, StateAbsent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, st := c.load(ctx, namespaced(key))
	if st != StatePresent {
		return -2, st
	}
	if e.Options.Expires == neverExpires {
		return -1, st
	}
	return time.UnixMilli(e.Options.Expires).Sub(c.now()), st
}

// Remove deletes key and scavenges it from the tag index.
//
// Only the first tag (in lexical order) listing the key is updated; a key
// recorded under several tags stays listed in the others.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if reserved(key) {
		return ErrReservedKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remove(ctx, namespaced(key))
}

// RemoveAll clears the entire backend, tag index included.
func (c *Cache) RemoveAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear backend: %w", err)
	}
	c.metrics.Clear()
	return nil
}

// Keys lists the caller keys currently stored, expired ones included, in
// backend key order. Foreign keys in a shared backend are skipped.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	storageKeys, err := c.storageKeys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(storageKeys))
	for _, sk := range storageKeys {
		k, _ := denamespaced(sk)
		keys = append(keys, k)
	}
	return keys, nil
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	storageKeys, err := c.storageKeys(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, sk := range storageKeys {
		if _, st := c.load(ctx, sk); st == StateExpired {
			purged++
		}
	}
	if purged > 0 {
		c.logger.Debug("purged expired entries", "count", purged)
	}
	return purged, nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Close()
}

// storageKeys returns the namespaced keys owned by this cache, excluding the
// tag index. Backends implementing storage.KeyLister are listed in one call.
func (c *Cache) storageKeys(ctx context.Context) ([]string, error) {
	all, err := c.backendKeys(ctx)
	if err != nil {
		return nil, err
	}
	indexKey := namespaced(tagIndexKey)
	keys := make([]string, 0, len(all))
	for _, sk := range all {
		if sk == indexKey || !strings.HasPrefix(sk, namespacePrefix) {
			continue
		}
		keys = append(keys, sk)
	}
	return keys, nil
}

func (c *Cache) backendKeys(ctx context.Context) ([]string, error) {
	if kl, ok := c.backend.(storage.KeyLister); ok {
		keys, err := kl.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backend keys: %w", err)
		}
		return keys, nil
	}

	n, err := c.backend.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("count backend items: %w", err)
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sk, err := c.backend.Key(ctx, i)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backend key %d: %w", i, err)
		}
		keys = append(keys, sk)
	}
	return keys, nil
}

// load reads and validates the entry at storageKey. An expired entry is
// removed, with tag scavenging, before StateExpired is returned.
func (c *Cache) load(ctx context.Context, storageKey string) (*entry, State) {
	e, ok := c.readEntry(ctx, storageKey)
	if !ok {
		return nil, StateAbsent
	}
	if !e.valid(c.now()) {
		c.metrics.Expire()
		c.logger.Debug("cache entry expired", "key", storageKey)
		if err := c.remove(ctx, storageKey); err != nil {
			c.logger.Warn("remove expired entry", "key", storageKey, "error", err)
		}
		return nil, StateExpired
	}
	return e, StatePresent
}

func (c *Cache) readEntry(ctx context.Context, storageKey string) (*entry, bool) {
	raw, err := c.backend.GetItem(ctx, storageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("backend read failed", "key", storageKey, "error", err)
		}
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("malformed cache entry", "key", storageKey, "error", err)
		return nil, false
	}
	return &e, true
}

func (c *Cache) writeEntry(ctx context.Context, storageKey string, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return c.backend.SetItem(ctx, storageKey, raw)
}

func (c *Cache) remove(ctx context.Context, storageKey string) error {
	if err := c.backend.RemoveItem(ctx, storageKey); err != nil {
		return fmt.Errorf("remove %q: %w", storageKey, err)
	}
	c.metrics.Remove()
	return c.scavenge(ctx, storageKey)
}
