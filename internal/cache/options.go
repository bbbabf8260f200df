package cache

import (
	"log/slog"
	"time"

	"github.com/oriys/cachesvc/internal/storage"
)

// Defaults is the immutable default write policy of a Cache.
type Defaults struct {
	// MaxAge applies to writes that carry neither Expires nor MaxAge.
	// Zero means such entries never expire.
	MaxAge time.Duration
}

// Option configures a Cache at construction.
type Option func(*settings)

type settings struct {
	session  storage.Backend
	defaults Defaults
	clock    func() time.Time
	metrics  Metrics
	logger   *slog.Logger
}

// WithSessionBackend sets the session-scoped backend preferred when the
// primary backend is missing or disabled.
func WithSessionBackend(b storage.Backend) Option {
	return func(s *settings) {
		s.session = b
	}
}

// WithDefaults sets the default write policy.
func WithDefaults(d Defaults) Option {
	return func(s *settings) {
		s.defaults = d
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.clock = now
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithLogger overrides the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	expires    time.Time
	hasExpires bool
	maxAge     time.Duration
	hasMaxAge  bool
	tag        string
}

// Expires makes the entry expire at t. It takes precedence over MaxAge.
func Expires(t time.Time) SetOption {
	return func(o *setOptions) {
		o.expires = t
		o.hasExpires = true
	}
}

// MaxAge makes the entry expire d after the write.
func MaxAge(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.maxAge = d
		o.hasMaxAge = true
	}
}

// Tag records the entry under the named tag.
func Tag(name string) SetOption {
	return func(o *setOptions) {
		o.tag = name
	}
}

// resolve computes the persisted expiration policy for a write at now.
// Priority: explicit Expires, then MaxAge, then Defaults.MaxAge, then never.
func (o setOptions) resolve(d Defaults, now time.Time) entryOptions {
	var eo entryOptions
	if o.hasMaxAge {
		eo.MaxAge = int64(o.maxAge / time.Second)
	}
	switch {
	case o.hasExpires:
		eo.Expires = o.expires.UnixMilli()
	case o.hasMaxAge:
		eo.Expires = now.Add(o.maxAge).UnixMilli()
	case d.MaxAge > 0:
		eo.MaxAge = int64(d.MaxAge / time.Second)
		eo.Expires = now.Add(d.MaxAge).UnixMilli()
	default:
		eo.Expires = neverExpires
	}
	return eo
}
