package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oriys/cachesvc/internal/cache"
)

var _ cache.Metrics = (*Metrics)(nil)

// Metrics collects cache events in process and exposes them as JSON.
type Metrics struct {
	Hits           atomic.Int64
	Misses         atomic.Int64
	Expirations    atomic.Int64
	Writes         atomic.Int64
	WritesRejected atomic.Int64
	Removals       atomic.Int64
	TagRemovals    atomic.Int64
	Clears         atomic.Int64

	startTime time.Time
}

// New creates an empty collector.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) Hit()           { m.Hits.Add(1) }
func (m *Metrics) Miss()          { m.Misses.Add(1) }
func (m *Metrics) Expire()        { m.Expirations.Add(1) }
func (m *Metrics) Write()         { m.Writes.Add(1) }
func (m *Metrics) WriteRejected() { m.WritesRejected.Add(1) }
func (m *Metrics) Remove()        { m.Removals.Add(1) }
func (m *Metrics) RemoveTag()     { m.TagRemovals.Add(1) }
func (m *Metrics) Clear()         { m.Clears.Add(1) }

// HitRatio returns hits / (hits + misses), or 0 before any read.
func (m *Metrics) HitRatio() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns current values keyed by name.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds":  int64(time.Since(m.startTime).Seconds()),
		"hits":            m.Hits.Load(),
		"misses":          m.Misses.Load(),
		"hit_ratio":       m.HitRatio(),
		"expirations":     m.Expirations.Load(),
		"writes":          m.Writes.Load(),
		"writes_rejected": m.WritesRejected.Load(),
		"removals":        m.Removals.Load(),
		"tag_removals":    m.TagRemovals.Load(),
		"clears":          m.Clears.Load(),
	}
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}

// Fanout forwards every event to each sink.
type Fanout []cache.Metrics

func (f Fanout) Hit() {
	for _, m := range f {
		m.Hit()
	}
}

func (f Fanout) Miss() {
	for _, m := range f {
		m.Miss()
	}
}

func (f Fanout) Expire() {
	for _, m := range f {
		m.Expire()
	}
}

func (f Fanout) Write() {
	for _, m := range f {
		m.Write()
	}
}

func (f Fanout) WriteRejected() {
	for _, m := range f {
		m.WriteRejected()
	}
}

func (f Fanout) Remove() {
	for _, m := range f {
		m.Remove()
	}
}

func (f Fanout) RemoveTag() {
	for _, m := range f {
		m.RemoveTag()
	}
}

func (f Fanout) Clear() {
	for _, m := range f {
		m.Clear()
	}
}
