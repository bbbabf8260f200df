package cache

// Metrics receives cache lifecycle events.
type Metrics interface {
	// Hit is called when Get finds a live entry.
	Hit()

	// Miss is called when Get finds nothing.
	Miss()

	// Expire is called when an expired entry is discovered and removed.
	Expire()

	// Write is called after a successful entry write.
	Write()

	// WriteRejected is called when the backend refuses an entry write.
	WriteRejected()

	// Remove is called for every entry removed by key.
	Remove()

	// RemoveTag is called when a tag and its entries are dropped.
	RemoveTag()

	// Clear is called when the whole backend is cleared.
	Clear()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()           {}
func (NoopMetrics) Miss()          {}
func (NoopMetrics) Expire()        {}
func (NoopMetrics) Write()         {}
func (NoopMetrics) WriteRejected() {}
func (NoopMetrics) Remove()        {}
func (NoopMetrics) RemoveTag()     {}
func (NoopMetrics) Clear()         {}
