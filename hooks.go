package expcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths and from background goroutines.
type Hooks interface {
	// An entry left the store (or was never cached). Called once per entry.
	Evicted(key string, reason EvictionReason)

	// A compaction pass finished. requested is the target count.
	Compacted(requested, removed int)

	// A background expiration sweep finished.
	Scanned(inspected, removed int)

	// A post-eviction callback panicked. The panic was recovered.
	CallbackPanic(key string, recovered any)

	// The memory-pressure notifier fired; a compaction follows.
	MemoryPressure(heapBytes uint64)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Evicted(string, EvictionReason) {}
func (NopHooks) Compacted(int, int)             {}
func (NopHooks) Scanned(int, int)               {}
func (NopHooks) CallbackPanic(string, any)      {}
func (NopHooks) MemoryPressure(uint64)          {}
