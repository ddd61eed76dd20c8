package expcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/expcache/pressure"
)

// CreateFunc produces the value for a key. It runs outside any store lock and may
// configure the entry through c (priority, expiration, triggers, callbacks).
type CreateFunc[V any] func(c *Creation[V]) (V, error)

// PostEvictionFunc is called once after an entry has left the store, for any reason.
// It runs on a background goroutine; a panic inside it is recovered and discarded.
type PostEvictionFunc[V any] func(key string, value V, reason EvictionReason, state any)

// Clock supplies the current time. Inject a fake one for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Cache is the public surface of Store. Kept as an interface so callers can wrap it.
type Cache[V any] interface {
	Set(key string, link *Link, state any, create CreateFunc[V]) (V, error)
	TryGet(key string, link *Link) (v V, ok bool, err error)
	GetOrCreate(key string, link *Link, state any, create CreateFunc[V]) (V, error)
	Remove(key string) error
	Compact(fraction float64) error

	Count() int
	Stats() Stats
	Close(context.Context) error
}

// Options tune a Store. The zero value is usable.
type Options struct {
	Clock  Clock  // nil => SystemClock
	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// How often lookups may kick off a background sweep of expired entries. 0 => 1m.
	ExpirationScanFrequency time.Duration

	DisableMemoryPressure bool              // default false => compact on memory pressure
	PressureNotifier      pressure.Notifier // nil => GC-driven, see pressure.DefaultThreshold
	PressureCompaction    float64           // fraction compacted per pressure signal; 0 => 0.10

	// Upper bound on the sum of entry sizes. 0 => unlimited (sizes optional).
	SizeLimit int64
	// Fraction compacted in the background after an insert overflows SizeLimit. 0 => 0.05.
	CompactionPercentage float64
}

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Entries int
	Size    int64
	Hits    uint64
	Misses  uint64
}

var _ Cache[struct{}] = (*Store[struct{}])(nil)
