package expcache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is one cached value plus its expiration state. Everything set at
// construction is immutable; lastAccess, reason, stops and callbacks change
// concurrently and are guarded by atomics or mu.
type entry[V any] struct {
	key      string
	value    V
	created  time.Time
	abs      time.Time
	hasAbs   bool
	sliding  time.Duration
	priority Priority
	size     int64
	triggers []Trigger

	lastAccess atomic.Int64 // unix nanos
	reason     atomic.Uint32
	dispatched atomic.Bool

	mu        sync.Mutex
	stops     []func()
	callbacks []evictionCallback[V]
}

func newEntry[V any](c *Creation[V], value V, now time.Time) *entry[V] {
	e := &entry[V]{
		key:       c.key,
		value:     value,
		created:   now,
		abs:       c.abs,
		hasAbs:    c.hasAbs,
		sliding:   c.sliding,
		priority:  c.priority,
		size:      c.size,
		triggers:  c.triggers,
		callbacks: c.callbacks,
	}
	e.lastAccess.Store(now.UnixNano())
	return e
}

func (e *entry[V]) touch(now time.Time) { e.lastAccess.Store(now.UnixNano()) }

func (e *entry[V]) lastAccessed() time.Time { return time.Unix(0, e.lastAccess.Load()) }

func (e *entry[V]) evictionReason() EvictionReason { return EvictionReason(e.reason.Load()) }

func (e *entry[V]) expired() bool { return e.reason.Load() != uint32(EvictionNone) }

// checkExpired reports whether the entry is dead at now, marking it on the
// first failing rule: absolute deadline, then sliding window, then triggers.
// It calls Trigger.Expired and trigger stop funcs, so it must not run under
// the store lock.
func (e *entry[V]) checkExpired(now time.Time) bool {
	if e.expired() {
		return true
	}
	switch {
	case e.timeExpired(now):
		e.markExpired(EvictionExpired)
	case anyExpired(e.triggers):
		e.markExpired(EvictionTriggered)
	default:
		return false
	}
	return true
}

// timeExpired checks the absolute and sliding rules only. No side effects.
func (e *entry[V]) timeExpired(now time.Time) bool {
	if e.hasAbs && !now.Before(e.abs) {
		return true
	}
	return e.sliding > 0 && now.Sub(e.lastAccessed()) >= e.sliding
}

// markExpired records reason if the entry is still live and detaches its
// triggers. The first caller wins; later calls are no-ops and return false.
func (e *entry[V]) markExpired(reason EvictionReason) bool {
	if !e.setReason(reason) {
		return false
	}
	e.detachTriggers()
	return true
}

// setReason is the lock-safe half of markExpired: the caller must run
// detachTriggers once the store lock is released.
func (e *entry[V]) setReason(reason EvictionReason) bool {
	return e.reason.CompareAndSwap(uint32(EvictionNone), uint32(reason))
}

func (e *entry[V]) detachTriggers() {
	e.mu.Lock()
	stops := e.stops
	e.stops = nil
	e.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// attachTriggers registers onFire with every callback-capable trigger.
// Registration happens without e.mu held so a trigger that fires inline
// cannot deadlock. A trigger may still fire after the entry expired by
// another path; onFire must tolerate that.
func (e *entry[V]) attachTriggers(onFire func()) {
	var stops []func()
	for _, t := range e.triggers {
		if !t.ActiveCallbacks() {
			continue
		}
		stops = append(stops, t.Register(func() {
			e.markExpired(EvictionTriggered)
			onFire()
		}))
	}
	if len(stops) == 0 {
		return
	}

	e.mu.Lock()
	if !e.expired() {
		e.stops = append(e.stops, stops...)
		stops = nil
	}
	e.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// takeCallbacks hands out the eviction callbacks exactly once. ok is false
// for every call after the first.
func (e *entry[V]) takeCallbacks() (cbs []evictionCallback[V], ok bool) {
	if !e.dispatched.CompareAndSwap(false, true) {
		return nil, false
	}
	e.mu.Lock()
	cbs = e.callbacks
	e.callbacks = nil
	e.mu.Unlock()
	return cbs, true
}
