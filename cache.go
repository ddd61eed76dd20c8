package expcache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/expcache/pressure"
)

// Store is an in-process, key-addressed cache with absolute, sliding and
// trigger-based expiration, priority/LRU compaction and post-eviction callbacks.
// It is safe for concurrent use. Create with New; release with Close.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	size    int64 // sum of entry sizes; guarded by mu

	clock            Clock
	log              Logger
	hooks            Hooks
	scanEvery        time.Duration
	sizeLimit        int64
	pressureFraction float64
	overcapFraction  float64

	lastScan   atomic.Int64 // unix nanos
	scanning   atomic.Bool
	compacting atomic.Bool
	hits       atomic.Uint64
	misses     atomic.Uint64

	flight singleflight.Group

	// background work
	closed      atomic.Bool
	bgMu        sync.RWMutex
	bgClosed    bool
	bg          sync.WaitGroup
	unsubscribe func()
	closeOnce   sync.Once
}

type created[V any] struct {
	value V
	e     *entry[V]
}

func New[V any](opts Options) (*Store[V], error) {
	if opts.ExpirationScanFrequency < 0 {
		return nil, fmt.Errorf("expcache: negative expiration scan frequency %s", opts.ExpirationScanFrequency)
	}
	if opts.SizeLimit < 0 {
		return nil, fmt.Errorf("expcache: negative size limit %d", opts.SizeLimit)
	}
	if !validFraction(opts.PressureCompaction) || !validFraction(opts.CompactionPercentage) {
		return nil, ErrInvalidFraction
	}

	s := &Store[V]{
		entries:   make(map[string]*entry[V]),
		sizeLimit: opts.SizeLimit,
	}

	// defaults
	s.clock = coalesce[Clock](opts.Clock, SystemClock{})
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.scanEvery = coalesce(opts.ExpirationScanFrequency, defaultScanFrequency)
	s.pressureFraction = coalesce(opts.PressureCompaction, defaultPressureCompaction)
	s.overcapFraction = coalesce(opts.CompactionPercentage, defaultCompactionPercentage)

	s.lastScan.Store(s.clock.Now().UnixNano())

	if !opts.DisableMemoryPressure {
		n := opts.PressureNotifier
		if n == nil {
			n = pressure.NewGCNotifier(pressure.DefaultThreshold())
		}
		s.unsubscribe = n.Subscribe(s.onPressure)
	}
	return s, nil
}

// Set runs create and caches its result under key, replacing any prior entry.
// The value is returned even when the entry is not cached (already expired or
// over the size limit). If link is non-nil it receives the entry's triggers
// and absolute expiration. An error from create is returned unchanged and
// leaves the store untouched.
func (s *Store[V]) Set(key string, link *Link, state any, create CreateFunc[V]) (V, error) {
	v, _, err := s.set(key, link, state, create)
	return v, err
}

func (s *Store[V]) set(key string, link *Link, state any, create CreateFunc[V]) (V, *entry[V], error) {
	var zero V
	if s.closed.Load() {
		return zero, nil, ErrClosed
	}

	c := newCreation[V](key, state, s.clock)
	v, err := create(c)
	c.sealed = true
	if err != nil {
		return zero, nil, err
	}
	if s.sizeLimit > 0 && !c.hasSize {
		return zero, nil, ErrSizeRequired
	}

	now := s.clock.Now()
	e := newEntry(c, v, now)
	e.checkExpired(now) // triggers are user code; evaluate before locking

	var prior *entry[V]
	inserted, overcap := false, false

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.size -= old.size
		old.setReason(EvictionReplaced)
		prior = old
	}
	if !e.expired() {
		if s.sizeLimit > 0 && s.size+e.size > s.sizeLimit {
			e.setReason(EvictionCapacity)
			overcap = true
		} else {
			s.entries[key] = e
			s.size += e.size
			inserted = true
		}
	}
	s.mu.Unlock()

	if prior != nil {
		prior.detachTriggers()
	}
	if inserted {
		e.attachTriggers(func() { s.onTriggered(e) })
	}
	if prior != nil {
		s.dispatchEvicted(prior)
	}
	if !inserted {
		s.log.Debug("entry not cached", keyFields(key, e.evictionReason()))
		s.dispatchEvicted(e)
	}
	if overcap {
		s.scheduleOvercapacityCompaction()
	}

	link.absorb(e.triggers, e.abs, e.hasAbs)
	s.maybeScan(now)
	return v, e, nil
}

// TryGet returns the live value for key. A successful read refreshes the
// entry's sliding window and feeds its constraints into link. An entry found
// expired is removed and reported as a miss.
func (s *Store[V]) TryGet(key string, link *Link) (V, bool, error) {
	var zero V
	if s.closed.Load() {
		return zero, false, ErrClosed
	}

	now := s.clock.Now()
	var e *entry[V]
	ok := false
	for {
		s.mu.RLock()
		e, ok = s.entries[key]
		s.mu.RUnlock()
		if !ok {
			break
		}
		if !e.checkExpired(now) {
			e.touch(now)
			break
		}
		ok = false
		s.removeEntry(e)
		s.dispatchEvicted(e)
		if e.evictionReason() != EvictionReplaced {
			break
		}
		// lost a race with Set; look up the replacement
	}
	s.maybeScan(now)

	if !ok {
		s.misses.Add(1)
		return zero, false, nil
	}
	s.hits.Add(1)
	link.absorb(e.triggers, e.abs, e.hasAbs)
	return e.value, true, nil
}

// GetOrCreate returns the cached value for key or creates it with Set.
// Concurrent callers missing the same key share a single create call; each
// caller's link still receives the entry's constraints.
func (s *Store[V]) GetOrCreate(key string, link *Link, state any, create CreateFunc[V]) (V, error) {
	if v, ok, err := s.TryGet(key, link); err != nil || ok {
		return v, err
	}
	res, err, _ := s.flight.Do(key, func() (any, error) {
		v, e, err := s.set(key, nil, state, create)
		if err != nil {
			return nil, err
		}
		return created[V]{value: v, e: e}, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	r := res.(created[V])
	link.absorb(r.e.triggers, r.e.abs, r.e.hasAbs)
	return r.value, nil
}

// Remove evicts key (reason EvictionRemoved). Missing keys are a no-op.
func (s *Store[V]) Remove(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if ok {
		e.markExpired(EvictionRemoved)
		s.removeEntry(e)
		s.dispatchEvicted(e)
	}
	s.maybeScan(s.clock.Now())
	return nil
}

// Count returns the number of entries in the map, including expired ones not
// yet swept. Count and Stats keep working after Close so callers can report
// final figures; they never mutate the store.
func (s *Store[V]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[V]) Stats() Stats {
	s.mu.RLock()
	st := Stats{Entries: len(s.entries), Size: s.size}
	s.mu.RUnlock()
	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	return st
}

// Close makes the store unavailable, stops listening for memory pressure,
// detaches entry triggers and waits for in-flight sweeps, compactions and
// eviction callbacks (or ctx). Safe to call more than once.
func (s *Store[V]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}

		for _, e := range s.snapshot() {
			e.detachTriggers()
		}

		s.bgMu.Lock()
		s.bgClosed = true
		s.bgMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// removeEntry deletes e only if the map still holds this exact entry for its
// key; a newer value installed by a concurrent Set is left alone.
func (s *Store[V]) removeEntry(e *entry[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(e)
}

func (s *Store[V]) removeLocked(e *entry[V]) bool {
	cur, ok := s.entries[e.key]
	if !ok || cur != e {
		return false
	}
	delete(s.entries, e.key)
	s.size -= e.size
	return true
}

// evict removes every entry in es under one exclusive section, then runs
// their callbacks. It returns how many were still in the map.
func (s *Store[V]) evict(es []*entry[V]) int {
	if len(es) == 0 {
		return 0
	}
	n := 0
	s.mu.Lock()
	for _, e := range es {
		if s.removeLocked(e) {
			n++
		}
	}
	s.mu.Unlock()
	for _, e := range es {
		s.dispatchEvicted(e)
	}
	return n
}

func (s *Store[V]) onTriggered(e *entry[V]) {
	s.removeEntry(e)
	s.dispatchEvicted(e)
}

// dispatchEvicted runs e's post-eviction callbacks on a background goroutine.
// Only the first call per entry does anything.
func (s *Store[V]) dispatchEvicted(e *entry[V]) {
	cbs, ok := e.takeCallbacks()
	if !ok {
		return
	}
	reason := e.evictionReason()
	s.hooks.Evicted(e.key, reason)
	if len(cbs) == 0 {
		return
	}
	s.spawn(func() {
		for _, cb := range cbs {
			s.invokeCallback(e, reason, cb)
		}
	})
}

func (s *Store[V]) invokeCallback(e *entry[V], reason EvictionReason, cb evictionCallback[V]) {
	defer func() {
		if r := recover(); r != nil {
			s.hooks.CallbackPanic(e.key, r)
			f := keyFields(e.key, reason)
			f["panic"] = r
			s.log.Warn("post-eviction callback panicked", f)
		}
	}()
	cb.fn(e.key, e.value, reason, cb.state)
}

// spawn runs fn on a new goroutine. Until Close, the goroutine is tracked so
// Close can wait for it.
func (s *Store[V]) spawn(fn func()) {
	s.bgMu.RLock()
	if s.bgClosed {
		s.bgMu.RUnlock()
		go fn()
		return
	}
	s.bg.Add(1)
	s.bgMu.RUnlock()

	go func() {
		defer s.bg.Done()
		fn()
	}()
}

func validFraction(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}
