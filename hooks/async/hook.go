// Package asynchook moves expcache.Hooks calls off the caller's goroutine.
// Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EvictedEvery: 10, // sample logs: ~every 10th eviction
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := expcache.New[User](expcache.Options{
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/expcache"
)

type Hooks struct {
	inner   expcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ expcache.Hooks = (*Hooks)(nil)

func New(inner expcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Evicted(k string, r expcache.EvictionReason) { h.try(func() { h.inner.Evicted(k, r) }) }
func (h *Hooks) Compacted(req, rm int)                     { h.try(func() { h.inner.Compacted(req, rm) }) }
func (h *Hooks) Scanned(in, rm int)                        { h.try(func() { h.inner.Scanned(in, rm) }) }
func (h *Hooks) MemoryPressure(b uint64)                   { h.try(func() { h.inner.MemoryPressure(b) }) }
func (h *Hooks) CallbackPanic(k string, rec any) {
	h.try(func() { h.inner.CallbackPanic(k, rec) })
}
