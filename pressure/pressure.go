// Package pressure delivers memory-pressure signals to caches so they can shed
// entries. The Go runtime has no low-memory callback; GCNotifier approximates
// one by observing completed GC cycles and the live heap size.
package pressure

import (
	"math"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sync"
	"sync/atomic"
)

// Signal describes one pressure event.
type Signal struct {
	HeapBytes uint64 // live heap objects at the time of the signal
}

// Notifier fans pressure signals out to subscribers.
type Notifier interface {
	// Subscribe registers fn. The returned func removes it; calling it more
	// than once is safe.
	Subscribe(fn func(Signal)) (unsubscribe func())
}

type subscribers struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(Signal)
}

func (s *subscribers) add(fn func(Signal)) (id uint64, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(Signal))
	}
	s.next++
	s.fns[s.next] = fn
	return s.next, len(s.fns) == 1
}

func (s *subscribers) remove(id uint64) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fns, id)
	return len(s.fns) == 0
}

func (s *subscribers) snapshot() []func(Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(Signal), 0, len(s.fns))
	for _, fn := range s.fns {
		out = append(out, fn)
	}
	return out
}

// Manual is a Notifier driven by the host (tests, cgroup watchers, admin endpoints).
type Manual struct {
	subs subscribers
}

var _ Notifier = (*Manual)(nil)

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Subscribe(fn func(Signal)) func() {
	id, _ := m.subs.add(fn)
	var once sync.Once
	return func() { once.Do(func() { m.subs.remove(id) }) }
}

// Notify calls every subscriber synchronously with sig.
func (m *Manual) Notify(sig Signal) {
	for _, fn := range m.subs.snapshot() {
		fn(sig)
	}
}

const heapMetric = "/memory/classes/heap/objects:bytes"

// GCNotifier signals subscribers after every completed GC cycle in which the
// live heap is at or above Threshold (0 signals after every cycle).
//
// Detection uses a sentinel object whose finalizer re-arms itself; the
// finalizer only schedules work and never blocks the finalizer goroutine.
type GCNotifier struct {
	Threshold uint64

	subs  subscribers
	armed atomic.Bool
	epoch atomic.Uint64 // bumped on disarm so stale sentinels stop re-arming
}

var _ Notifier = (*GCNotifier)(nil)

func NewGCNotifier(threshold uint64) *GCNotifier {
	return &GCNotifier{Threshold: threshold}
}

// Subscribe registers fn and arms GC detection on the first subscriber.
func (n *GCNotifier) Subscribe(fn func(Signal)) func() {
	id, first := n.subs.add(fn)
	if first && n.armed.CompareAndSwap(false, true) {
		n.arm(n.epoch.Load())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if n.subs.remove(id) && n.armed.CompareAndSwap(true, false) {
				n.epoch.Add(1)
			}
		})
	}
}

type sentinel struct {
	n     *GCNotifier
	epoch uint64
	_     [16]byte // tiny zero-size objects may be batched; keep it a real allocation
}

func (n *GCNotifier) arm(epoch uint64) {
	s := &sentinel{n: n, epoch: epoch}
	runtime.SetFinalizer(s, func(s *sentinel) {
		if s.n.epoch.Load() != s.epoch {
			return
		}
		go s.n.fire()
		s.n.arm(s.epoch)
	})
}

func (n *GCNotifier) fire() {
	heap := HeapBytes()
	if heap < n.Threshold {
		return
	}
	sig := Signal{HeapBytes: heap}
	for _, fn := range n.subs.snapshot() {
		fn(sig)
	}
}

// HeapBytes reports the bytes currently occupied by live and not yet swept
// heap objects.
func HeapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// DefaultThreshold is 80% of the soft memory limit (GOMEMLIMIT) when one is
// set, otherwise 0: every collection counts as pressure.
func DefaultThreshold() uint64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}
	return uint64(limit) / 10 * 8
}
