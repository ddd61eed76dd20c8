package expcache

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/expcache/pressure"
)

// maybeScan starts a background sweep when more than scanEvery has passed
// since the last one. Every public operation calls it; there is no timer.
func (s *Store[V]) maybeScan(now time.Time) {
	if s.closed.Load() {
		return
	}
	last := s.lastScan.Load()
	if now.Sub(time.Unix(0, last)) <= s.scanEvery {
		return
	}
	if !s.lastScan.CompareAndSwap(last, now.UnixNano()) {
		return // another caller won this window
	}
	if !s.scanning.CompareAndSwap(false, true) {
		return
	}
	s.spawn(func() {
		defer s.scanning.Store(false)
		s.scanExpired(now)
	})
}

func (s *Store[V]) scanExpired(now time.Time) {
	all := s.snapshot()
	var expired []*entry[V]
	for _, e := range all {
		if e.checkExpired(now) {
			expired = append(expired, e)
		}
	}
	inspected := len(all)

	removed := s.evict(expired)
	s.hooks.Scanned(inspected, removed)
	if removed > 0 {
		s.log.Debug("expiration scan removed entries", Fields{"inspected": inspected, "removed": removed})
	}
}

// Compact removes at least floor(Count()*fraction) entries when enough are
// evictable: expired entries first, then Low, Normal and High priority
// entries, least recently accessed first within a priority. NeverRemove
// entries are never compacted.
func (s *Store[V]) Compact(fraction float64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !validFraction(fraction) {
		return ErrInvalidFraction
	}

	s.mu.RLock()
	total := len(s.entries)
	s.mu.RUnlock()

	target := int64(math.Floor(float64(total) * fraction))
	removed := s.compact(target, countWeight[V])
	s.hooks.Compacted(int(target), removed)
	s.log.Debug("compaction finished", Fields{"fraction": fraction, "target": target, "removed": removed})
	return nil
}

// snapshot copies the live map so expiry checks, which may call into
// triggers, run without the lock.
func (s *Store[V]) snapshot() []*entry[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry[V], 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func countWeight[V any](*entry[V]) int64 { return 1 }

func sizeWeight[V any](e *entry[V]) int64 { return e.size }

type candidate[V any] struct {
	e  *entry[V]
	at int64 // lastAccess at snapshot time
}

// compact evicts entries until their summed weight reaches target and returns
// the number of entries removed.
func (s *Store[V]) compact(target int64, weigh func(*entry[V]) int64) int {
	now := s.clock.Now()
	var expired []*entry[V]
	var buckets [len(compactionOrder)][]candidate[V]

	for _, e := range s.snapshot() {
		if e.checkExpired(now) {
			// entries already taken by Set, Remove or another compaction are theirs to evict
			if r := e.evictionReason(); r == EvictionExpired || r == EvictionTriggered {
				expired = append(expired, e)
			}
			continue
		}
		if i := bucketIndex(e.priority); i >= 0 {
			buckets[i] = append(buckets[i], candidate[V]{e: e, at: e.lastAccess.Load()})
		}
	}

	victims := pickVictims(target, expired, buckets, weigh)
	return s.evict(victims)
}

// pickVictims walks the priority buckets cheapest first. A bucket that fits
// entirely under target is taken whole; the first one that does not is sorted
// by last access and consumed until target is met.
func pickVictims[V any](target int64, expired []*entry[V], buckets [len(compactionOrder)][]candidate[V], weigh func(*entry[V]) int64) []*entry[V] {
	out := expired
	var removed int64
	for _, e := range expired {
		removed += weigh(e)
	}

	for _, b := range buckets {
		if removed >= target {
			break
		}
		var bucketWeight int64
		for _, c := range b {
			bucketWeight += weigh(c.e)
		}
		if removed+bucketWeight <= target {
			for _, c := range b {
				if c.e.markExpired(EvictionCapacity) {
					out = append(out, c.e)
					removed += weigh(c.e)
				}
			}
			continue
		}

		slices.SortStableFunc(b, func(x, y candidate[V]) int { return cmp.Compare(x.at, y.at) })
		for _, c := range b {
			if removed >= target {
				break
			}
			if !c.e.markExpired(EvictionCapacity) {
				continue // replaced or removed since the snapshot
			}
			out = append(out, c.e)
			removed += weigh(c.e)
		}
		break
	}
	return out
}

func bucketIndex(p Priority) int {
	for i, bp := range compactionOrder {
		if bp == p {
			return i
		}
	}
	return -1
}

// scheduleOvercapacityCompaction shrinks the store below
// SizeLimit*(1-CompactionPercentage) in the background.
func (s *Store[V]) scheduleOvercapacityCompaction() {
	if !s.compacting.CompareAndSwap(false, true) {
		return
	}
	s.spawn(func() {
		defer s.compacting.Store(false)

		s.mu.RLock()
		size := s.size
		s.mu.RUnlock()

		lowWater := int64(float64(s.sizeLimit) * (1 - s.overcapFraction))
		if size <= lowWater {
			return
		}
		removed := s.compact(size-lowWater, sizeWeight[V])
		s.hooks.Compacted(int(size-lowWater), removed)
		s.log.Debug("overcapacity compaction finished", Fields{
			"size":    size,
			"limit":   s.sizeLimit,
			"removed": removed,
		})
	})
}

func (s *Store[V]) onPressure(sig pressure.Signal) {
	if s.closed.Load() {
		return
	}
	s.hooks.MemoryPressure(sig.HeapBytes)
	s.log.Info("memory pressure; compacting", Fields{
		"heap":     humanize.IBytes(sig.HeapBytes),
		"fraction": s.pressureFraction,
	})
	s.spawn(func() {
		if err := s.Compact(s.pressureFraction); err != nil {
			s.log.Debug("pressure compaction skipped", Fields{"err": err})
		}
	})
}
