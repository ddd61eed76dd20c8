package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen      uint64
	bumpedAt time.Time
}

// Local keeps generations in-process.
// With a cleanup interval and retention, keys not bumped for longer than
// retention are forgotten (their generation reads as 0 again), so a
// trigger.Generation observed before the prune reports expired.
type Local struct {
	mu        sync.RWMutex
	gens      map[string]localGen
	retention time.Duration

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{
		gens:      make(map[string]localGen),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

func (s *Local) cleanupLoop(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(s.retention)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[key]
	s.mu.RUnlock()
	return g.gen, nil
}

// SnapshotMany reads all keys under one read lock.
func (s *Local) SnapshotMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	g := s.gens[key]
	g.gen++
	g.bumpedAt = now
	s.gens[key] = g
	s.mu.Unlock()
	return g.gen, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, g := range s.gens {
		if g.bumpedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
