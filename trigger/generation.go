package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/expcache"
	"github.com/unkn0wn-root/expcache/genstore"
)

const defaultSnapshotTimeout = time.Second

// GenerationOptions tune a Generation trigger.
type GenerationOptions struct {
	// PollEvery throttles generation lookups; between lookups the last answer
	// is reused. 0 => look up on every Expired call.
	PollEvery time.Duration
	// Timeout bounds each lookup. 0 => 1s.
	Timeout time.Duration
	Clock   expcache.Clock // nil => SystemClock
}

// Generation expires once the generation of a dependency key moves past the
// value observed at construction. Bump the key in the GenStore (for example a
// genstore.Redis shared by every replica) to invalidate all entries depending
// on it. Lookup errors count as expired.
//
// Generation is polled only; entries depending on it are dropped on the next
// lookup or sweep.
type Generation struct {
	gs       genstore.GenStore
	key      string
	observed uint64
	every    time.Duration
	timeout  time.Duration
	clock    expcache.Clock

	expired atomic.Bool
	mu      sync.Mutex
	checked time.Time
}

var _ expcache.Trigger = (*Generation)(nil)

// NewGeneration snapshots key's current generation.
func NewGeneration(ctx context.Context, gs genstore.GenStore, key string, opts GenerationOptions) (*Generation, error) {
	obs, err := gs.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	g := &Generation{
		gs:       gs,
		key:      key,
		observed: obs,
		every:    opts.PollEvery,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
	}
	if g.timeout <= 0 {
		g.timeout = defaultSnapshotTimeout
	}
	if g.clock == nil {
		g.clock = expcache.SystemClock{}
	}
	g.checked = g.clock.Now()
	return g, nil
}

// Observed is the generation captured at construction.
func (g *Generation) Observed() uint64 { return g.observed }

func (g *Generation) ActiveCallbacks() bool { return false }

func (g *Generation) Register(func()) func() { return func() {} }

func (g *Generation) Expired() bool {
	if g.expired.Load() {
		return true
	}
	if g.every > 0 {
		now := g.clock.Now()
		g.mu.Lock()
		if now.Sub(g.checked) < g.every {
			g.mu.Unlock()
			return false
		}
		g.checked = now
		g.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	cur, err := g.gs.Snapshot(ctx, g.key)
	if err != nil || cur != g.observed {
		g.expired.Store(true)
		return true
	}
	return false
}
