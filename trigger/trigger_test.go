package trigger_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/expcache"
	"github.com/unkn0wn-root/expcache/genstore"
	"github.com/unkn0wn-root/expcache/trigger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) *expcache.Store[string] {
	t.Helper()
	s, err := expcache.New[string](expcache.Options{DisableMemoryPressure: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSignalEvictsEntry(t *testing.T) {
	s := newStore(t)
	sig := trigger.NewSignal()
	reasons := make(chan expcache.EvictionReason, 1)

	_, err := s.Set("cfg", nil, nil, func(c *expcache.Creation[string]) (string, error) {
		_ = c.AddTrigger(sig)
		_ = c.OnEviction(func(_ string, _ string, r expcache.EvictionReason, _ any) { reasons <- r }, nil)
		return "v1", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	sig.Fire()
	sig.Fire() // idempotent
	if !sig.Expired() {
		t.Fatalf("signal not expired after Fire")
	}
	// context.AfterFunc runs the callback on its own goroutine
	waitUntil(t, func() bool { return s.Count() == 0 })
	if r := <-reasons; r != expcache.EvictionTriggered {
		t.Fatalf("reason = %s", r)
	}
}

func TestSignalStopPreventsCallback(t *testing.T) {
	sig := trigger.NewSignal()
	var calls atomic.Int32
	stop := sig.Register(func() { calls.Add(1) })
	stop()
	sig.Fire()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("stopped registration still ran")
	}
}

func TestContextTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := trigger.FromContext(ctx)
	if tr.Expired() {
		t.Fatalf("expired before cancel")
	}
	fired := make(chan struct{})
	tr.Register(func() { close(fired) })

	cancel()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not run after cancel")
	}
	if !tr.Expired() {
		t.Fatalf("not expired after cancel")
	}
}

func TestCompositeAny(t *testing.T) {
	a, b := trigger.NewSignal(), trigger.NewSignal()
	c := trigger.Any(a, b)
	if c.Expired() || !c.ActiveCallbacks() {
		t.Fatalf("fresh composite: expired=%v active=%v", c.Expired(), c.ActiveCallbacks())
	}

	fired := make(chan struct{}, 2)
	stop := c.Register(func() { fired <- struct{}{} })
	defer stop()

	b.Fire()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("composite did not fire")
	}
	if !c.Expired() {
		t.Fatalf("composite not expired")
	}

	polled := trigger.Any(&trigger.Generation{})
	if polled.ActiveCallbacks() {
		t.Fatalf("composite of polled triggers reports active callbacks")
	}
}

func TestFileTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.txt")

	ft, err := trigger.WatchFile(path)
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer ft.Close()

	s := newStore(t)
	if _, err := s.Set("settings", nil, nil, func(c *expcache.Creation[string]) (string, error) {
		_ = c.AddTrigger(ft)
		return "a: 1", nil
	}); err != nil {
		t.Fatal(err)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if ft.Expired() {
		t.Fatalf("fired on unrelated file")
	}

	if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, ft.Expired)
	waitUntil(t, func() bool { return s.Count() == 0 })

	// late registrations run right away
	late := make(chan struct{})
	ft.Register(func() { close(late) })
	select {
	case <-late:
	case <-time.After(2 * time.Second):
		t.Fatalf("late registration not run")
	}
}

func TestGenerationTrigger(t *testing.T) {
	ctx := context.Background()
	gs := genstore.NewLocal(0, 0)
	t.Cleanup(func() { _ = gs.Close(ctx) })
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	g, err := trigger.NewGeneration(ctx, gs, "user:1", trigger.GenerationOptions{
		PollEvery: time.Second,
		Clock:     clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.ActiveCallbacks() {
		t.Fatalf("generation trigger must be polled")
	}
	if g.Observed() != 0 {
		t.Fatalf("Observed = %d", g.Observed())
	}

	if _, err := gs.Bump(ctx, "user:1"); err != nil {
		t.Fatal(err)
	}
	if g.Expired() {
		t.Fatalf("polled before PollEvery elapsed")
	}
	clock.Advance(time.Second)
	if !g.Expired() {
		t.Fatalf("bump not observed")
	}
	if !g.Expired() {
		t.Fatalf("expiry must stick")
	}
}

func TestGenerationExpiresEntryOnAccess(t *testing.T) {
	ctx := context.Background()
	gs := genstore.NewLocal(0, 0)
	t.Cleanup(func() { _ = gs.Close(ctx) })
	s := newStore(t)

	load := func(c *expcache.Creation[string]) (string, error) {
		g, err := trigger.NewGeneration(ctx, gs, "user:1", trigger.GenerationOptions{})
		if err != nil {
			return "", err
		}
		_ = c.AddTrigger(g)
		return "ada", nil
	}
	if _, err := s.Set("user:1", nil, nil, load); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.TryGet("user:1", nil); !ok {
		t.Fatalf("fresh entry missing")
	}

	if _, err := gs.Bump(ctx, "user:1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.TryGet("user:1", nil); ok {
		t.Fatalf("entry survived a generation bump")
	}
}
