// Package spill adds a second tier under an expcache.Store: values the store
// gives up under capacity pressure are demoted into a provider.Provider
// (ristretto, bigcache, redis) and promoted back on the next miss, with their
// priority and expiration intact.
//
// Only EvictionCapacity demotes. Removed, replaced, expired and triggered
// values are stale by definition and are dropped. Triggers cannot be
// persisted, so entries carrying any are never demoted.
//
//	store, _ := expcache.New[User](expcache.Options{})
//	tier, _ := spill.New(store, spill.Options[User]{
//	    Namespace: "user",
//	    Provider:  rp, // e.g. ristretto.New(...)
//	    Codec:     codec.Msgpack[User]{},
//	})
//	u, err := tier.GetOrCreate(ctx, "u:1", nil, loadUser)
package spill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/expcache"
	"github.com/unkn0wn-root/expcache/codec"
	"github.com/unkn0wn-root/expcache/internal/util"
	"github.com/unkn0wn-root/expcache/internal/wire"
	pr "github.com/unkn0wn-root/expcache/provider"
)

const (
	defaultTTL     = 10 * time.Minute
	defaultTimeout = 2 * time.Second
)

type Options[V any] struct {
	// Required
	Namespace string
	Provider  pr.Provider
	Codec     codec.Codec[V]

	Logger  expcache.Logger // nil => NopLogger
	Clock   expcache.Clock  // nil => SystemClock
	TTL     time.Duration   // lifetime of spilled copies without an absolute deadline; 0 => 10m
	Timeout time.Duration   // provider calls made from eviction callbacks; 0 => 2s
}

// Tier fronts a Store with a spill provider. Entries must be created through
// the Tier to be demoted.
type Tier[V any] struct {
	store    *expcache.Store[V]
	ns       string
	provider pr.Provider
	codec    codec.Codec[V]
	log      expcache.Logger
	clock    expcache.Clock
	ttl      time.Duration
	timeout  time.Duration
}

type meta struct {
	priority expcache.Priority
	abs      time.Time
	hasAbs   bool
	sliding  time.Duration
}

func New[V any](store *expcache.Store[V], opts Options[V]) (*Tier[V], error) {
	if store == nil {
		return nil, fmt.Errorf("spill: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("spill: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("spill: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("spill: namespace is required")
	}

	t := &Tier[V]{
		store:    store,
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		log:      opts.Logger,
		clock:    opts.Clock,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
	}
	if t.log == nil {
		t.log = expcache.NopLogger{}
	}
	if t.clock == nil {
		t.clock = expcache.SystemClock{}
	}
	if t.ttl <= 0 {
		t.ttl = defaultTTL
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	return t, nil
}

// GetOrCreate looks in the store, then in the provider, then calls create.
// Provider failures are logged and treated as misses.
func (t *Tier[V]) GetOrCreate(ctx context.Context, key string, link *expcache.Link, create expcache.CreateFunc[V]) (V, error) {
	if v, ok, err := t.store.TryGet(key, link); err != nil || ok {
		return v, err
	}
	v, ok, err := t.promote(ctx, key, link)
	if err != nil {
		return v, err
	}
	if ok {
		return v, nil
	}
	return t.store.Set(key, link, nil, func(c *expcache.Creation[V]) (V, error) {
		v, err := create(c)
		if err != nil {
			return v, err
		}
		t.track(c)
		return v, nil
	})
}

// Remove drops key from both tiers.
func (t *Tier[V]) Remove(ctx context.Context, key string) error {
	if err := t.store.Remove(key); err != nil {
		return err
	}
	return t.provider.Del(ctx, t.storageKey(key))
}

func (t *Tier[V]) promote(ctx context.Context, key string, link *expcache.Link) (V, bool, error) {
	var zero V
	sk := t.storageKey(key)
	raw, ok, err := t.fetch(ctx, sk)
	if err != nil {
		t.log.Warn("spill get failed", expcache.Fields{"key": key, "err": err})
		return zero, false, nil
	}
	if !ok {
		return zero, false, nil
	}

	f, err := wire.Decode(raw)
	if err != nil {
		t.drop(ctx, sk, key, "corrupt")
		return zero, false, nil
	}
	m := meta{
		priority: expcache.Priority(f.Priority),
		hasAbs:   f.HasAbs,
		sliding:  time.Duration(f.Sliding),
	}
	now := t.clock.Now()
	if m.hasAbs {
		m.abs = time.Unix(0, f.AbsNanos)
		if !m.abs.After(now) {
			t.drop(ctx, sk, key, "expired")
			return zero, false, nil
		}
	}
	if m.sliding > 0 && now.Sub(time.Unix(0, f.DemotedAt)) >= m.sliding {
		t.drop(ctx, sk, key, "idle")
		return zero, false, nil
	}
	v, err := t.codec.Decode(f.Payload)
	if err != nil {
		t.drop(ctx, sk, key, "value_decode")
		return zero, false, nil
	}
	if _, taken := t.provider.(pr.Taker); !taken {
		_ = t.provider.Del(ctx, sk) // the store owns it again
	}

	got, err := t.store.Set(key, link, nil, func(c *expcache.Creation[V]) (V, error) {
		if err := applyMeta(c, m); err != nil {
			return zero, err
		}
		t.track(c)
		return v, nil
	})
	if errors.Is(err, expcache.ErrInvalidExpiration) {
		return zero, false, nil // deadline passed while promoting
	}
	if err != nil {
		return zero, false, err
	}
	return got, true, nil
}

func applyMeta[V any](c *expcache.Creation[V], m meta) error {
	if err := c.SetPriority(m.priority); err != nil {
		return err
	}
	if m.hasAbs {
		if err := c.SetAbsoluteExpiration(m.abs); err != nil {
			return err
		}
	}
	if m.sliding > 0 {
		return c.SetSlidingExpiration(m.sliding)
	}
	return nil
}

// track arranges for the entry being created to be demoted on capacity
// eviction. Must run after the user's create so the metadata is final.
func (t *Tier[V]) track(c *expcache.Creation[V]) {
	if len(c.Triggers()) > 0 {
		return
	}
	m := meta{priority: c.Priority(), sliding: c.SlidingExpiration()}
	m.abs, m.hasAbs = c.AbsoluteExpiration()
	_ = c.OnEviction(func(key string, v V, reason expcache.EvictionReason, _ any) {
		if reason == expcache.EvictionCapacity {
			t.demote(key, v, m)
		}
	}, nil)
}

// demote writes v to the provider. The copy never outlives the entry it came
// from: it is capped by the absolute deadline (or the tier TTL without one) and
// by one sliding window from now.
func (t *Tier[V]) demote(key string, v V, m meta) {
	now := t.clock.Now()
	ttl := t.ttl
	f := wire.Frame{Priority: uint8(m.priority), Sliding: int64(m.sliding), DemotedAt: now.UnixNano()}
	if m.hasAbs {
		ttl = m.abs.Sub(now)
		if ttl <= 0 {
			return
		}
		f.HasAbs = true
		f.AbsNanos = m.abs.UnixNano()
	}
	if m.sliding > 0 {
		ttl = min(ttl, m.sliding)
	}
	payload, err := t.codec.Encode(v)
	if err != nil {
		t.log.Warn("spill encode failed", expcache.Fields{"key": key, "err": err})
		return
	}
	f.Payload = payload
	b := wire.Encode(f)

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	ok, err := t.provider.Set(ctx, t.storageKey(key), b, int64(len(b)), ttl)
	switch {
	case err != nil:
		t.log.Warn("spill set failed", expcache.Fields{"key": key, "err": err})
	case !ok:
		t.log.Debug("spill set rejected by provider (pressure)", expcache.Fields{"key": key})
	}
}

// fetch reads a spilled frame, consuming it when the provider supports that.
func (t *Tier[V]) fetch(ctx context.Context, sk string) ([]byte, bool, error) {
	if tk, ok := t.provider.(pr.Taker); ok {
		return tk.Take(ctx, sk)
	}
	return t.provider.Get(ctx, sk)
}

func (t *Tier[V]) drop(ctx context.Context, sk, key, reason string) {
	_ = t.provider.Del(ctx, sk)
	t.log.Debug("spill entry dropped", expcache.Fields{"key": key, "reason": reason})
}

func (t *Tier[V]) storageKey(key string) string {
	return util.StorageKey("spill", t.ns, key)
}
