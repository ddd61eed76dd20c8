package expcache

import (
	"fmt"
	"time"
)

type evictionCallback[V any] struct {
	fn    PostEvictionFunc[V]
	state any
}

// Creation configures the entry being built by a CreateFunc. It is only valid
// while the CreateFunc runs; afterwards every setter returns ErrCreationSealed.
// A Creation is not safe for concurrent use.
type Creation[V any] struct {
	key   string
	state any
	clock Clock

	priority  Priority
	abs       time.Time
	hasAbs    bool
	sliding   time.Duration
	size      int64
	hasSize   bool
	triggers  []Trigger
	callbacks []evictionCallback[V]

	sealed bool
}

func newCreation[V any](key string, state any, clock Clock) *Creation[V] {
	return &Creation[V]{key: key, state: state, clock: clock}
}

// Key is the key being populated.
func (c *Creation[V]) Key() string { return c.key }

// State is the caller-supplied state passed to Set.
func (c *Creation[V]) State() any { return c.state }

func (c *Creation[V]) Priority() Priority { return c.priority }

// AbsoluteExpiration returns the current deadline, if any.
func (c *Creation[V]) AbsoluteExpiration() (time.Time, bool) { return c.abs, c.hasAbs }

func (c *Creation[V]) SlidingExpiration() time.Duration { return c.sliding }

// Size returns the declared size, if any.
func (c *Creation[V]) Size() (int64, bool) { return c.size, c.hasSize }

func (c *Creation[V]) SetPriority(p Priority) error {
	if c.sealed {
		return ErrCreationSealed
	}
	c.priority = p
	return nil
}

// SetAbsoluteExpiration expires the entry at t. t must be after now.
// Repeated calls keep the earliest deadline.
func (c *Creation[V]) SetAbsoluteExpiration(t time.Time) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if !t.After(c.clock.Now()) {
		return &ExpirationError{Op: "absolute expiration", At: t}
	}
	c.tightenAbs(t)
	return nil
}

// SetExpiresAfter expires the entry d from now. d must be positive.
func (c *Creation[V]) SetExpiresAfter(d time.Duration) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if d <= 0 {
		return &ExpirationError{Op: "relative expiration", Duration: d}
	}
	c.tightenAbs(c.clock.Now().Add(d))
	return nil
}

// SetSlidingExpiration expires the entry after d without a successful read.
// It does not extend an absolute expiration.
func (c *Creation[V]) SetSlidingExpiration(d time.Duration) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if d <= 0 {
		return &ExpirationError{Op: "sliding expiration", Duration: d}
	}
	c.sliding = d
	return nil
}

// SetSize declares the approximate size charged against Options.SizeLimit.
func (c *Creation[V]) SetSize(n int64) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	c.size = n
	c.hasSize = true
	return nil
}

// Triggers returns the triggers added so far, including inherited ones.
func (c *Creation[V]) Triggers() []Trigger { return c.triggers }

func (c *Creation[V]) AddTrigger(ts ...Trigger) error {
	if c.sealed {
		return ErrCreationSealed
	}
	c.triggers = append(c.triggers, ts...)
	return nil
}

// OnEviction registers fn to run once after the entry leaves the store.
func (c *Creation[V]) OnEviction(fn PostEvictionFunc[V], state any) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if fn != nil {
		c.callbacks = append(c.callbacks, evictionCallback[V]{fn: fn, state: state})
	}
	return nil
}

// Inherit copies the triggers and deadline collected by l. Unlike
// SetAbsoluteExpiration it accepts deadlines already in the past; such an
// entry is returned to the caller but never cached.
func (c *Creation[V]) Inherit(l *Link) error {
	if c.sealed {
		return ErrCreationSealed
	}
	if l == nil {
		return nil
	}
	c.triggers = append(c.triggers, l.Triggers()...)
	if abs, ok := l.AbsoluteExpiration(); ok {
		c.tightenAbs(abs)
	}
	return nil
}

func (c *Creation[V]) tightenAbs(t time.Time) {
	if !c.hasAbs || t.Before(c.abs) {
		c.abs = t
		c.hasAbs = true
	}
}
