package expcache

import (
	"sync"
	"time"
)

// Link collects expiration constraints from nested cache operations so an
// enclosing value can expire whenever anything it was built from would.
//
// Pass the same Link to every Set/TryGet/GetOrCreate made while computing the
// outer value, then hand it to Creation.Inherit. A Link only ever tightens:
// triggers accumulate and the absolute expiration keeps the earliest deadline.
// A Link is safe for concurrent use.
type Link struct {
	mu       sync.Mutex
	triggers []Trigger
	abs      time.Time
	hasAbs   bool
}

func NewLink() *Link { return &Link{} }

// AddTriggers appends ts. Duplicates are kept.
func (l *Link) AddTriggers(ts ...Trigger) {
	if len(ts) == 0 {
		return
	}
	l.mu.Lock()
	l.triggers = append(l.triggers, ts...)
	l.mu.Unlock()
}

// SetAbsoluteExpiration keeps the earlier of the current deadline and t.
func (l *Link) SetAbsoluteExpiration(t time.Time) {
	l.mu.Lock()
	if !l.hasAbs || t.Before(l.abs) {
		l.abs = t
		l.hasAbs = true
	}
	l.mu.Unlock()
}

// Triggers returns a copy of the collected triggers.
func (l *Link) Triggers() []Trigger {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trigger, len(l.triggers))
	copy(out, l.triggers)
	return out
}

// AbsoluteExpiration returns the earliest collected deadline, if any.
func (l *Link) AbsoluteExpiration() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.abs, l.hasAbs
}

// absorb copies an entry's constraints. A nil Link is a no-op.
func (l *Link) absorb(triggers []Trigger, abs time.Time, hasAbs bool) {
	if l == nil {
		return
	}
	l.AddTriggers(triggers...)
	if hasAbs {
		l.SetAbsoluteExpiration(abs)
	}
}
