package trigger

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/expcache"
)

// Context expires when its context is done.
type Context struct {
	ctx context.Context
}

var _ expcache.Trigger = (*Context)(nil)

func FromContext(ctx context.Context) *Context { return &Context{ctx: ctx} }

func (t *Context) Expired() bool         { return t.ctx.Err() != nil }
func (t *Context) ActiveCallbacks() bool { return true }

// Register runs fn on its own goroutine once the context is done. The context
// is already done when fn runs, so Expired reports true.
func (t *Context) Register(fn func()) func() {
	stop := context.AfterFunc(t.ctx, fn)
	return func() { stop() }
}

// Signal is a trigger fired explicitly with Fire.
type Signal struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

var _ expcache.Trigger = (*Signal)(nil)

func NewSignal() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{ctx: ctx, cancel: cancel}
}

// Fire expires the signal and runs every registered callback. Only the first
// call has an effect.
func (s *Signal) Fire() { s.once.Do(s.cancel) }

func (s *Signal) Expired() bool         { return s.ctx.Err() != nil }
func (s *Signal) ActiveCallbacks() bool { return true }

func (s *Signal) Register(fn func()) func() {
	stop := context.AfterFunc(s.ctx, fn)
	return func() { stop() }
}
