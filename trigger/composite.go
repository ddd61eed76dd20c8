package trigger

import "github.com/unkn0wn-root/expcache"

// Composite expires when any member does.
type Composite []expcache.Trigger

var _ expcache.Trigger = Composite(nil)

func Any(ts ...expcache.Trigger) Composite { return Composite(ts) }

func (c Composite) Expired() bool {
	for _, t := range c {
		if t.Expired() {
			return true
		}
	}
	return false
}

func (c Composite) ActiveCallbacks() bool {
	for _, t := range c {
		if t.ActiveCallbacks() {
			return true
		}
	}
	return false
}

// Register subscribes fn on every proactive member. fn may run more than once
// if several members fire; expcache tolerates that.
func (c Composite) Register(fn func()) func() {
	var stops []func()
	for _, t := range c {
		if t.ActiveCallbacks() {
			stops = append(stops, t.Register(fn))
		}
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}
