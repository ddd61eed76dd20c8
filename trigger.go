package expcache

// Trigger is an external invalidation signal attached to an entry.
// The store polls Expired on lookups and sweeps. When ActiveCallbacks reports
// true, the store also registers a callback so the entry is dropped as soon as
// the trigger fires; implementations must make Expired return true before
// running registered callbacks.
//
// Concrete triggers (signal, context, file watcher, generation) live in the
// trigger package.
type Trigger interface {
	Expired() bool
	ActiveCallbacks() bool
	// Register arranges for fn to run once the trigger fires. The returned stop
	// func detaches fn; it must be safe to call more than once.
	Register(fn func()) (stop func())
}

func anyExpired(ts []Trigger) bool {
	for _, t := range ts {
		if t.Expired() {
			return true
		}
	}
	return false
}
