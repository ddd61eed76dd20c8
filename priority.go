package expcache

// Priority decides the order in which live entries are given up by Compact.
// The zero value is PriorityNormal.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
	// PriorityNeverRemove entries are skipped by compaction. They still expire.
	PriorityNeverRemove
)

// compactionOrder lists the evictable priorities, cheapest first.
var compactionOrder = [...]Priority{PriorityLow, PriorityNormal, PriorityHigh}

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityNeverRemove:
		return "never_remove"
	default:
		return "unknown"
	}
}

// EvictionReason is the terminal cause an entry left the store.
type EvictionReason uint32

const (
	EvictionNone EvictionReason = iota
	// Removed explicitly by the caller.
	EvictionRemoved
	// Overwritten by a newer Set for the same key.
	EvictionReplaced
	// Absolute or sliding expiration passed.
	EvictionExpired
	// A trigger reported expiration.
	EvictionTriggered
	// Given up by compaction or refused by the size limit.
	EvictionCapacity
)

func (r EvictionReason) String() string {
	switch r {
	case EvictionNone:
		return "none"
	case EvictionRemoved:
		return "removed"
	case EvictionReplaced:
		return "replaced"
	case EvictionExpired:
		return "expired"
	case EvictionTriggered:
		return "triggered"
	case EvictionCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}
