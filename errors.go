package expcache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by every operation on a Store after Close.
	ErrClosed = errors.New("expcache: store unavailable")
	// ErrCreationSealed is returned when a Creation is used after its CreateFunc returned.
	ErrCreationSealed = errors.New("expcache: creation already committed")
	// ErrSizeRequired is returned by Set when Options.SizeLimit is set and the entry has no size.
	ErrSizeRequired = errors.New("expcache: entry size required when size limit is set")
	// ErrInvalidSize is returned by Creation.SetSize for negative sizes.
	ErrInvalidSize = errors.New("expcache: entry size must not be negative")
	// ErrInvalidFraction is returned by Compact for fractions outside [0, 1].
	ErrInvalidFraction = errors.New("expcache: compaction fraction must be within [0, 1]")
	// ErrInvalidExpiration is the base of every *ExpirationError.
	ErrInvalidExpiration = errors.New("expcache: invalid expiration")
)

// ExpirationError reports an expiration setting rejected by a Creation.
type ExpirationError struct {
	Op       string
	Duration time.Duration // relative and sliding spans
	At       time.Time     // absolute deadlines
}

func (e *ExpirationError) Error() string {
	switch {
	case !e.At.IsZero():
		return fmt.Sprintf("expcache: %s: %s is not in the future", e.Op, e.At.Format(time.RFC3339Nano))
	default:
		return fmt.Sprintf("expcache: %s: span must be positive, got %s", e.Op, e.Duration)
	}
}

func (e *ExpirationError) Unwrap() error { return ErrInvalidExpiration }
