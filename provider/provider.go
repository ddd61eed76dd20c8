// Package provider defines the byte store that the spill tier demotes evicted
// values into.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set for a key. The keyspace "spill:<ns>:" is
// owned by the spill tier; foreign writes there are treated as corruption and
// deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). May ignore
	// cost. Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Taker is implemented by providers that can read and delete a key in one
// step. The spill tier uses it on promotion so two processes sharing a remote
// provider do not both revive the same value.
type Taker interface {
	Take(ctx context.Context, key string) ([]byte, bool, error)
}
