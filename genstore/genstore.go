// Package genstore keeps a generation counter per dependency key. Bumping a
// key's generation invalidates every trigger.Generation created before the
// bump, which in turn expires the cache entries that depend on it.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use Local for in-process invalidation, or Redis to share invalidations across processes.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
