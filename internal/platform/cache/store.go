// Package cache provides the byte caches shared by the gateway: an in-memory
// TTL store, a Redis store, and a Loader that populates either one with at
// most one load per key in flight.
package cache

import (
	"context"
	"time"
)

// Store keeps byte values under string keys for a bounded time.
type Store interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
