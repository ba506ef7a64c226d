// Package cache defines the read-through cache contract sitting in front of
// the graph store. Keys are scoped per user so a single user's entries can be
// flushed after any write that touches their graph.
//
// Cache failures never fail a request: callers treat any adapter error other
// than ErrMiss as a miss, log it, and fall through to the graph store.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the default lifetime of a cached retrieval result.
const DefaultTTL = 1800 * time.Second

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Adapter is the cache backend contract. Keys passed in are already
// user-scoped ("{userID}:{operation}:{hash}"); adapters may add their own
// namespace prefix.
type Adapter interface {
	// Get returns the cached value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// FlushUser removes every key scoped to the given user.
	FlushUser(ctx context.Context, userID string) error

	// Close releases backend resources.
	Close() error
}
