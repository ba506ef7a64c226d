// Package redis provides a Redis-backed cache.Adapter. Keys are namespaced
// under "brainmem:" so a user's entries can be found and flushed with a
// prefix scan.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnii-ai/brainmem/pkg/cache"
)

const keyPrefix = "brainmem"

// Adapter implements cache.Adapter using Redis.
type Adapter struct {
	client *redis.Client
}

// NewAdapter creates a Redis cache adapter from a connection URL, e.g.
// "redis://localhost:6379".
func NewAdapter(redisURL string) (*Adapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &Adapter{client: redis.NewClient(opts)}, nil
}

// NewAdapterWithClient wraps an existing client, for tests and shared pools.
func NewAdapterWithClient(client *redis.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) namespaced(key string) string {
	return keyPrefix + ":" + key
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := a.client.Get(ctx, a.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache key: %w", err)
	}

	return value, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := a.client.Set(ctx, a.namespaced(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, a.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}

	return nil
}

// FlushUser scans for every key scoped to the user and deletes them.
// Coarse per-user invalidation is the correctness requirement; per-key
// deletion would only be an optimization.
func (a *Adapter) FlushUser(ctx context.Context, userID string) error {
	pattern := a.namespaced(userID + ":*")

	iter := a.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := a.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key %s: %w", iter.Val(), err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan user cache keys: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}
