// Package inmemory provides a map-backed cache.Adapter for tests and
// single-process deployments. Entries expire lazily on read.
package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/omnii-ai/brainmem/pkg/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Adapter implements cache.Adapter using an in-memory map.
type Adapter struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is swappable for tests.
	now func() time.Time
}

// NewAdapter creates an empty in-memory cache adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (a *Adapter) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	e, ok := a.entries[key]
	a.mu.RUnlock()

	if !ok {
		return nil, cache.ErrMiss
	}

	if a.now().After(e.expiresAt) {
		a.mu.Lock()
		delete(a.entries, key)
		a.mu.Unlock()
		return nil, cache.ErrMiss
	}

	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

func (a *Adapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries[key] = entry{value: cp, expiresAt: a.now().Add(ttl)}
	return nil
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, key)
	return nil
}

func (a *Adapter) FlushUser(_ context.Context, userID string) error {
	prefix := userID + ":"

	a.mu.Lock()
	defer a.mu.Unlock()

	for key := range a.entries {
		if strings.HasPrefix(key, prefix) {
			delete(a.entries, key)
		}
	}

	return nil
}

// Close is a no-op for the in-memory adapter.
func (a *Adapter) Close() error {
	return nil
}

// SetNow overrides the clock, for tests.
func (a *Adapter) SetNow(now func() time.Time) {
	a.now = now
}

// Len returns the number of live entries, for tests and stats.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
