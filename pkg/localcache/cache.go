package localcache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has no value
var ErrNotFound = errors.New("localcache: key not found")

// Cache is a durable string key/value store holding mirrored configuration
// and persisted session values. Writes replace whole values; reads are
// last-write-wins.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryCache is an in-process Cache, used in tests and as the "memory"
// backend
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string]string)}
}

// Get returns the value for key or ErrNotFound
func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key, replacing any previous value
func (c *MemoryCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// Ping always succeeds for the in-memory cache
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory cache
func (c *MemoryCache) Close() error {
	return nil
}
