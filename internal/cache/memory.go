package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultMaxSize = 10000

// MemoryCache is an in-process cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type MemoryCache struct {
	store   *gocache.Cache
	maxSize int
}

// NewMemoryCache creates a cache holding at most maxSize entries.
func NewMemoryCache(maxSize int, defaultTTL time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultLocalTTL
	}
	return &MemoryCache{
		store:   gocache.New(defaultTTL, 2*defaultTTL),
		maxSize: maxSize,
	}
}

// Get retrieves a value from cache. Returns nil, nil on a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, nil
	}
	b, _ := v.([]byte)
	return b, nil
}

// Set stores a value. When the cache is full, expired entries are purged
// first and the write is dropped if there is still no room.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}

	if _, exists := c.store.Get(key); !exists && c.store.ItemCount() >= c.maxSize {
		c.store.DeleteExpired()
		if c.store.ItemCount() >= c.maxSize {
			return nil
		}
	}

	c.store.Set(key, value, ttl)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// Ping always succeeds for an in-process cache.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close flushes all entries.
func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}

// Stats returns the current size and configured capacity.
func (c *MemoryCache) Stats() (size int, capacity int) {
	return c.store.ItemCount(), c.maxSize
}
