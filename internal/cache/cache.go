package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores rendered chart output by key.
// Get returns cached bytes if present and not expired, Set stores bytes with TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultMaxEntries bounds an InMemoryCache built with NewInMemoryCache.
const DefaultMaxEntries = 1024

// InMemoryCache implements Cache using an in-memory map with TTL-based expiration.
// Expired entries are removed on access and whenever Set needs room; the map
// never holds more than maxEntries keys. Safe for concurrent use.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]cacheEntry
	now        func() time.Time
	maxEntries int
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache holding at most DefaultMaxEntries keys.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithLimit(DefaultMaxEntries)
}

// NewInMemoryCacheWithLimit creates an in-memory cache holding at most
// maxEntries keys. Non-positive values fall back to DefaultMaxEntries.
func NewInMemoryCacheWithLimit(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryCache{
		data:       make(map[string]cacheEntry),
		now:        time.Now,
		maxEntries: maxEntries,
	}
}

// Get retrieves the cached bytes for key if present and not expired.
// Returns (value, true, nil) on hit, (nil, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a copy of value with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.makeRoomLocked()
	}
	c.data[key] = cacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// makeRoomLocked drops every expired entry, then the entry closest to expiry
// if the cache is still full. Callers hold c.mu.
func (c *InMemoryCache) makeRoomLocked() {
	now := c.now()
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
		}
	}
	if len(c.data) < c.maxEntries {
		return
	}
	var oldest string
	var oldestAt time.Time
	for k, e := range c.data {
		if oldest == "" || e.expiresAt.Before(oldestAt) {
			oldest, oldestAt = k, e.expiresAt
		}
	}
	delete(c.data, oldest)
}

// Len returns the number of entries, expired ones included until they are
// read or pushed out by Set.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
