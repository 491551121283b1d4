package store

import (
	"context"
	"sync"
	"time"

	"garagedata/internal/vehicledata/models"
)

// InMemoryCache is the persistent tier for CACHE_BACKEND=memory. Entries
// live for the life of the process.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[models.Key]models.CacheEntry
}

// NewInMemoryCache creates an empty in-memory cache store.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[models.Key]models.CacheEntry)}
}

// Find returns the entry for key unless it is absent or expired at now.
func (c *InMemoryCache) Find(_ context.Context, key models.Key, now time.Time) (*models.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || entry.IsExpired(now) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Save upserts entry by key.
func (c *InMemoryCache) Save(_ context.Context, entry models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = entry
	return nil
}

// DeleteExpired removes entries that expired before now.
func (c *InMemoryCache) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var deleted int64
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (c *InMemoryCache) Ping(context.Context) error { return nil }
