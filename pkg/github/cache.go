package github

import (
	"sync"
	"time"
)

// Cache stores successful GET replies keyed by request identity. It is
// shared by every component reading through one Client and written only by
// that client.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	resource *Resource
	lastUsed time.Time
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached resource for key and marks it used
func (c *Cache) Get(key string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry.lastUsed = c.now()
	return entry.resource, true
}

// Set stores a resource, overwriting any previous entry for key
func (c *Cache) Set(key string, resource *Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		resource: resource,
		lastUsed: c.now(),
	}
}

// Purge drops entries not used since the given time and returns how many
// were removed. Callers purge at the end of a pass with the pass start time,
// keeping only what the pass actually read.
func (c *Cache) Purge(unusedSince time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.lastUsed.Before(unusedSince) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
