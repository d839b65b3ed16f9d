// SPDX-License-Identifier: MIT

// Package cache provides the install-state cache consulted on every TPA
// message: which packages a user currently has installed. Backed by Redis
// when configured, with an in-memory TTL cache as fallback.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe string-set cache with per-entry TTL.
type Cache interface {
	// Get retrieves a cached set. ok is false if absent or expired.
	Get(key string) (values []string, ok bool)
	// Set stores a set with the specified TTL.
	Set(key string, values []string, ttl time.Duration)
	// Delete removes an entry.
	Delete(key string)
}

type entry struct {
	values     []string
	expiration time.Time
}

// memoryCache is the in-memory implementation of Cache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache creates an in-memory cache. Expired entries are evicted
// lazily on read and by a background janitor running at cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]entry)}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.entries[key]
	if !found || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.values, true
}

func (c *memoryCache) Set(key string, values []string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		values:     append([]string(nil), values...),
		expiration: time.Now().Add(ttl),
	}
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.entries {
			if now.After(e.expiration) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}
