// Package cache is a process-local TTL cache for market data. Every entry
// carries its own deadline; expiry is lazy on read plus an optional
// background purge.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	loadMu sync.Mutex
	loads  map[string]*sync.Mutex
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		loads:   make(map[string]*sync.Mutex),
	}
}

// Get returns the value when present and fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value for ttl from now.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes the key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetOr returns the cached value or runs loader and caches its result for
// ttl. Concurrent callers for the same key collapse onto one load; loader
// errors are returned and never cached.
func (c *Cache) GetOr(key string, ttl time.Duration, loader func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have loaded while we waited.
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := loader()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	lock, ok := c.loads[key]
	if !ok {
		lock = &sync.Mutex{}
		c.loads[key] = lock
	}
	return lock
}

// PurgeExpired drops every stale entry and reports how many went.
func (c *Cache) PurgeExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartPurge runs PurgeExpired every interval until stop is closed.
func (c *Cache) StartPurge(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.PurgeExpired()
			case <-stop:
				return
			}
		}
	}()
}
