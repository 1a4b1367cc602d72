package cache

import (
	"sync"
	"time"
)

// Ensure MemoryCache implements the Cache interface
var _ Cache = (*MemoryCache)(nil)

type entry struct {
	value     *CachedResponse
	expiresAt time.Time
}

// MemoryCache is an in-process Cache implementation with periodic eviction.
// Explicitly owned and injectable; call Stop to end the janitor goroutine.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a memory cache whose janitor evicts expired entries
// every cleanupInterval. The janitor never blocks request-serving paths.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.janitor(cleanupInterval)
	return c
}

// Get returns the cached value for a key if present and unexpired
func (c *MemoryCache) Get(key string) (*CachedResponse, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// SetWithTTL stores a value that expires after ttl
func (c *MemoryCache) SetWithTTL(key string, value *CachedResponse, ttl time.Duration) {
	if key == "" || value == nil || ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Stop ends the janitor goroutine
func (c *MemoryCache) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
