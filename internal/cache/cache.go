// Package cache keeps resolved demo definitions in memory for a bounded time.
package cache

import (
	"sync"
	"time"

	"github.com/livetemplate/sandbox/internal/demo"
)

// Entry is one cached demo
type Entry struct {
	Definition *demo.Definition
	ExpiresAt  time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache stores resolved demos by registry name
type Cache interface {
	Get(name string) (*demo.Definition, bool)
	Set(name string, def *demo.Definition, ttl time.Duration)
	Invalidate(name string)
	InvalidateAll()
}

// MemoryCache is an in-memory cache with TTL support.
// Definitions are cloned on the way in and on the way out so callers can
// never alias cached data.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return newMemoryCache(time.Minute)
}

func newMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*Entry),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns a copy of the cached demo
func (c *MemoryCache) Get(name string) (*demo.Definition, bool) {
	c.mu.RLock()
	entry, exists := c.entries[name]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.IsExpired() {
		c.Invalidate(name)
		return nil, false
	}
	return entry.Definition.Clone(), true
}

// Set stores a copy of def for ttl. A non-positive ttl is a no-op.
func (c *MemoryCache) Set(name string, def *demo.Definition, ttl time.Duration) {
	if ttl <= 0 || def == nil {
		return
	}
	entry := &Entry{
		Definition: def.Clone(),
		ExpiresAt:  time.Now().Add(ttl),
	}

	c.mu.Lock()
	c.entries[name] = entry
	c.mu.Unlock()
}

// Invalidate removes an entry from the cache
func (c *MemoryCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// InvalidateAll removes all entries from the cache
func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for name, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, name)
		}
	}
}

// Stop stops the background cleanup goroutine.
// Safe to call multiple times
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache (for testing)
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
