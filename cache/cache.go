// Package cache is the process-wide response cache that shields the upstream API from
// repeated reads. Entries expire after their TTL and are evicted on the next read.
package cache

import (
	"sync"
	"time"
)

// NowTimeFunc is the clock used for expiry, overridden in tests.
var NowTimeFunc = time.Now

type entry struct {
	value     any
	expiresAt time.Time
}

// Recorder receives one of "hit", "miss" or "expired" for every lookup.
type Recorder interface {
	CacheLookup(result string)
}

type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	enabled  bool
	recorder Recorder
}

// New creates a cache. A disabled cache never stores anything.
func New(enabled bool, recorder Recorder) *Cache {
	return &Cache{
		entries:  make(map[string]entry),
		enabled:  enabled,
		recorder: recorder,
	}
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the value stored under key while it is still fresh.
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.record("miss")
		return nil, false
	}

	if !NowTimeFunc().Before(e.expiresAt) {
		c.mu.Lock()
		// Only evict if nobody replaced the entry in between
		if current, ok := c.entries[key]; ok && current.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.record("expired")
		return nil, false
	}

	c.record("hit")
	return e.value, true
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: NowTimeFunc().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of entries held, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) record(result string) {
	if c.recorder != nil {
		c.recorder.CacheLookup(result)
	}
}
