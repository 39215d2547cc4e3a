package storeclient

import (
	"maps"
	"sync"
	"time"
)

// profileCache provides TTL-based caching of profile bags by user id.
// It is safe for concurrent use.
type profileCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	vars      map[string]string
	expiresAt time.Time
}

func newProfileCache(now func() time.Time) *profileCache {
	if now == nil {
		now = time.Now
	}
	return &profileCache{
		entries: make(map[string]*cacheEntry),
		now:     now,
	}
}

// get returns a copy of a cached bag if it exists and hasn't expired.
func (c *profileCache) get(key string) (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return maps.Clone(entry.vars), true
}

// set stores a copy of vars for ttl. A zero or negative ttl caches nothing.
func (c *profileCache) set(key string, vars map[string]string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{
		vars:      maps.Clone(vars),
		expiresAt: c.now().Add(ttl),
	}
}

// delete removes a cached bag.
func (c *profileCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
