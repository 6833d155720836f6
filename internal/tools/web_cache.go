package tools

import (
	"sync"
	"time"
)

const (
	defaultCacheTTL        = 15 * time.Minute
	defaultCacheMaxEntries = 100
)

// webCache is a small TTL cache shared by web_fetch and web_search. Eviction
// is oldest-first when full.
type webCache struct {
	mu         sync.Mutex
	entries    map[string]webCacheEntry
	maxEntries int
	ttl        time.Duration
}

type webCacheEntry struct {
	value   string
	expires time.Time
}

func newWebCache(maxEntries int, ttl time.Duration) *webCache {
	return &webCache{
		entries:    make(map[string]webCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func (c *webCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *webCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expires.Before(oldest) {
				oldestKey = k
				oldest = e.expires
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = webCacheEntry{value: value, expires: time.Now().Add(c.ttl)}
}
