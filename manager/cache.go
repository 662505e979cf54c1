package manager

import "time"

type cacheEntry struct {
	name     string
	content  string
	storedAt time.Time
	ttl      time.Duration
}

// cache is the manager-level TTL cache. It has no lock of its own; every
// method is called with Manager.mu held (read lock for lookup, write lock for
// the rest).
type cache struct {
	enabled    bool
	defaultTTL time.Duration
	entries    map[string]cacheEntry
}

func newCache(enabled bool, defaultTTL time.Duration) *cache {
	return &cache{
		enabled:    enabled,
		defaultTTL: defaultTTL,
		entries:    make(map[string]cacheEntry),
	}
}

// lookup returns the content for key. expired is true when an entry exists
// but is past its TTL; the caller then removes it with evict.
// A zero manager TTL disables the expiry check.
func (c *cache) lookup(key string, now time.Time) (content string, ok, expired bool) {
	ent, found := c.entries[key]
	if !found {
		return "", false, false
	}
	if c.defaultTTL > 0 && now.Sub(ent.storedAt) > ent.ttl {
		return "", false, true
	}
	return ent.content, true, false
}

// put stores content for the prompt name unless caching is disabled or ttl
// is zero.
func (c *cache) put(key, name, content string, ttl time.Duration, now time.Time) bool {
	if !c.enabled || ttl <= 0 {
		return false
	}
	c.entries[key] = cacheEntry{name: name, content: content, storedAt: now, ttl: ttl}
	return true
}

func (c *cache) evict(key string) {
	delete(c.entries, key)
}

// evictName drops every version cached for the prompt name.
func (c *cache) evictName(name string) {
	for key, ent := range c.entries {
		if ent.name == name {
			delete(c.entries, key)
		}
	}
}

func (c *cache) clear() {
	c.entries = make(map[string]cacheEntry)
}

func (c *cache) len() int {
	return len(c.entries)
}
