package rules

import (
	"sync"
	"time"
)

var _ RulesCache = (*InMemoryRulesCache)(nil)

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRulesCache is a map-backed RulesCache, safe for concurrent use.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	gen     uint64
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get returns a copy of the cached slice so callers cannot reorder it.
func (c *InMemoryRulesCache) Get(key string) ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && c.now().Sub(e.cachedAt) > c.config.TTL {
		return nil, false
	}

	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out, true
}

func (c *InMemoryRulesCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Set drops lists loaded before the latest Invalidate.
func (c *InMemoryRulesCache) Set(key string, rules []*Rule, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.gen {
		return false
	}
	stored := make([]*Rule, len(rules))
	copy(stored, rules)
	c.entries[key] = cacheEntry{rules: stored, cachedAt: c.now()}
	return true
}

func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
}
