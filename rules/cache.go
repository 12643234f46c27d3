package rules

import "time"

// AllRulesKey is the cache key for the unscoped candidate list.
const AllRulesKey = ""

// RulesCache holds candidate rule lists between mutations, keyed by
// insurance group id (AllRulesKey for every group).
type RulesCache interface {
	// Get returns the cached list for key, or ok=false on a miss or expiry.
	Get(key string) (rules []*Rule, ok bool)

	// Generation returns a counter that every Invalidate advances. Read it
	// before loading from the store and pass it to Set.
	Generation() uint64

	// Set stores rules under key only if no Invalidate happened since
	// generation was read. It reports whether the entry was stored.
	Set(key string, rules []*Rule, generation uint64) bool

	// Invalidate drops every key.
	Invalidate()
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL of 0 means entries live until the next Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig invalidates on mutation only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
