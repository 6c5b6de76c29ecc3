package rules

import "time"

// RulesCache holds the active rule list between store reads.
type RulesCache interface {
	// Get returns the cached rules, nil on a miss or after expiry
	Get() []*Rule
	Set(rules []*Rule)
	Invalidate()
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL of the cached list. Zero means the list only changes on mutation.
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
