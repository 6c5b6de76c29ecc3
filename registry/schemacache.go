package registry

import (
	"sync"
	"time"

	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/schema"
)

// Compiled is a parsed and compiled recipient type. It is shared between
// corridors whose requirements are identical.
type Compiled struct {
	Requirements *requirements.RequirementSet
	Schema       *schema.CompiledSchema
	Checksum     string
}

// SchemaCache holds compiled schemas keyed by recipient type and checksum.
// A changed descriptor has a new checksum, so entries never go stale; they
// are only evicted.
type SchemaCache interface {
	Get(key string) (*Compiled, bool)
	Set(key string, c *Compiled)
	Len() int
}

type schemaEntry struct {
	compiled *Compiled
	addedAt  time.Time
}

// InMemorySchemaCache evicts expired entries and, when full, the oldest one.
type InMemorySchemaCache struct {
	ttl        time.Duration
	maxEntries int
	entries    map[string]schemaEntry
	mu         sync.Mutex
}

// NewInMemorySchemaCache creates a cache. Zero ttl or maxEntries disable the
// respective limit.
func NewInMemorySchemaCache(ttl time.Duration, maxEntries int) *InMemorySchemaCache {
	return &InMemorySchemaCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]schemaEntry),
	}
}

func SchemaKey(recipientType, checksum string) string {
	return recipientType + ":" + checksum
}

func (c *InMemorySchemaCache) Get(key string) (*Compiled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return e.compiled, true
}

func (c *InMemorySchemaCache) Set(key string, compiled *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evict()
	}
	c.entries[key] = schemaEntry{compiled: compiled, addedAt: time.Now()}
}

func (c *InMemorySchemaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *InMemorySchemaCache) expired(e schemaEntry) bool {
	return c.ttl > 0 && time.Since(e.addedAt) > c.ttl
}

// evict drops expired entries, or the oldest one if none expired. mu must be held.
func (c *InMemorySchemaCache) evict() {
	var oldestKey string
	var oldest time.Time
	dropped := false
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			dropped = true
			continue
		}
		if oldestKey == "" || e.addedAt.Before(oldest) {
			oldestKey, oldest = k, e.addedAt
		}
	}
	if !dropped && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
