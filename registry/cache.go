package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/wisepay/requirements"
	"github.com/redis/go-redis/v9"
)

// DocumentCache holds raw requirements documents by corridor key.
type DocumentCache interface {
	// Get returns false on a miss.
	Get(ctx context.Context, key string) (requirements.Document, bool, error)
	Set(ctx context.Context, key string, doc requirements.Document) error
	Delete(ctx context.Context, key string) error
}

type cachedDocument struct {
	doc      requirements.Document
	cachedAt time.Time
}

// InMemoryDocumentCache is a DocumentCache for a single process.
type InMemoryDocumentCache struct {
	ttl  time.Duration
	docs map[string]cachedDocument
	mu   sync.RWMutex
}

// NewInMemoryDocumentCache creates a cache whose entries expire after ttl.
// A zero ttl never expires.
func NewInMemoryDocumentCache(ttl time.Duration) *InMemoryDocumentCache {
	return &InMemoryDocumentCache{
		ttl:  ttl,
		docs: make(map[string]cachedDocument),
	}
}

// Get drops an expired entry on the way out.
func (c *InMemoryDocumentCache) Get(_ context.Context, key string) (requirements.Document, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.docs[key]
	if !ok {
		return requirements.Document{}, false, nil
	}
	if c.ttl > 0 && time.Since(entry.cachedAt) > c.ttl {
		delete(c.docs, key)
		return requirements.Document{}, false, nil
	}
	return entry.doc, true, nil
}

func (c *InMemoryDocumentCache) Set(_ context.Context, key string, doc requirements.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[key] = cachedDocument{doc: doc, cachedAt: time.Now()}
	return nil
}

func (c *InMemoryDocumentCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, key)
	return nil
}

// RedisKeyPrefix namespaces cached documents.
const RedisKeyPrefix = "wisepay:requirements:"

// RedisDocumentCache shares documents between server instances.
type RedisDocumentCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDocumentCache(client redis.UniversalClient, ttl time.Duration) *RedisDocumentCache {
	return &RedisDocumentCache{client: client, ttl: ttl}
}

func (c *RedisDocumentCache) Get(ctx context.Context, key string) (requirements.Document, bool, error) {
	raw, err := c.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return requirements.Document{}, false, nil
	}
	if err != nil {
		return requirements.Document{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	doc, err := requirements.DecodeBytes(raw)
	if err != nil {
		return requirements.Document{}, false, err
	}
	return doc, true, nil
}

func (c *RedisDocumentCache) Set(ctx context.Context, key string, doc requirements.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	if err := c.client.Set(ctx, RedisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisDocumentCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
