package core

import (
	"context"
	"time"

	"github.com/sqlforge/sqlforge/internal/cache"
)

// Cache is the key/value store with TTL eviction that getCached uses to
// memoize SELECT results opportunistically.
type Cache interface {
	// Remember returns the cached value for key if present and unexpired;
	// otherwise it evaluates thunk, stores the result, and returns it.
	Remember(ctx context.Context, key string, ttl time.Duration, thunk func() (interface{}, error)) (interface{}, error)
}

// TTLCacheManager adapts internal/cache.TTLCache to the Cache interface.
// ctx is accepted for interface symmetry with the rest of the core but
// unused: the underlying cache has no notion of cancellation.
type TTLCacheManager struct {
	store *cache.TTLCache
}

// NewTTLCacheManager wraps a fresh TTLCache with the given capacity.
func NewTTLCacheManager(capacity int) *TTLCacheManager {
	return &TTLCacheManager{store: cache.NewTTLCacheWithCapacity(capacity)}
}

// Remember implements Cache.
func (m *TTLCacheManager) Remember(_ context.Context, key string, ttl time.Duration, thunk func() (interface{}, error)) (interface{}, error) {
	return m.store.Remember(key, ttl, thunk)
}

// Stats exposes the underlying cache's hit/miss/eviction counters.
func (m *TTLCacheManager) Stats() cache.Stats {
	return m.store.Stats()
}
