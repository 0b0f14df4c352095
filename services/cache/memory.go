// Package cachesvc implements core.Cache in memory or on Redis.
// Both store values JSON-encoded, so cached values never alias the caller's.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const cleanupInterval = 10 * time.Minute

type memoryCache struct {
	store *gocache.Cache
}

var _ core.Cache = (*memoryCache)(nil)

func NewMemoryCache(defaultTTL time.Duration) *memoryCache {
	return &memoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	val, found := c.store.Get(key)
	if !found {
		return false, nil
	}
	data, ok := val.([]byte)
	if !ok {
		return false, errors.Errorf("unexpected cached value type %T", val)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "decoding cached value")
	}
	return true, nil
}

// Set stores value for ttl; a non-positive ttl falls back to the TTL given to NewMemoryCache.
func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding value")
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, data, ttl)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.store.Delete(key)
	}
	return nil
}

// Flush drops every entry.
func (c *memoryCache) Flush() {
	c.store.Flush()
}
