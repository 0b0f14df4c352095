package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
)

// CacheSpy wraps a core.Cache and counts hits and misses.
type CacheSpy struct {
	core.Cache

	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func NewCacheSpy(cache core.Cache) *CacheSpy {
	return &CacheSpy{Cache: cache, hits: make(map[string]int), misses: make(map[string]int)}
}

func (c *CacheSpy) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	found, err := c.Cache.Get(ctx, key, dest)
	c.mu.Lock()
	if found {
		c.hits[key]++
	} else {
		c.misses[key]++
	}
	c.mu.Unlock()
	return found, err
}

func (c *CacheSpy) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Cache.Set(ctx, key, value, ttl)
}

func (c *CacheSpy) Hits(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[key]
}

func (c *CacheSpy) Misses(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses[key]
}

// Has reports whether key is cached.
func (c *CacheSpy) Has(key string) bool {
	var raw interface{}
	found, _ := c.Cache.Get(context.Background(), key, &raw)
	return found
}
