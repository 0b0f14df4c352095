package cachesvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// New returns the configured cache backend. A Redis backend is pinged before use.
func New(ctx context.Context, conf *core.Config) (core.Cache, error) {
	switch conf.Cache.Backend {
	case "", "memory":
		return NewMemoryCache(conf.Cache.TTL), nil
	case "redis":
		client := NewRedisClient(conf)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "pinging redis")
		}
		return NewRedisCache(client), nil
	}
	return nil, errors.Errorf("unsupported cache backend: %q", conf.Cache.Backend)
}
