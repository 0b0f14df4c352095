package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
)

const redisKeyPrefix = "shule:"

type redisCache struct {
	client *redis.Client
}

var _ core.Cache = (*redisCache)(nil)

func NewRedisCache(client *redis.Client) *redisCache {
	return &redisCache{client: client}
}

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Cache.RedisAddr,
		Password: conf.Cache.RedisPassword,
		DB:       conf.Cache.RedisDB,
	})
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, errors.Wrap(err, "reading from redis")
	}
	if err = json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, "decoding cached value")
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding value")
	}
	return errors.Wrap(c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(), "writing to redis")
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, redisKeyPrefix+key)
	}
	return errors.Wrap(c.client.Del(ctx, prefixed...).Err(), "deleting from redis")
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
