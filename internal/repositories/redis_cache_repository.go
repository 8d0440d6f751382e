package repositories

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCachePrefix keeps keys apart when several deployments share a Redis.
const DefaultCachePrefix = "parts-tracker:"

// RedisCacheRepository stores derived read models such as part stats.
type RedisCacheRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisCacheRepository(client *redis.Client, prefix string) CacheRepositoryInterface {
	return &RedisCacheRepository{client: client, prefix: prefix}
}

// Get returns ErrCacheMiss for absent keys.
func (r *RedisCacheRepository) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.prefix+key).Result()
}

func (r *RedisCacheRepository) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

func (r *RedisCacheRepository) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	return r.client.Del(ctx, prefixed...).Err()
}
