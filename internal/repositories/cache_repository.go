package repositories

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = redis.Nil

type CacheRepositoryInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key ...string) error
}

// noopCacheRepository is used when no Redis address is configured.
type noopCacheRepository struct{}

func NewNoopCacheRepository() CacheRepositoryInterface { return noopCacheRepository{} }

func (noopCacheRepository) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCacheRepository) Get(context.Context, string) (string, error)                  { return "", ErrCacheMiss }
func (noopCacheRepository) Del(context.Context, ...string) error                         { return nil }
