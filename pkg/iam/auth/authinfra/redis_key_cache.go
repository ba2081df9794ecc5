package authinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeySetCache stores JWKS documents in Redis so replicas share one
// fetch and survive restarts without re-hitting the provider.
type RedisKeySetCache struct {
	client *redis.Client
	prefix string
}

// NewRedisKeySetCache wraps an existing client. prefix namespaces the keys.
func NewRedisKeySetCache(client *redis.Client, prefix string) *RedisKeySetCache {
	if prefix == "" {
		prefix = "jwks:"
	}
	return &RedisKeySetCache{client: client, prefix: prefix}
}

func (c *RedisKeySetCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisKeySetCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}
