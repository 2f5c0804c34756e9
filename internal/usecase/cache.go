package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCacheNamespace prefixes every key this service writes to Redis.
const DefaultCacheNamespace = "moodcheck"

// Cache is the key/value surface the use case needs. Get reports a miss as redis.Nil.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache stores decision results under a namespace so the instance can be shared.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCache wraps client. An empty namespace falls back to DefaultCacheNamespace.
func NewRedisCache(client redis.UniversalClient, namespace string) *RedisCache {
	if namespace == "" {
		namespace = DefaultCacheNamespace
	}
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

func (c *RedisCache) key(k string) string {
	return c.namespace + ":" + k
}

// nopCache is used when Redis is disabled; every lookup misses.
type nopCache struct{}

func (nopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (nopCache) Get(context.Context, string) (string, error) { return "", redis.Nil }

func emotionCacheKey(requestID string) string {
	return "emotion:" + requestID
}

// scoresCacheKey is keyed by a digest of the text, never the text itself.
func scoresCacheKey(textDigest string) string {
	return "text_scores:" + textDigest
}
