package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache abstracts the key/value operations used for prediction caching.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

// LRUCache is an in-process cache used when Redis is not configured.
// Entries expire after the TTL given at construction; the per-call
// expiration is ignored.
type LRUCache struct {
	lru *expirable.LRU[string, string]
}

// NewLRUCache creates a cache holding at most size entries.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Set stores a value.
func (c *LRUCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.lru.Add(key, value)
	return nil
}

// Get returns a value or ErrCacheMiss.
func (c *LRUCache) Get(_ context.Context, key string) (string, error) {
	if value, ok := c.lru.Get(key); ok {
		return value, nil
	}
	return "", ErrCacheMiss
}
