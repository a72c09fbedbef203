// internal/proxy/cache.go - Response caches for the feature-service proxy
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/valpere/r4c-viewport/internal/config"
)

// Entry is one cached upstream response
type Entry struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Cache stores upstream responses keyed by upstream URL
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, entry Entry)
	Close() error
}

// MemoryCache is a size-bounded LRU with per-entry expiry
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemoryCache creates an in-process cache; ttl <= 0 disables expiry
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Get returns a cached entry
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	return c.lru.Get(key)
}

// Set stores an entry, evicting the least recently used one when full
func (c *MemoryCache) Set(_ context.Context, key string, entry Entry) {
	c.lru.Add(key, entry)
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close is a no-op for the memory cache
func (c *MemoryCache) Close() error {
	return nil
}

// redisKeyPrefix namespaces proxy entries in a shared Redis
const redisKeyPrefix = "r4c:proxy:"

// RedisCache shares cached responses between proxy instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns a cached entry; Redis errors count as misses
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

// Set stores an entry with the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKey(key), raw, c.ttl).Err()
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

// noCache never stores anything
type noCache struct{}

func (noCache) Get(context.Context, string) (Entry, bool) { return Entry{}, false }
func (noCache) Set(context.Context, string, Entry) {}
func (noCache) Close() error { return nil }

// NewCache creates the cache selected by the proxy configuration
func NewCache(ctx context.Context, cfg config.ProxyConfig) (Cache, error) {
	switch strings.ToLower(cfg.CacheBackend) {
	case "memory":
		return NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
		}
		return NewRedisCache(client, cfg.CacheTTL), nil
	case "none":
		return noCache{}, nil
	default:
		return nil, errors.New("unsupported cache backend " + cfg.CacheBackend)
	}
}
