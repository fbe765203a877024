// Package cache stores small JSON-encoded reference data (dropdown lists).
// A Redis backend is used when REDIS_URL is configured, an in-process map otherwise.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the storage contract shared by both backends.
type Cache interface {
	// Get decodes the value stored under key into dst. It reports false on a miss.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores value under key. A zero ttl means no expiration.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// New returns a Redis cache when redisURL is set, otherwise an in-memory cache.
func New(ctx context.Context, redisURL string) (Cache, error) {
	if redisURL == "" {
		return NewMemory(), nil
	}
	return NewRedis(ctx, redisURL)
}

// ─────────────────────────────────────────────────────────────────────────────
// In-memory backend
// ─────────────────────────────────────────────────────────────────────────────

type item struct {
	data      []byte
	expiresAt int64 // unix nanoseconds; 0 means no expiration
}

// Memory is a thread-safe TTL cache backed by sync.Map.
type Memory struct {
	m   sync.Map
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	v, ok := c.m.Load(key)
	if !ok {
		return false, nil
	}
	it := v.(item)
	if it.expiresAt > 0 && c.now().UnixNano() > it.expiresAt {
		c.m.Delete(key)
		return false, nil
	}
	if err := json.Unmarshal(it.data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = c.now().Add(ttl).UnixNano()
	}
	c.m.Store(key, item{data: data, expiresAt: expiresAt})
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.m.Delete(k)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis backend
// ─────────────────────────────────────────────────────────────────────────────

const redisPrefix = "approvisionnements:"

// Redis stores entries in a Redis server under a common key prefix.
type Redis struct {
	client *redis.Client
}

// NewRedis parses redisURL (redis://host:port/db) and checks connectivity.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return c.client.Set(ctx, redisPrefix+key, data, ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = redisPrefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
