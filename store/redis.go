package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentplexus/omnivoice-intake/faq"
)

const (
	defaultContextTTL = 2 * time.Hour
	defaultPrefix     = "intake"
)

// RedisContextCache is a Redis-backed ContextCache. It lets a webhook
// replica and the replica holding the media socket share context. Entries
// expire after the TTL in case a teardown is missed.
type RedisContextCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisContextCache.
type RedisOption func(*RedisContextCache)

// WithTTL sets the time-to-live for cached contexts. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisContextCache) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "intake".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisContextCache) {
		s.prefix = prefix
	}
}

// NewRedisContextCache creates a cache on top of client.
//
// Example:
//
//	cache := NewRedisContextCache(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(time.Hour),
//	)
func NewRedisContextCache(client *redis.Client, opts ...RedisOption) *RedisContextCache {
	c := &RedisContextCache{
		client: client,
		ttl:    defaultContextTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisContextCacheFromURL parses a redis:// URL and creates a cache.
func NewRedisContextCacheFromURL(rawURL string, opts ...RedisOption) (*RedisContextCache, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisContextCache(redis.NewClient(o), opts...), nil
}

// Ping checks connectivity.
func (c *RedisContextCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisContextCache) Close() error {
	return c.client.Close()
}

// Put stores ctxData for callID.
func (c *RedisContextCache) Put(ctx context.Context, callID string, ctxData *faq.Context) error {
	if callID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(ctxData)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := c.client.Set(ctx, c.key(callID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Get loads the context for callID.
func (c *RedisContextCache) Get(ctx context.Context, callID string) (*faq.Context, error) {
	if callID == "" {
		return nil, ErrInvalidID
	}
	data, err := c.client.Get(ctx, c.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var out faq.Context
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	return &out, nil
}

// Delete removes the context for callID.
func (c *RedisContextCache) Delete(ctx context.Context, callID string) error {
	if err := c.client.Del(ctx, c.key(callID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *RedisContextCache) key(callID string) string {
	return c.prefix + ":context:" + callID
}
