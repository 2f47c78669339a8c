package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryTokenCache keeps the token for the lifetime of the client.
type MemoryTokenCache struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(_ context.Context) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

func (c *MemoryTokenCache) Set(_ context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// RedisTokenCache shares the token across instances. A zero TTL keeps it
// until evicted.
type RedisTokenCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

const defaultTokenKey = "simkyc:metamap:token"

func NewRedisTokenCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisTokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTokenCache{client: client, key: defaultTokenKey, ttl: ttl, logger: logger}
}

// Get treats Redis errors as a miss so the caller fetches a fresh token.
func (c *RedisTokenCache) Get(ctx context.Context) (string, bool) {
	token, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "token cache read failed", "error", err)
		}
		return "", false
	}
	return token, token != ""
}

func (c *RedisTokenCache) Set(ctx context.Context, token string) {
	if err := c.client.Set(ctx, c.key, token, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "token cache write failed", "error", err)
	}
}
