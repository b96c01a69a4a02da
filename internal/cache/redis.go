package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"phivault/internal/core"
)

// redisCache shares the scope-mapping cache across replicas. Values are
// JSON-encoded mapping sets under a per-identity key.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(ctx context.Context, url string, ttl time.Duration) (*redisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &redisCache{client: client, ttl: ttl}, nil
}

func cacheKey(identityUUID string) string {
	return "phivault:mappings:" + identityUUID
}

func (c *redisCache) Get(ctx context.Context, identityUUID string) ([]core.Mapping, bool) {
	data, err := c.client.Get(ctx, cacheKey(identityUUID)).Bytes()
	if err != nil {
		return nil, false
	}
	var mappings []core.Mapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten.
		return nil, false
	}
	return mappings, true
}

func (c *redisCache) Set(ctx context.Context, identityUUID string, mappings []core.Mapping) {
	data, err := json.Marshal(mappings)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(identityUUID), data, c.ttl)
}

func (c *redisCache) Invalidate(ctx context.Context, identityUUID string) {
	c.client.Del(ctx, cacheKey(identityUUID))
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
