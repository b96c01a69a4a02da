// Package cache provides an optional read cache for a scope's mapping set.
// De-anonymization loads every mapping in the scope on each call; the cache
// keeps hot scopes out of the database. Entries are invalidated whenever a
// new mapping is created in the scope.
package cache

import (
	"context"
	"fmt"
	"time"

	"phivault/internal/core"
)

// Backend type constants.
const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeRedis = "redis"
)

// Config selects and tunes the cache backend.
type Config struct {
	// Type is "none", "local", or "redis".
	Type string
	// RedisURL is the connection string for the redis backend.
	RedisURL string
	// TTL bounds entry lifetime. Invalidation on write makes staleness
	// rare; the TTL is a backstop.
	TTL time.Duration
}

// MappingCache caches a scope's full mapping set keyed by identity UUID.
// Implementations must be safe for concurrent use. Cache failures are never
// fatal: a miss falls through to the store.
type MappingCache interface {
	Get(ctx context.Context, identityUUID string) ([]core.Mapping, bool)
	Set(ctx context.Context, identityUUID string, mappings []core.Mapping)
	Invalidate(ctx context.Context, identityUUID string)
	Close() error
}

// New creates the configured cache backend.
func New(ctx context.Context, cfg Config) (MappingCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	switch cfg.Type {
	case TypeNone, "":
		return NewNoop(), nil
	case TypeLocal:
		return newLocalCache(cfg.TTL), nil
	case TypeRedis:
		return newRedisCache(ctx, cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: none, local, redis)", cfg.Type)
	}
}

// noopCache always misses.
type noopCache struct{}

// NewNoop returns a cache that stores nothing.
func NewNoop() MappingCache { return noopCache{} }

func (noopCache) Get(context.Context, string) ([]core.Mapping, bool) { return nil, false }
func (noopCache) Set(context.Context, string, []core.Mapping)        {}
func (noopCache) Invalidate(context.Context, string)                 {}
func (noopCache) Close() error                                       { return nil }
