package cache

import (
	"context"
	"sync"
	"time"

	"phivault/internal/core"
)

// localCache is an in-process TTL cache. Expired entries are dropped lazily
// on read and swept periodically.
type localCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type localEntry struct {
	mappings  []core.Mapping
	expiresAt time.Time
}

func newLocalCache(ttl time.Duration) *localCache {
	c := &localCache{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *localCache) Get(_ context.Context, identityUUID string) ([]core.Mapping, bool) {
	c.mu.RLock()
	e, ok := c.entries[identityUUID]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	out := make([]core.Mapping, len(e.mappings))
	copy(out, e.mappings)
	return out, true
}

func (c *localCache) Set(_ context.Context, identityUUID string, mappings []core.Mapping) {
	stored := make([]core.Mapping, len(mappings))
	copy(stored, mappings)

	c.mu.Lock()
	c.entries[identityUUID] = localEntry{mappings: stored, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *localCache) Invalidate(_ context.Context, identityUUID string) {
	c.mu.Lock()
	delete(c.entries, identityUUID)
	c.mu.Unlock()
}

func (c *localCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *localCache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
