package intake

import (
	"context"
	"sync"
	"time"

	"zanowatcher.com/internal/jobstore"
)

// statusCache absorbs polling load on the Status GET endpoint (§4.9): a
// read that lands within ttl of a prior read for the same key returns the
// cached value without touching the KV store. It follows the same
// lock-a-map/store-lastSeen/janitor-sweep shape as pkg/ratelimit.Store,
// adapted to cache a value instead of a limiter.
type statusCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	status    *jobstore.Status
	found     bool
	expiresAt time.Time
}

func newStatusCache(ttl time.Duration) *statusCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &statusCache{entries: make(map[string]cacheEntry, 256), ttl: ttl}
}

func (c *statusCache) get(key string) (*jobstore.Status, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, false
	}
	return e.status, e.found, true
}

func (c *statusCache) put(key string, status *jobstore.Status, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{status: status, found: found, expiresAt: time.Now().Add(c.ttl)}
}

func (c *statusCache) startJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *statusCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
