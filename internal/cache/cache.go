// ABOUTME: In-memory cache with TTL-based expiration and in-flight call coalescing
// ABOUTME: Thread-safe cache using sync.Map plus a singleflight.Group per key

package cache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	data      any
	expiresAt time.Time
}

// Cache is a TTL-based memoization cache. A zero or negative ttl disables
// expiration and the background janitor goroutine entirely — the intended
// mode for a cache scoped to a single planning cycle, which is discarded
// wholesale at the end of Build rather than expiring entries piecemeal.
type Cache struct {
	store sync.Map
	ttl   time.Duration
	group singleflight.Group

	done chan struct{}
	once sync.Once
}

// New creates a cache. Pass ttl <= 0 for a cycle-scoped cache with no
// background cleanup; the caller is expected to discard it, not Close it.
func New(ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl}
	if ttl > 0 {
		c.done = make(chan struct{})
		go c.startCleanup()
	}
	return c
}

// Close stops the background janitor, if one was started. Safe to call on
// a cache created with ttl <= 0 (no-op).
func (c *Cache) Close() {
	if c.done == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) Get(key string) (any, bool) {
	val, ok := c.store.Load(key)
	if !ok {
		return nil, false
	}
	e := val.(entry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.store.Delete(key)
		slog.Debug("cache entry expired", "key", key)
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Set(key string, value any) {
	c.store.Store(key, entry{data: value, expiresAt: time.Now().Add(c.ttl)})
}

// GetOrLoad coalesces concurrent callers requesting the same key: only one
// in-flight load runs per key at a time, and every waiter observes its result.
func (c *Cache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, load)
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.store.Range(func(key, val any) bool {
				if now.After(val.(entry).expiresAt) {
					c.store.Delete(key)
				}
				return true
			})
		}
	}
}
