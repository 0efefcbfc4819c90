package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures a Cache.
type Options struct {
	// MaxEntries caps the number of cached entries; 0 means unbounded.
	// Eviction is FIFO on insertion order.
	MaxEntries int

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// MetricsHooks receives cache events. Any hook may be nil.
type MetricsHooks struct {
	OnHit     func(key string)
	OnMiss    func(key string)
	OnExpired func(key string)
	OnStore   func(key string)
	OnEvict   func(key string)
}

type entry struct {
	value      any
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a TTL key/value store safe for concurrent use. Values older than
// their TTL are treated as absent. Concurrent loads for the same key are
// collapsed into a single upstream call.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64
	stores  atomic.Uint64
	evicted atomic.Uint64
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Expired uint64 `json:"expired"`
	Stores  uint64 `json:"stores"`
	Evicted uint64 `json:"evicted"`
}

// SnapshotEntry represents a point-in-time cache entry for debugging.
type SnapshotEntry struct {
	Key        string    `json:"key"`
	InsertedAt time.Time `json:"inserted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
	}
}

func (c *Cache) now() time.Time {
	if c.opts.Clock != nil {
		return c.opts.Clock()
	}
	return time.Now()
}

// Get returns the value stored under key, or false when the key is unseen
// or its TTL has elapsed. Expired entries are dropped on read; there is no
// sweeper goroutine.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		if c.metrics.OnMiss != nil {
			c.metrics.OnMiss(key)
		}
		return nil, false
	}

	if !now.Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, still := c.items[key]; still && cur == e {
			delete(c.items, key)
			c.removeFromOrder(key)
		}
		c.mu.Unlock()
		c.expired.Add(1)
		c.misses.Add(1)
		if c.metrics.OnExpired != nil {
			c.metrics.OnExpired(key)
		}
		if c.metrics.OnMiss != nil {
			c.metrics.OnMiss(key)
		}
		return nil, false
	}

	c.hits.Add(1)
	if c.metrics.OnHit != nil {
		c.metrics.OnHit(key)
	}
	return e.value, true
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	now := c.now()
	e := &entry{value: value, insertedAt: now, expiresAt: now.Add(ttl)}

	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
	c.mu.Unlock()

	c.stores.Add(1)
	if c.metrics.OnStore != nil {
		c.metrics.OnStore(key)
	}
}

// Loader produces a value for a key on cache miss. cacheable=false stores
// nothing while still returning the value to every waiting caller.
type Loader func(ctx context.Context) (value any, cacheable bool, err error)

type loadResult struct {
	val       any
	cacheable bool
}

// GetOrLoad returns the cached value for key, or runs loader and caches its
// result for ttl. Concurrent callers for the same key share one loader call.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		val, cacheable, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.Set(key, val, ttl)
		}
		return loadResult{val: val, cacheable: cacheable}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(loadResult).val, nil
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

// Len returns the number of entries currently stored, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.items)
	c.mu.RUnlock()
	return Stats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Expired: c.expired.Load(),
		Stores:  c.stores.Load(),
		Evicted: c.evicted.Load(),
	}
}

// Snapshot returns a copy of current cache entries for debugging/inspection.
func (c *Cache) Snapshot() []SnapshotEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SnapshotEntry, 0, len(c.items))
	for _, k := range c.order {
		if e, ok := c.items[k]; ok {
			out = append(out, SnapshotEntry{
				Key:        k,
				InsertedAt: e.insertedAt,
				ExpiresAt:  e.expiresAt,
			})
		}
	}
	return out
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		c.evicted.Add(1)
		if c.metrics.OnEvict != nil {
			c.metrics.OnEvict(victim)
		}
	}
}
