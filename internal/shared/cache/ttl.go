// Package cache provides a small in-process TTL cache with coalesced loads.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL caches values by string key for a fixed duration. Concurrent loads of
// the same key share one call to the loader.
type TTL[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	ttl   time.Duration
	max   int
	now   func() time.Time
	gen   uint64 // bumped by Purge
	group singleflight.Group
}

// NewTTL returns a cache holding at most max entries for ttl each.
// A max of zero or less means unbounded.
func NewTTL[V any](ttl time.Duration, max int, now func() time.Time) *TTL[V] {
	if now == nil {
		now = time.Now
	}
	return &TTL[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		max:   max,
		now:   now,
	}
}

// Get returns the cached value for key if it has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *TTL[V]) setLocked(key string, value V) {
	now := c.now()
	if c.max > 0 && len(c.items) >= c.max {
		if _, exists := c.items[key]; !exists {
			c.evictLocked(now)
		}
	}
	c.items[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// GetOrLoad returns the cached value or calls load once per key across
// concurrent callers. Load errors are not cached. A load that started before
// a Purge is returned to its callers but not stored, and callers arriving
// after the Purge start a fresh load.
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	gen := c.generation()
	res, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"\x00"+key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.setLocked(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Purge drops every entry and invalidates loads already in flight.
func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
	c.gen++
}

func (c *TTL[V]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Len reports the number of stored entries, expired or not.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictLocked drops expired entries, or the entry closest to expiry when none have expired.
func (c *TTL[V]) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
		removed   bool
	)
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey = k
			oldest = e.expires
		}
	}
	if !removed && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
