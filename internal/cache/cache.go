// Package cache implements a bounded, TTL-expiring, LRU-evicting
// in-memory cache: a map-plus-mutex store with per-entry expiry,
// generalized with a doubly-linked-list LRU order and bulk eviction.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	key        string
	value      V
	createdAt  time.Time
	accessedAt time.Time
	expiresAt  time.Time
}

// Cache is a bounded LRU map with per-entry expiry. V is the payload
// type; three named instances are constructed for quotes, searches, and
// general use (see New* constructors below).
type Cache[V any] struct {
	mu       sync.Mutex
	maxSize  int
	defaultT time.Duration
	entries  map[string]*list.Element // -> *entry[V]
	order    *list.List               // front = most recently used

	hits   uint64
	misses uint64
}

func New[V any](maxSize int, defaultTTL time.Duration) *Cache[V] {
	return &Cache[V]{
		maxSize:  maxSize,
		defaultT: defaultTTL,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key if present and unexpired, updating its
// recency and accessed_at. Expired entries are evicted on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if time.Now().After(e.expiresAt) {
		c.removeElementLocked(el)
		c.misses++
		return zero, false
	}
	e.accessedAt = time.Now()
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key with the given TTL (or the cache's default
// TTL if ttl <= 0). If inserting would exceed max_size, the least
// recently accessed 10% of entries (rounded up, at least one) are
// evicted first.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultT
	}
	now := time.Now()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.createdAt = now
		e.accessedAt = now
		e.expiresAt = now.Add(ttl)
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	e := &entry[V]{key: key, value: value, createdAt: now, accessedAt: now, expiresAt: now.Add(ttl)}
	el := c.order.PushFront(e)
	c.entries[key] = el
}

// evictLRULocked discards the least-recently-used 10% of entries
// (rounded up, minimum one).
func (c *Cache[V]) evictLRULocked() {
	n := (len(c.entries) + 9) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
	}
}

func (c *Cache[V]) removeElementLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeElementLocked(el)
	}
}

// CleanupExpired removes every entry past its expiry and returns the
// count removed. Intended to be called by Background Maintenance.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if now.After(e.expiresAt) {
			c.removeElementLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// Stats reports cache occupancy and hit-rate.
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

func (c *Cache[V]) CurrentStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

// Len returns the current number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
