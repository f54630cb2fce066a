// Package cache provides a small TTL+LRU cache used for remote platform
// metadata. Entries expire by insertion time; under capacity pressure the
// least-recently-used entry is evicted regardless of TTL. There is no active
// invalidation: staleness is bounded purely by the TTL.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Clock abstracts time for tests.
type Clock func() time.Time

// Fetcher loads a value on cache miss. The second return value reports
// whether the value is safe to share across sessions; non-shareable values
// are returned but never stored.
type Fetcher[V any] func(ctx context.Context) (V, bool, error)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a capacity-bounded TTL+LRU cache. A zero TTL disables expiry
// (immutable entries); a non-positive capacity disables eviction.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      Clock

	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock injects a clock, used by tests to step through TTL windows.
func WithClock[V any](now Clock) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New builds a cache with the given TTL and capacity.
func New[V any](ttl time.Duration, capacity int, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value if present and fresh. A hit refreshes the
// entry's LRU position.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[V])
	if c.expired(ent) {
		c.removeLocked(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return ent.value, true
}

// Set stores a value, evicting the least-recently-used entry when at
// capacity. Storing an existing key refreshes its timestamp and position.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.insertedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
	c.entries[key] = c.order.PushFront(&entry[V]{key: key, value: value, insertedAt: c.now()})
}

// Delete removes a key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Len reports the number of stored entries, expired ones included until
// they are observed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the cached value or loads it through fetch. The fetched
// value is stored only when the fetcher marks it shareable.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, shareable, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if shareable {
		c.Set(key, value)
	}
	return value, nil
}

func (c *Cache[V]) expired(ent *entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(ent.insertedAt) >= c.ttl
}

func (c *Cache[V]) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry[V])
	c.order.Remove(elem)
	delete(c.entries, ent.key)
}
