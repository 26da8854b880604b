package cache

import (
	"container/list"
	"sync"
)

// Cache is a bounded, concurrency-safe LRU mapping. Capacity is fixed at
// construction; a capacity of zero or less disables caching entirely, so
// every Put is a no-op and every Get misses.
//
// The cache itself knows nothing about expiration. Callers that need TTL
// semantics layer a freshness check above Get and Remove stale entries
// themselves.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key K
	val V
}

// New returns a Cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	c := &Cache[K, V]{cap: capacity}
	if capacity > 0 {
		c.ll = list.New()
		c.items = make(map[K]*list.Element, capacity)
	}
	return c
}

// Get returns the value stored under key and marks the entry most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.cap <= 0 {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		return zero, false
	}
	c.ll.MoveToFront(ele)
	return ele.Value.(entry[K, V]).val, true
}

// Put inserts or replaces the value under key. Replacing an existing key
// counts as a fresh access. If the cache is full and key is new, the least
// recently used entry is evicted first; the inserted key is never the one
// evicted.
func (c *Cache[K, V]) Put(key K, val V) {
	if c.cap <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		ele.Value = entry[K, V]{key, val}
		c.ll.MoveToFront(ele)
		return
	}

	c.items[key] = c.ll.PushFront(entry[K, V]{key, val})
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.items, last.Value.(entry[K, V]).key)
	}
}

// Remove deletes the entry under key and returns its prior value, if any.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	var zero V
	if c.cap <= 0 {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		return zero, false
	}
	c.ll.Remove(ele)
	delete(c.items, key)
	return ele.Value.(entry[K, V]).val, true
}

// Len reports the number of live entries.
func (c *Cache[K, V]) Len() int {
	if c.cap <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Cap reports the configured capacity.
func (c *Cache[K, V]) Cap() int {
	return c.cap
}
