package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache evicts by entry count, by total weight when a weigher is set,
// and by TTL.
type LRUCache[T any] struct {
	mu         sync.Mutex
	maxEntries int
	maxWeight  int
	weight     int
	weigh      func(T) int
	ttl        time.Duration
	now        func() time.Time
	items      map[string]*list.Element
	lru        *list.List
}

var (
	_ Cache[[]byte] = (*LRUCache[[]byte])(nil)
	_ Cleaner       = (*LRUCache[[]byte])(nil)
)

type cacheItem[T any] struct {
	key       string
	data      T
	weight    int
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxEntries int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// NewBytesCache creates an LRU for rendered payloads, bounded by total
// byte size as well as entry count.
func NewBytesCache(maxEntries, maxBytes int, ttl time.Duration) *LRUCache[[]byte] {
	c := NewLRUCache[[]byte](maxEntries, ttl)
	c.maxWeight = maxBytes
	c.weigh = func(b []byte) int { return len(b) }
	return c
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores a value. Values heavier than the weight bound are not cached.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := 0
	if c.weigh != nil {
		w = c.weigh(data)
		if c.maxWeight > 0 && w > c.maxWeight {
			if elem, exists := c.items[key]; exists {
				c.removeElement(elem)
			}
			return
		}
	}

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		weight:    w,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		c.weight -= elem.Value.(*cacheItem[T]).weight
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
	}
	c.weight += w

	for c.overCapacity() {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

func (c *LRUCache[T]) overCapacity() bool {
	if c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		return true
	}
	return c.maxWeight > 0 && c.weight > c.maxWeight
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Purge drops every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.weight = 0
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.weight -= item.weight
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Weight returns the summed weight of cached entries.
func (c *LRUCache[T]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}
