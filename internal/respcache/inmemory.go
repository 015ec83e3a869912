package respcache

import (
	"container/list"
	"context"
	"sync"
)

// InMemoryCache implements Cache with a mutex-guarded LRU bounded by
// maxEntries. Bounding matters here: keys spread over every distinct
// (path, params) pair the process ever requests, so an unbounded map grows
// for the process lifetime.
type InMemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[string]*list.Element
}

type lruEntry struct {
	key  string
	body []byte
}

// NewInMemoryCache creates an LRU response cache holding at most maxEntries
// bodies. maxEntries <= 0 defaults to 256.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &InMemoryCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the cached body for key and marks it most recently used.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).body, true, nil
}

// Set stores body under key, replacing any previous entry and evicting the
// least recently used entry when the cache is full.
func (c *InMemoryCache) Set(ctx context.Context, key string, body []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry).body = body
		c.order.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.order.PushFront(&lruEntry{key: key, body: body})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*lruEntry).key)
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
