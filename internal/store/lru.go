package store

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is the size-bounded read-through cache in front of the database,
// with sliding expiration: an entry's clock resets on every access.
type lruCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recent
	size    int
	expiry  time.Duration
}

type lruEntry struct {
	key      string
	sig      *StoredSignature
	lastUsed time.Time
}

func newLRUCache(size int, expiry time.Duration) *lruCache {
	return &lruCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		size:    size,
		expiry:  expiry,
	}
}

func (c *lruCache) get(key string) (*StoredSignature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if c.expiry > 0 && time.Since(entry.lastUsed) > c.expiry {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	entry.lastUsed = time.Now()
	c.order.MoveToFront(el)
	return entry.sig, true
}

func (c *lruCache) put(key string, sig *StoredSignature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.sig = sig
		entry.lastUsed = time.Now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{key: key, sig: sig, lastUsed: time.Now()})
	c.entries[key] = el
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
