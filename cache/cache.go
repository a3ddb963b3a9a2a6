// Package cache implements the process-local, byte-bounded value cache
// consulted before any network work on the consumer side.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/distcompute/treebcast/metrics"
)

// DefaultMaxBytes bounds the cache's total admitted value size. It is a
// generous default for a cache meant to hold a handful of large broadcast
// values, not many small ones.
const DefaultMaxBytes = 512 * 1024 * 1024

const maxEntries = 4096

type entry struct {
	value interface{}
	size  int64
}

// Cache is a bounded, broadcast-id-keyed value cache. It evicts
// least-recently-used entries once the total admitted size would exceed
// MaxBytes, via the underlying hashicorp/golang-lru cache's OnEvict.
type Cache struct {
	MaxBytes int64

	mu       sync.Mutex
	lru      *lru.Cache
	curBytes int64
}

// New constructs a Cache with the given byte budget. A zero or negative
// maxBytes falls back to DefaultMaxBytes.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	c := &Cache{MaxBytes: maxBytes}
	l, err := lru.NewWithEvict(maxEntries, c.onEvict)
	if err != nil {
		// Only fails for a non-positive size constant, which is fixed above.
		panic(err)
	}
	c.lru = l
	return c
}

func (c *Cache) onEvict(key interface{}, value interface{}) {
	e := value.(entry)
	c.curBytes -= e.size
	metrics.CacheEvictions.Mark(1)
	metrics.CacheBytes.Update(c.curBytes)
}

// Put admits value into the cache under id, sized at encodedSize bytes. It
// returns false, admitting nothing, if encodedSize alone would exceed
// MaxBytes: no amount of eviction of other entries would make room for it.
func (c *Cache) Put(id string, value interface{}, encodedSize int64) bool {
	if encodedSize > c.MaxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(id); ok {
		c.curBytes -= old.(entry).size
	}

	for c.curBytes+encodedSize > c.MaxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	c.lru.Add(id, entry{value: value, size: encodedSize})
	c.curBytes += encodedSize
	metrics.CacheBytes.Update(c.curBytes)
	return true
}

// Get returns the cached value for id, if present.
func (c *Cache) Get(id string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(id)
	if !ok {
		metrics.CacheMisses.Mark(1)
		return nil, false
	}
	metrics.CacheHits.Mark(1)
	return v.(entry).value, true
}

// Remove evicts id from the cache, if present.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

// Len reports the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
