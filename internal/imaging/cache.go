package imaging

import (
	"image"
	"sync"
)

// Loader resolves an image source to a decoded NRGBA image.
type Loader interface {
	Load(source string) (*image.NRGBA, error)
}

// Cache is a concurrency-safe image cache keyed by source string. Failed
// loads are cached too so a broken asset does not hammer the disk.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*cacheEntry
}

type cacheEntry struct {
	img *image.NRGBA
	err error
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*cacheEntry)}
}

// Load decodes and caches an image source.
func (c *Cache) Load(source string) (*image.NRGBA, error) {
	// Fast path: read lock
	c.mu.RLock()
	if entry, exists := c.items[source]; exists {
		c.mu.RUnlock()
		return entry.img, entry.err
	}
	c.mu.RUnlock()

	// Slow path: decode outside the lock
	img, err := Load(source)

	// Write lock with double-check
	c.mu.Lock()
	if entry, exists := c.items[source]; exists {
		c.mu.Unlock()
		return entry.img, entry.err
	}
	c.items[source] = &cacheEntry{img: img, err: err}
	c.mu.Unlock()

	return img, err
}

// Invalidate drops one source from the cache, e.g. after a re-upload under
// the same path.
func (c *Cache) Invalidate(source string) {
	c.mu.Lock()
	delete(c.items, source)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
