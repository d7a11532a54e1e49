package imagehash

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	hash Hash
	err  error
}

// Cache memoizes hashes by reference. Concurrent lookups of the same
// reference share one load. Cancellation is never cached.
type Cache struct {
	fetcher  *Fetcher
	gridSize int

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache(fetcher *Fetcher, gridSize int) *Cache {
	return &Cache{
		fetcher:  fetcher,
		gridSize: gridSize,
		entries:  make(map[string]cacheEntry),
	}
}

// Hash returns the hash of the image at ref, a URL or a file path.
func (c *Cache) Hash(ctx context.Context, ref string) (Hash, error) {
	c.mu.RLock()
	entry, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok {
		return entry.hash, entry.err
	}

	v, err, _ := c.group.Do(ref, func() (any, error) {
		h, err := ComputeHash(ctx, ParseSource(ref, c.fetcher), c.gridSize)
		if err != nil && ctx.Err() != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[ref] = cacheEntry{hash: h, err: err}
		c.mu.Unlock()
		return h, err
	})
	if err != nil {
		return nil, err
	}
	return v.(Hash), nil
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
