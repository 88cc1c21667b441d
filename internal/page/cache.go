package page

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheCapacity is the page cache capacity used when none is
// configured.
const DefaultCacheCapacity = 128

// CacheStats tracks cache performance counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Cache is a bounded strict-LRU cache of decoded nodes keyed by page id.
// It sits between the tree and the pager and is never the sole authority
// for a page: the tree writes through to the pager before (or together
// with) every Put, so eviction can drop any entry safely.
//
// Get and Put move entries to most-recently-used; Put evicts the LRU
// entry at capacity. Entries are stored and returned as private copies so
// callers can mutate their node freely without aliasing the cache.
//
// The cache is exclusively owned by one tree; it performs no locking.
type Cache struct {
	lru   *lru.LRU[uint32, *Node]
	stats CacheStats
}

// NewCache returns a cache with the given capacity; a non-positive
// capacity falls back to DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &Cache{}
	// simplelru only errors on a non-positive size, which is excluded above.
	c.lru, _ = lru.NewLRU[uint32, *Node](capacity, func(uint32, *Node) {
		c.stats.Evictions++
	})
	return c
}

// Get returns a copy of the cached node for id and promotes it to
// most-recently-used, or nil/false on a miss. Get never reaches the
// pager.
func (c *Cache) Get(id uint32) (*Node, bool) {
	cached, ok := c.lru.Get(id)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	out := *cached
	return &out, true
}

// Put inserts or replaces the node for id, evicting the least recently
// used entry if the cache is at capacity.
func (c *Cache) Put(id uint32, n *Node) {
	stored := *n
	c.lru.Add(id, &stored)
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry without touching the counters.
func (c *Cache) Purge() {
	evictions := c.stats.Evictions
	c.lru.Purge()
	c.stats.Evictions = evictions
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	s := c.stats
	s.Size = c.lru.Len()
	return s
}
