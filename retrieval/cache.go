// Package retrieval assembles the candidate POI pool for a trip: curated
// dataset, live map search, and LLM supplementation, fused by provenance and
// ranked against the traveler's preferences.
package retrieval

import (
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// CacheStats reports pool-cache performance for the diagnostics endpoint.
type CacheStats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// PoolCache is an LRU cache with TTL for candidate pools. Entries move to the
// front on access; the least recently used entry is evicted at capacity.
type PoolCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[uint64]*lruItem
	head     *lruItem
	tail     *lruItem
	stats    CacheStats
}

// Entry is one cached pool plus which live sources fed it, so a cache hit
// reports the same provider usage as the assembly that populated it.
type Entry struct {
	Pool    []core.POI
	UsedMap bool
	UsedLLM bool
}

type lruItem struct {
	key       uint64
	entry     Entry
	expiresAt time.Time
	prev      *lruItem
	next      *lruItem
}

// NewPoolCache creates a pool cache. Zero capacity or TTL use the defaults.
func NewPoolCache(capacity int, ttl time.Duration) *PoolCache {
	if capacity <= 0 {
		capacity = core.CacheCapacity
	}
	if ttl <= 0 {
		ttl = core.CacheTTL
	}
	return &PoolCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[uint64]*lruItem),
	}
}

// cacheKey identifies a retrieval query. Equal constraint/profile pairs hash
// equal regardless of map iteration order.
type cacheKey struct {
	City   string
	Days   int
	Mode   core.TransportMode
	Pace   core.Pace
	Themes []string
	Must   []string
	Avoid  []string
}

// Key hashes the query-relevant parts of the request.
func Key(constraints core.TripConstraints, profile core.UserProfile) (uint64, error) {
	return hashstructure.Hash(cacheKey{
		City:   constraints.City,
		Days:   constraints.Days,
		Mode:   constraints.TransportMode,
		Pace:   constraints.Pace,
		Themes: profile.Themes,
		Must:   constraints.MustVisit,
		Avoid:  constraints.Avoid,
	}, hashstructure.FormatV2, nil)
}

// Get returns the cached entry for the key, if present and fresh.
func (c *PoolCache) Get(key uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.stats.Misses++
		return Entry{}, false
	}
	if time.Now().After(item.expiresAt) {
		c.removeItem(item)
		c.stats.Misses++
		return Entry{}, false
	}

	c.moveToFront(item)
	c.stats.Hits++
	return cloneEntry(item.entry), true
}

// Set stores an entry under the key.
func (c *PoolCache) Set(key uint64, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found {
		item.entry = cloneEntry(entry)
		item.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(item)
		return
	}

	if len(c.items) >= c.capacity {
		c.removeLRU()
	}

	item := &lruItem{
		key:       key,
		entry:     cloneEntry(entry),
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[key] = item
	c.addToFront(item)
}

// Clear drops every entry.
func (c *PoolCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint64]*lruItem)
	c.head = nil
	c.tail = nil
}

// Stats returns a snapshot of cache statistics.
func (c *PoolCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = len(c.items)
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// cloneEntry copies the pool slice so cached pools stay immutable when
// callers pin or trim their copy.
func cloneEntry(entry Entry) Entry {
	out := make([]core.POI, len(entry.Pool))
	copy(out, entry.Pool)
	entry.Pool = out
	return entry
}

func (c *PoolCache) moveToFront(item *lruItem) {
	if item == c.head {
		return
	}
	c.removeFromList(item)
	c.addToFront(item)
}

func (c *PoolCache) addToFront(item *lruItem) {
	item.prev = nil
	item.next = c.head
	if c.head != nil {
		c.head.prev = item
	}
	c.head = item
	if c.tail == nil {
		c.tail = item
	}
}

func (c *PoolCache) removeFromList(item *lruItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
}

func (c *PoolCache) removeItem(item *lruItem) {
	c.removeFromList(item)
	delete(c.items, item.key)
	c.stats.Evictions++
}

func (c *PoolCache) removeLRU() {
	if c.tail != nil {
		c.removeItem(c.tail)
	}
}
