package cart

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
)

// CacheStats reports LRU counters. HitRate is a fraction in [0,1].
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"maxSize"`
	HitRate   float64 `json:"hitRate"`
}

type lruEntry struct {
	key       string
	view      *View
	expiresAt time.Time
}

// LRUCache is an in-process least-recently-used cache of cart views keyed by
// session id. Entries expire after the configured TTL.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
	now      func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the cached view. An expired entry is removed and counted as a miss.
func (c *LRUCache) Get(_ context.Context, sessionID string) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[sessionID]
	if !ok {
		c.misses++
		return nil, ErrCacheMiss
	}
	entry := el.Value.(*lruEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(el)
		c.misses++
		return nil, ErrCacheMiss
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry.view, nil
}

func (c *LRUCache) Set(_ context.Context, sessionID string, view *View) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.entries[sessionID]; ok {
		entry := el.Value.(*lruEntry)
		entry.view = view
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions++
		}
	}
	c.entries[sessionID] = c.order.PushFront(&lruEntry{key: sessionID, view: view, expiresAt: expiresAt})
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[sessionID]; ok {
		c.removeElement(el)
	}
	return nil
}

// Has reports whether a live entry exists without touching recency or stats.
func (c *LRUCache) Has(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[sessionID]
	if !ok {
		return false
	}
	return c.now().Before(el.Value.(*lruEntry).expiresAt)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element, c.capacity)
}

// Cleanup drops expired entries and returns how many were removed.
func (c *LRUCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*lruEntry).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		MaxSize:   c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Snapshot exposes the counters to the prometheus collectors.
func (c *LRUCache) Snapshot() metrics.CacheStats {
	s := c.Stats()
	return metrics.CacheStats{
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
		Size:      s.Size,
		MaxSize:   s.MaxSize,
	}
}

func (c *LRUCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Sessions lists cached session ids, most recently used first.
func (c *LRUCache) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*lruEntry).key)
	}
	return out
}

func (c *LRUCache) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len() >= c.capacity
}

func (c *LRUCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).key)
}
