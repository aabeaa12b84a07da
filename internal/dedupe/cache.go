// Package dedupe remembers which announcement fingerprints were already
// delivered downstream.
package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache is a bounded set of fingerprints that expire after ttl. The oldest
// marks are evicted first when capacity is exceeded.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether key was marked inside the ttl window.
func (c *Cache) IsSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.items[key]
	return ok && c.now().Sub(ts) <= c.ttl
}

// MarkSeen records key. Marking again refreshes its ttl.
func (c *Cache) MarkSeen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len returns the number of live fingerprints.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compact(c.now())
	return len(c.items)
}

// compact drops expired marks and stale order entries left by re-marks.
func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 {
		oldest := c.order[0]
		current, ok := c.items[oldest.key]
		stale := !ok || !current.Equal(oldest.ts)
		if !stale && len(c.items) <= c.capacity && !oldest.ts.Before(cutoff) {
			break
		}
		c.order = c.order[1:]
		if !stale {
			delete(c.items, oldest.key)
		}
	}
}
