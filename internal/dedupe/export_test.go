package dedupe

import "time"

// SetClock replaces the cache clock in tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
