package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/nse-radar/internal/dedupe"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCache(capacity int, ttl time.Duration) (*dedupe.Cache, *clock) {
	clk := &clock{t: time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)}
	c := dedupe.NewCache(capacity, ttl)
	c.SetClock(clk.now)
	return c, clk
}

func TestCacheSeenDuplicate(t *testing.T) {
	cache, _ := newCache(10, time.Minute)
	require.False(t, cache.IsSeen("feed:abc"))
	cache.MarkSeen("feed:abc")
	require.True(t, cache.IsSeen("feed:abc"))
	require.False(t, cache.IsSeen("search:abc"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, clk := newCache(10, time.Minute)
	cache.MarkSeen("beta")
	clk.t = clk.t.Add(61 * time.Second)
	require.False(t, cache.IsSeen("beta"))
	require.Zero(t, cache.Len())
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache, clk := newCache(1, time.Minute)
	cache.MarkSeen("first")
	clk.t = clk.t.Add(time.Second)
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheRemarkRefreshesTTL(t *testing.T) {
	cache, clk := newCache(10, time.Minute)
	cache.MarkSeen("gamma")
	clk.t = clk.t.Add(45 * time.Second)
	cache.MarkSeen("gamma")
	clk.t = clk.t.Add(45 * time.Second)

	require.True(t, cache.IsSeen("gamma"))
	require.Equal(t, 1, cache.Len())
}
