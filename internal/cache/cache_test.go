package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSet_Basic(t *testing.T) {
	c := New[int](10, time.Minute)
	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestGet_ExpiresByTTL(t *testing.T) {
	c := New[int](10, time.Millisecond)
	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestSet_EvictsLRUAtCapacity(t *testing.T) {
	c := New[int](10, time.Minute)
	for i := 0; i < 10; i++ {
		c.Set(string(rune('a'+i)), i, 0)
	}
	// touch all but "a" to make it least-recently-used
	for i := 1; i < 10; i++ {
		c.Get(string(rune('a' + i)))
	}
	c.Set("k", 99, 0) // triggers eviction of the 10% LRU tail

	_, ok := c.Get("a")
	require.False(t, ok, "least-recently-used entry should have been evicted")
	require.LessOrEqual(t, c.Len(), 10)
}

func TestCleanupExpired_RemovesOnlyExpired(t *testing.T) {
	c := New[int](10, time.Minute)
	c.Set("fresh", 1, time.Minute)
	c.Set("stale", 2, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	require.Equal(t, 1, removed)
	_, ok := c.Get("fresh")
	require.True(t, ok)
}

func TestStats_HitRate(t *testing.T) {
	c := New[int](10, time.Minute)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("missing")

	stats := c.CurrentStats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.InDelta(t, 0.5, stats.HitRate, 0.001)
}
