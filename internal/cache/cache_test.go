package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evfleet/station-simulator/internal/cache"
)

func TestSetGet(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 4, MaxEntriesShard: 8, TTL: time.Minute})
	defer c.Close()

	c.Set("TAG1", "Accepted", 0)
	v, ok := c.Get("TAG1")
	assert.True(t, ok)
	assert.Equal(t, "Accepted", v)
}

func TestGetMissing(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 4, MaxEntriesShard: 8, TTL: time.Minute})
	defer c.Close()

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 1, MaxEntriesShard: 8, TTL: time.Minute})
	defer c.Close()

	c.Set("TAG1", "Accepted", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("TAG1")
	assert.False(t, ok)
}

func TestEviction(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 1, MaxEntriesShard: 2, TTL: time.Minute})
	defer c.Close()

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("c", "3", 0)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 2, MaxEntriesShard: 8, TTL: time.Minute})
	defer c.Close()

	c.Set("TAG1", "Accepted", 0)
	c.Delete("TAG1")

	_, ok := c.Get("TAG1")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := cache.New(cache.Config{ShardCount: 4, MaxEntriesShard: 8, TTL: time.Minute})
	defer c.Close()

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Clear()

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := cache.New(cache.Config{
		ShardCount:      1,
		MaxEntriesShard: 8,
		TTL:             time.Minute,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer c.Close()

	c.Set("TAG1", "Accepted", 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("TAG1")
	assert.False(t, ok)
}
