package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	clk := &clock{t: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_GetSetExpire(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)

	c.Set("u1|all", "a")
	v, ok := c.Get("u1|all")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	clk.advance(time.Minute + time.Second)
	_, ok = c.Get("u1|all")
	assert.False(t, ok, "expired")
	assert.Zero(t, c.Size())
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("u1|all", "x")
	c.Set("u1|2025-03-01", "y")
	c.Set("u10|all", "z")

	assert.Equal(t, 2, c.DeletePrefix("u1|"))
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("u10|all")
	assert.True(t, ok)

	c.Delete("u10|all")
	assert.Zero(t, c.Size())
}

func TestLRUCache_ZeroTTLDisables(t *testing.T) {
	c, _ := newTestCache(10, 0)
	c.Set("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestManager_CleanAll(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	clk.advance(2 * time.Minute)
	c.Set("c", "3")

	m := NewManager(nil)
	m.Register(c)
	assert.Equal(t, 2, m.CleanAll())
	assert.Equal(t, 1, c.Size())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewManager(nil).Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without StartCleanup")
	}
}
