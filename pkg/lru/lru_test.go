package lru_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/pkg/lru"
)

func weightOne(v string) int64 { return int64(len(v)) }

func TestCache_AddAndGet(t *testing.T) {
	c := lru.New[string, string](100, weightOne)
	c.Add("a", "hello")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := lru.New[string, string](10, weightOne)
	c.Add("a", "aaaaa") // weight 5
	c.Add("b", "bbbbb") // weight 5, used = 10

	evicted := c.Add("c", "ccccc") // pushes used to 15, must evict one
	require.Len(t, evicted, 1)
	assert.Equal(t, "a", evicted[0].Key)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_GetPromotesToFront(t *testing.T) {
	c := lru.New[string, string](10, weightOne)
	c.Add("a", "aaaaa")
	c.Add("b", "bbbbb")

	c.Get("a") // promote a, b is now oldest

	evicted := c.Add("c", "ccccc")
	require.Len(t, evicted, 1)
	assert.Equal(t, "b", evicted[0].Key)
}

func TestCache_RemoveOldestMatchingSkipsIneligible(t *testing.T) {
	c := lru.New[string, string](100, weightOne)
	c.Add("a", "aaaaa")
	c.Add("b", "bbbbb")
	c.Add("c", "ccccc")

	ev, ok := c.RemoveOldestMatching(func(k string, v string) bool {
		return k != "a"
	})
	require.True(t, ok)
	assert.Equal(t, "b", ev.Key)

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_RemoveOldestMatchingNoneEligible(t *testing.T) {
	c := lru.New[string, string](100, weightOne)
	c.Add("a", "aaaaa")

	_, ok := c.RemoveOldestMatching(func(k string, v string) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Remove(t *testing.T) {
	c := lru.New[string, string](100, weightOne)
	c.Add("a", "aaaaa")
	c.Remove("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Used())
}

func TestCache_EvictionChannelReceivesEviction(t *testing.T) {
	c := lru.New[string, string](5, weightOne)
	c.EvictionChannel = make(chan lru.Eviction[string, string], 4)

	c.Add("a", "aaaaa")
	c.Add("b", "bbbbb")

	select {
	case ev := <-c.EvictionChannel:
		assert.Equal(t, "a", ev.Key)
	default:
		t.Fatal("expected an eviction on the channel")
	}
}
