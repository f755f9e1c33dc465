package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/stealthfetch/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestKey_VariesWithRenderingInputs(t *testing.T) {
	t.Parallel()

	base := &models.FetchRequest{URL: "https://example.com"}
	fast := &models.FetchRequest{URL: "https://example.com", FetchConfig: models.FetchConfig{FastMode: true}}
	eng := &models.FetchRequest{URL: "https://example.com", FetchConfig: models.FetchConfig{Engine: models.EngineChromedp}}
	sel := &models.FetchRequest{URL: "https://example.com", FetchConfig: models.FetchConfig{WaitForSelector: "#main"}}
	hdr := &models.FetchRequest{URL: "https://example.com", FetchConfig: models.FetchConfig{Locale: "de-DE"}}

	assert.NotEqual(t, Key(base), Key(fast))
	assert.NotEqual(t, Key(base), Key(eng))
	assert.NotEqual(t, Key(base), Key(sel))
	assert.Equal(t, Key(base), Key(hdr))
	assert.Len(t, Key(base), 64)
}

func TestCache_HitWithinMaxAge(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	c := newCache(10, time.Hour, clock.now)
	c.Set("k", &models.FetchResponse{Success: true, HTML: "<html></html>"})

	clock.t = clock.t.Add(4 * time.Second)
	got, ok := c.Get("k", 5000)
	require.True(t, ok)
	assert.Equal(t, "<html></html>", got.HTML)

	clock.t = clock.t.Add(2 * time.Second)
	_, ok = c.Get("k", 5000)
	assert.False(t, ok)
}

func TestCache_ZeroMaxAgeIsMiss(t *testing.T) {
	t.Parallel()

	c := newCache(10, time.Hour, time.Now)
	c.Set("k", &models.FetchResponse{Success: true})

	_, ok := c.Get("k", 0)
	assert.False(t, ok)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	c := newCache(10, time.Hour, time.Now)
	c.Set("k", &models.FetchResponse{Success: true})

	got, ok := c.Get("k", 1000)
	require.True(t, ok)
	got.CacheStatus = "hit"

	again, _ := c.Get("k", 1000)
	assert.Empty(t, again.CacheStatus)
}

func TestCache_IgnoresFailures(t *testing.T) {
	t.Parallel()

	c := newCache(10, time.Hour, time.Now)
	c.Set("k", &models.FetchResponse{Success: false})
	c.Set("n", nil)

	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	t.Parallel()

	c := newCache(2, time.Hour, time.Now)
	c.Set("a", &models.FetchResponse{Success: true})
	c.Set("b", &models.FetchResponse{Success: true})
	c.Set("b", &models.FetchResponse{Success: true})
	assert.Equal(t, 2, c.Len())

	c.Set("c", &models.FetchResponse{Success: true})
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c", 1000)
	assert.True(t, ok)
}

func TestCache_EvictExpired(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	c := newCache(10, time.Minute, clock.now)
	c.Set("old", &models.FetchResponse{Success: true})
	clock.t = clock.t.Add(2 * time.Minute)
	c.Set("new", &models.FetchResponse{Success: true})

	c.evictExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("new", 1000)
	assert.True(t, ok)
}
