package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/stealthfetch/config"
)

func TestLimiterSet_PerIdentityBuckets(t *testing.T) {
	t.Parallel()

	set := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	assert.True(t, set.allow("a", now))
	assert.True(t, set.allow("a", now))
	assert.False(t, set.allow("a", now))
	assert.True(t, set.allow("b", now))

	assert.True(t, set.allow("a", now.Add(time.Second)))
}

func TestLimiterSet_EvictIdle(t *testing.T) {
	t.Parallel()

	set := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	set.allow("old", now)
	set.allow("fresh", now.Add(50*time.Minute))
	set.evictIdle(now.Add(61 * time.Minute))

	assert.NotContains(t, set.limiters, "old")
	assert.Contains(t, set.limiters, "fresh")
}
