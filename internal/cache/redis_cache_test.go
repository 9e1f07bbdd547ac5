package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Gross int64 `json:"gross"`
	Count int   `json:"count"`
}

func newTestCache(t *testing.T) (*RedisStatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisStatsCache(NewRedisClient(mr.Addr(), "", 0), "test:")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisStatsCacheRoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	var got stats
	ok, err := c.Get(ctx, "today", &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "today", stats{Gross: 2100, Count: 3}, 20*time.Second))
	ok, err = c.Get(ctx, "today", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stats{Gross: 2100, Count: 3}, got)

	mr.FastForward(21 * time.Second)
	ok, err = c.Get(ctx, "today", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStatsCacheInvalidateKeepsForeignKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "today", stats{Gross: 1}, time.Minute))
	require.NoError(t, c.Set(ctx, "week", stats{Gross: 2}, time.Minute))
	require.NoError(t, mr.Set("other:key", "kept"))

	require.NoError(t, c.Invalidate(ctx))

	var got stats
	ok, err := c.Get(ctx, "week", &got)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, mr.Exists("other:key"))
}

func TestNoopStatsCache(t *testing.T) {
	var c StatsCache = NoopStatsCache{}
	ok, err := c.Get(context.Background(), "k", &stats{})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Set(context.Background(), "k", stats{}, time.Second))
	require.NoError(t, c.Invalidate(context.Background()))
}
