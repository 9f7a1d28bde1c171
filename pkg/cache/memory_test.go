package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type quote struct {
		Price float64 `json:"price"`
	}
	require.NoError(t, mc.Set(ctx, "q:AAPL", quote{Price: 101.5}, time.Minute))

	var got quote
	require.NoError(t, mc.Get(ctx, "q:AAPL", &got))
	assert.Equal(t, 101.5, got.Price)

	var s string
	require.NoError(t, mc.Set(ctx, "plain", "v", 0))
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "v", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "policy", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "policy", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	require.NoError(t, mc.Unlock(ctx, "policy"))
	ok, err = mc.TryLock(ctx, "policy", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheIncrement(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	n, err := mc.Increment(ctx, "ctr")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = mc.Increment(ctx, "ctr")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := mc.Expire(ctx, "ctr", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "a", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &s))
}
