package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	pkgcache "TradeCore/pkg/cache"
	"TradeCore/pkg/logger"
)

func newBook(t *testing.T, shared pkgcache.Service, capacity int) *QuoteBook {
	t.Helper()
	b := NewQuoteBook(shared, time.Minute, capacity, logger.Nop())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestQuoteBookLocal(t *testing.T) {
	b := newBook(t, nil, 0)
	ctx := context.Background()

	_, ok := b.LatestPrice(ctx, "AAPL")
	assert.False(t, ok)

	now := time.Now()
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "aapl", Price: 190.5, Timestamp: now}))
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "AAPL", Price: 150, Timestamp: now.Add(-time.Second)}))

	p, ok := b.LatestPrice(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, 190.5, p, "older quotes never overwrite newer ones")
}

func TestQuoteBookIgnoresInvalid(t *testing.T) {
	b := newBook(t, nil, 0)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "X", Price: 0}))
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: " ", Price: 3}))

	_, ok := b.LatestPrice(ctx, "X")
	assert.False(t, ok)
	_, ok = b.LatestPrice(ctx, "")
	assert.False(t, ok)
}

func TestQuoteBookEvictsLeastRecentlyRead(t *testing.T) {
	b := newBook(t, nil, 2)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "AAPL", Price: 1, Timestamp: now}))
	time.Sleep(time.Millisecond)
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "MSFT", Price: 2, Timestamp: now}))
	time.Sleep(time.Millisecond)
	_, ok := b.LatestPrice(ctx, "AAPL")
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	require.NoError(t, b.Put(ctx, models.Quote{Symbol: "NVDA", Price: 3, Timestamp: now}))

	_, ok = b.LatestPrice(ctx, "MSFT")
	assert.False(t, ok, "capacity is bounded")
	_, ok = b.LatestPrice(ctx, "AAPL")
	assert.True(t, ok)
	_, ok = b.LatestPrice(ctx, "NVDA")
	assert.True(t, ok)
}

func TestQuoteBookSharedTier(t *testing.T) {
	shared := pkgcache.NewMemoryCache()
	defer shared.Close()
	ctx := context.Background()

	writer := newBook(t, shared, 0)
	reader := newBook(t, shared, 0)

	require.NoError(t, writer.Put(ctx, models.Quote{Symbol: "MSFT", Price: 410, Timestamp: time.Now()}))

	p, ok := reader.LatestPrice(ctx, "msft")
	require.True(t, ok)
	assert.Equal(t, 410.0, p)

	require.NoError(t, shared.Delete(ctx, quoteKey("MSFT")))
	p, ok = reader.LatestPrice(ctx, "MSFT")
	require.True(t, ok, "shared hit is kept locally")
	assert.Equal(t, 410.0, p)
}

func TestQuoteBookStaleSharedQuote(t *testing.T) {
	shared := pkgcache.NewMemoryCache()
	defer shared.Close()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, quoteKey("TSLA"), models.Quote{Symbol: "TSLA", Price: 200, Timestamp: time.Now().Add(-time.Hour)}, time.Hour))

	_, ok := newBook(t, shared, 0).LatestPrice(ctx, "TSLA")
	assert.False(t, ok)
}
