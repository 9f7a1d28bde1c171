package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"TradeCore/internal/domain/models"
	drepo "TradeCore/internal/domain/repository"
	pkgcache "TradeCore/pkg/cache"
	"TradeCore/pkg/logger"
)

// QuoteBook keeps the latest streamed price per symbol. Reads hit the local tier first and fall
// back to the shared backend, so replicas without a stream of their own still see prices.
type QuoteBook struct {
	local  *pkgcache.MemoryCache
	shared pkgcache.Service
	maxAge time.Duration
	log    *logger.Logger
}

// NewQuoteBook treats quotes older than maxAge as missing and keeps at most capacity symbols
// locally, evicting the least recently read. shared may be nil.
func NewQuoteBook(shared pkgcache.Service, maxAge time.Duration, capacity int, log *logger.Logger) *QuoteBook {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1000
	}
	local := pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(capacity),
		pkgcache.WithMemoryCleanup(maxAge),
	)
	return &QuoteBook{local: local, shared: shared, maxAge: maxAge, log: log}
}

func (b *QuoteBook) Put(ctx context.Context, q models.Quote) error {
	sym := normalize(q.Symbol)
	if sym == "" || q.Price <= 0 {
		return nil
	}
	q.Symbol = sym
	if cur, ok := b.localQuote(ctx, sym); ok && cur.Timestamp.After(q.Timestamp) {
		return nil
	}
	if err := b.local.Set(ctx, quoteKey(sym), q, b.maxAge); err != nil {
		return err
	}
	if b.shared == nil {
		return nil
	}
	return b.shared.Set(ctx, quoteKey(sym), q, b.maxAge)
}

func (b *QuoteBook) LatestPrice(ctx context.Context, symbol string) (float64, bool) {
	sym := normalize(symbol)
	if q, ok := b.localQuote(ctx, sym); ok {
		return q.Price, true
	}
	if b.shared == nil {
		return 0, false
	}
	var q models.Quote
	if err := b.shared.Get(ctx, quoteKey(sym), &q); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			b.log.Debug("shared quote lookup failed", logger.String("symbol", sym), logger.Error(err))
		}
		return 0, false
	}
	if q.Price <= 0 || time.Since(q.Timestamp) > b.maxAge {
		return 0, false
	}
	if err := b.local.Set(ctx, quoteKey(sym), q, b.maxAge-time.Since(q.Timestamp)); err != nil {
		b.log.Debug("local quote write failed", logger.String("symbol", sym), logger.Error(err))
	}
	return q.Price, true
}

// Close stops the local tier's expiry sweep.
func (b *QuoteBook) Close() error {
	return b.local.Close()
}

func (b *QuoteBook) localQuote(ctx context.Context, sym string) (models.Quote, bool) {
	var q models.Quote
	if err := b.local.Get(ctx, quoteKey(sym), &q); err != nil {
		return q, false
	}
	return q, true
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func quoteKey(sym string) string {
	return pkgcache.GenerateKey("quote", sym)
}

var (
	_ drepo.QuoteSource = (*QuoteBook)(nil)
	_ drepo.QuoteSink   = (*QuoteBook)(nil)
)
