package ratelimit

import (
	"context"
	"time"

	pkgcache "TradeCore/pkg/cache"
	"TradeCore/pkg/logger"
)

// SharedLimiter is a fixed-window counter in the shared cache so all replicas see one budget.
// When the cache is unreachable it falls back to the local bucket.
type SharedLimiter struct {
	c        pkgcache.Service
	limit    int64
	window   time.Duration
	fallback *Limiter
	log      *logger.Logger
	now      func() time.Time
}

func NewSharedLimiter(c pkgcache.Service, limit int64, window time.Duration, fallback *Limiter, log *logger.Logger) *SharedLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &SharedLimiter{c: c, limit: limit, window: window, fallback: fallback, log: log, now: time.Now}
}

func (s *SharedLimiter) Allow(ctx context.Context, key string) bool {
	slot := s.now().UnixNano() / int64(s.window)
	k := pkgcache.GenerateKeyWithParams("ratelimit", key, slot)

	n, err := s.c.Increment(ctx, k)
	if err != nil {
		s.log.Debug("shared rate limit unavailable", logger.String("key", key), logger.Error(err))
		return s.fallback.Allow(ctx, key)
	}
	if n == 1 {
		if _, err := s.c.Expire(ctx, k, 2*s.window); err != nil {
			s.log.Debug("rate limit expire failed", logger.String("key", key), logger.Error(err))
		}
	}
	return n <= s.limit
}
