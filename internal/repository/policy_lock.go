package repository

import (
	"context"
	"fmt"
	"time"

	"TradeCore/internal/domain/models"
	"TradeCore/pkg/cache"
	applogger "TradeCore/pkg/logger"
)

const policyLockKey = "policy:write-lock"

// PolicyLock is a cross-process write lock over a cache backend (redis SETNX in production).
type PolicyLock struct {
	c     cache.Service
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
	l     *applogger.Logger
}

// NewPolicyLock holds the lock for at most ttl and waits up to wait to obtain it.
func NewPolicyLock(c cache.Service, ttl, wait time.Duration, l *applogger.Logger) *PolicyLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &PolicyLock{c: c, ttl: ttl, wait: wait, retry: 50 * time.Millisecond, l: l}
}

func (p *PolicyLock) Acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(p.wait)
	for {
		ok, err := p.c.TryLock(ctx, policyLockKey, p.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire policy lock: %w", err)
		}
		if ok {
			return p.release, nil
		}
		if time.Now().Add(p.retry).After(deadline) {
			return nil, models.ErrPolicyLocked
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire policy lock: %w", ctx.Err())
		case <-time.After(p.retry):
		}
	}
}

func (p *PolicyLock) release() {
	// The write may have consumed the caller's deadline; unlocking must still go through.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.c.Unlock(ctx, policyLockKey); err != nil {
		p.l.Warn("policy lock release failed, it will expire", applogger.Error(err), applogger.Duration("ttl_ms", p.ttl))
	}
}
