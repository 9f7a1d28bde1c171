package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/pkg/logger"
)

// SignalFanout queries every configured agent concurrently for one ticker.
type SignalFanout struct {
	client         domsvc.AgentClient
	metrics        domrepo.Metrics
	log            *logger.Logger
	retryAllowance time.Duration
	retryBackoff   time.Duration
}

type FanoutOption func(*SignalFanout)

// WithRetryAllowance bounds how far a retry started before the deadline may run past it.
func WithRetryAllowance(d time.Duration) FanoutOption {
	return func(f *SignalFanout) {
		if d >= 0 {
			f.retryAllowance = d
		}
	}
}

func WithRetryBackoff(d time.Duration) FanoutOption {
	return func(f *SignalFanout) {
		if d >= 0 {
			f.retryBackoff = d
		}
	}
}

func NewSignalFanout(client domsvc.AgentClient, metrics domrepo.Metrics, log *logger.Logger, opts ...FanoutOption) *SignalFanout {
	f := &SignalFanout{
		client:         client,
		metrics:        metrics,
		log:            log,
		retryAllowance: 500 * time.Millisecond,
		retryBackoff:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type fanoutCall struct {
	cancel   context.CancelFunc
	retrying atomic.Bool
}

// Query returns one outcome per agent, in configured order. Calls still outstanding at the
// deadline are cancelled and recorded as absent, except a retry already in flight, which gets
// at most the retry allowance beyond the deadline.
func (f *SignalFanout) Query(ctx context.Context, req models.AnalysisRequest, agents []models.AgentEndpoint, deadline time.Duration) []models.AgentOutcome {
	start := time.Now()
	out := make([]models.AgentOutcome, len(agents))
	if len(agents) == 0 {
		return out
	}

	deadlineAt := start.Add(deadline)
	hardCtx, hardCancel := context.WithDeadline(ctx, deadlineAt.Add(f.retryAllowance))
	defer hardCancel()

	type result struct {
		idx     int
		outcome models.AgentOutcome
	}
	results := make(chan result, len(agents))
	calls := make([]*fanoutCall, len(agents))
	for i, ep := range agents {
		callCtx, cancel := context.WithCancel(hardCtx)
		c := &fanoutCall{cancel: cancel}
		calls[i] = c
		go func(i int, ep models.AgentEndpoint) {
			defer cancel()
			o := f.callWithRetry(callCtx, c, ep, req, deadlineAt)
			o.Latency = time.Since(start)
			results <- result{idx: i, outcome: o}
		}(i, ep)
	}

	done := make([]bool, len(agents))
	pending := len(agents)
	expire := func(onlyIdle bool) {
		for i, c := range calls {
			if done[i] || (onlyIdle && c.retrying.Load()) {
				continue
			}
			c.cancel()
			done[i] = true
			out[i] = models.AbsentOutcome(agents[i].Name)
			out[i].Latency = time.Since(start)
			pending--
		}
	}

	timer := time.NewTimer(time.Until(deadlineAt))
	defer timer.Stop()
	var hard <-chan struct{}
	for pending > 0 {
		select {
		case r := <-results:
			if done[r.idx] {
				continue
			}
			done[r.idx] = true
			out[r.idx] = r.outcome
			pending--
		case <-timer.C:
			expire(true)
			hard = hardCtx.Done()
		case <-hard:
			expire(false)
		case <-ctx.Done():
			expire(false)
		}
	}

	f.record(req, out, time.Since(start))
	return out
}

func (f *SignalFanout) callWithRetry(ctx context.Context, c *fanoutCall, ep models.AgentEndpoint, req models.AnalysisRequest, deadlineAt time.Time) models.AgentOutcome {
	firstCtx, cancel := context.WithDeadline(ctx, deadlineAt)
	o := f.client.Call(firstCtx, ep, req)
	cancel()
	if o.Kind != models.OutcomeError || o.Err == nil || !o.Err.Transient() {
		return o
	}
	if ctx.Err() != nil || time.Until(deadlineAt) <= f.retryBackoff {
		return exhausted(ep.Name, o.Err, 1)
	}

	c.retrying.Store(true)
	t := time.NewTimer(f.retryBackoff)
	select {
	case <-ctx.Done():
		t.Stop()
		return exhausted(ep.Name, o.Err, 1)
	case <-t.C:
	}

	second := f.client.Call(ctx, ep, req)
	second.Attempts = 2
	if second.Kind == models.OutcomeError && second.Err != nil && second.Err.Transient() {
		return exhausted(ep.Name, second.Err, 2)
	}
	return second
}

// exhausted turns a transient failure with no retry budget left into an absent outcome.
func exhausted(agent string, cause *models.AgentError, attempts int) models.AgentOutcome {
	o := models.AbsentOutcome(agent)
	o.Err = cause
	o.Attempts = attempts
	return o
}

func (f *SignalFanout) record(req models.AnalysisRequest, out []models.AgentOutcome, elapsed time.Duration) {
	present := 0
	for _, o := range out {
		errKind := ""
		if o.Err != nil {
			errKind = string(o.Err.Kind)
		}
		f.metrics.RecordAgentOutcome(o.Agent, o.Kind, errKind)
		switch o.Kind {
		case models.OutcomeSignal:
			present++
		case models.OutcomeError:
			f.log.Warn("agent call failed",
				logger.CorrelationID(req.CorrelationID),
				logger.String("agent", o.Agent),
				logger.String("kind", errKind),
				logger.String("cause", o.Err.Cause),
				logger.Int("attempts", o.Attempts),
			)
		case models.OutcomeAbsent:
			f.log.Warn("agent absent",
				logger.CorrelationID(req.CorrelationID),
				logger.String("agent", o.Agent),
				logger.Int("attempts", o.Attempts),
				logger.Duration("latency_ms", o.Latency),
			)
		}
	}
	f.metrics.RecordLatency("fanout", elapsed.Seconds())
	f.log.Debug("fanout complete",
		logger.CorrelationID(req.CorrelationID),
		logger.String("ticker", req.Ticker),
		logger.Int("agents", len(out)),
		logger.Int("present", present),
		logger.Duration("elapsed_ms", elapsed),
	)
}
