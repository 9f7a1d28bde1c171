package middleware

import (
	"context"
	"sync"
	"time"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	pkgcache "TradeCore/pkg/cache"
	"TradeCore/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	ReportOutcome(ctx context.Context, job *models.FeedbackJob) (map[string]float64, error)
}

// FeedbackPipeline runs learning feedback off the request path. It throttles per symbol,
// buffers up to a bound and drops when full: losing one adaptation step is preferable to
// slowing down decisions.
type FeedbackPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	log        *logger.Logger
	bufSize    int
	workers    int
	cooldown   time.Duration
	jobTimeout time.Duration
	shared     pkgcache.Service

	bufCh    chan *models.FeedbackJob
	mu       sync.Mutex
	started  bool
	closed   bool
	lastSeen map[string]time.Time // per-symbol last accepted time
	pending  map[string]struct{}  // symbols with a Submit between cooldown check and enqueue
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type PipelineOption func(*FeedbackPipeline)

// WithBufferSize sets how many jobs may wait for a worker.
func WithBufferSize(n int) PipelineOption {
	return func(p *FeedbackPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithWorkers sets how many jobs run concurrently.
func WithWorkers(n int) PipelineOption {
	return func(p *FeedbackPipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithCooldown sets the minimum gap between accepted jobs for one symbol. Zero disables it.
func WithCooldown(d time.Duration) PipelineOption {
	return func(p *FeedbackPipeline) {
		if d >= 0 {
			p.cooldown = d
		}
	}
}

func WithJobTimeout(d time.Duration) PipelineOption {
	return func(p *FeedbackPipeline) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithSharedCooldown applies the cooldown across replicas through a shared cache.
func WithSharedCooldown(c pkgcache.Service) PipelineOption {
	return func(p *FeedbackPipeline) { p.shared = c }
}

func NewFeedbackPipeline(proc Proc, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *FeedbackPipeline {
	p := &FeedbackPipeline{
		proc:       proc,
		metrics:    metrics,
		log:        log,
		bufSize:    256,
		workers:    1,
		cooldown:   30 * time.Second,
		jobTimeout: 30 * time.Second,
		lastSeen:   make(map[string]time.Time),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.FeedbackJob, p.bufSize)
	return p
}

// Start launches the workers. Calling it twice is a no-op.
func (p *FeedbackPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.bufCh {
				p.run(ctx, job)
			}
		}()
	}
}

// Stop refuses new jobs and drains the buffer until ctx expires, then abandons the rest.
func (p *FeedbackPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.bufCh)
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Submit enqueues without blocking and reports whether the job was accepted.
// A symbol's cooldown starts only once its job is in the buffer, so a dropped job does not
// hold back the next one.
func (p *FeedbackPipeline) Submit(ctx context.Context, job *models.FeedbackJob) bool {
	if job == nil || job.Request.Ticker == "" {
		p.metrics.RecordError("feedback_validate")
		return false
	}
	symbol := job.Request.Ticker
	now := time.Now()

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		p.metrics.RecordFeedback("dropped_closed")
		return false
	case !p.reserve(symbol, now):
		p.mu.Unlock()
		p.metrics.RecordFeedback("throttled")
		return false
	}
	p.mu.Unlock()

	sharedKey, ok := p.claimShared(ctx, symbol)
	if !ok {
		p.release(symbol, "")
		p.metrics.RecordFeedback("throttled")
		return false
	}

	p.mu.Lock()
	result := "accepted"
	if p.closed {
		result = "dropped_closed"
	} else {
		select {
		case p.bufCh <- job:
			if p.cooldown > 0 {
				p.lastSeen[symbol] = now
			}
			p.metrics.RecordQueueDepth("feedback", len(p.bufCh))
		default:
			result = "dropped_full"
		}
	}
	delete(p.pending, symbol)
	p.mu.Unlock()

	if result == "accepted" {
		return true
	}
	p.release("", sharedKey)
	p.metrics.RecordFeedback(result)
	if result == "dropped_full" {
		p.log.Warn("feedback buffer full, dropping job",
			logger.CorrelationID(job.Request.CorrelationID),
			logger.String("ticker", symbol),
		)
	}
	return false
}

func (p *FeedbackPipeline) run(ctx context.Context, job *models.FeedbackJob) {
	if !job.Queued.IsZero() {
		p.metrics.RecordLatency("feedback_queue_wait", time.Since(job.Queued).Seconds())
	}
	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordError("feedback_panic")
			p.log.Error("feedback job panicked", logger.CorrelationID(job.Request.CorrelationID), logger.Any("panic", r))
		}
	}()
	// The processor logs and counts its own failures.
	_, _ = p.proc.ReportOutcome(ctx, job)
}

// reserve checks the local cooldown and marks symbol in flight. Caller holds p.mu.
func (p *FeedbackPipeline) reserve(symbol string, now time.Time) bool {
	if p.cooldown <= 0 {
		return true
	}
	if _, busy := p.pending[symbol]; busy {
		return false
	}
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.cooldown {
		return false
	}
	p.pending[symbol] = struct{}{}
	return true
}

// claimShared takes the cross-replica cooldown key. The shared store is advisory: when it
// fails the local cooldown alone applies. The returned key is empty when nothing was taken.
func (p *FeedbackPipeline) claimShared(ctx context.Context, symbol string) (string, bool) {
	if p.cooldown <= 0 || p.shared == nil {
		return "", true
	}
	key := pkgcache.GenerateKey("feedback:cooldown", symbol)
	ok, err := p.shared.TryLock(ctx, key, p.cooldown)
	if err != nil {
		p.log.Debug("shared feedback cooldown unavailable", logger.Error(err))
		return "", true
	}
	if !ok {
		return "", false
	}
	return key, true
}

// release undoes a reservation that did not end in the buffer.
func (p *FeedbackPipeline) release(symbol, sharedKey string) {
	if symbol != "" {
		p.mu.Lock()
		delete(p.pending, symbol)
		p.mu.Unlock()
	}
	if sharedKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.shared.Unlock(ctx, sharedKey); err != nil {
			p.log.Debug("shared feedback cooldown release failed", logger.Error(err))
		}
	}
}
