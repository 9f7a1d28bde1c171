package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/pkg/logger"
)

// LearningFeedbackLoop sends decision context to the learning collaborator and commits the
// deltas it proposes. Any failure leaves the policy unchanged.
type LearningFeedbackLoop struct {
	client  domsvc.LearningClient
	store   domrepo.PolicyStore
	ledger  domrepo.Ledger
	metrics domrepo.Metrics
	log     *logger.Logger
	mode    string
	window  int
}

func NewLearningFeedbackLoop(client domsvc.LearningClient, store domrepo.PolicyStore, ledger domrepo.Ledger, metrics domrepo.Metrics, log *logger.Logger, mode string, window int) *LearningFeedbackLoop {
	return &LearningFeedbackLoop{
		client:  client,
		store:   store,
		ledger:  ledger,
		metrics: metrics,
		log:     log,
		mode:    mode,
		window:  window,
	}
}

// ReportOutcome returns the deltas that were committed, possibly none.
func (f *LearningFeedbackLoop) ReportOutcome(ctx context.Context, job *models.FeedbackJob) (map[string]float64, error) {
	start := time.Now()
	defer func() { f.metrics.RecordLatency("feedback", time.Since(start).Seconds()) }()

	l := f.log.With(logger.CorrelationID(job.Request.CorrelationID), logger.String("ticker", job.Request.Ticker))
	payload := f.payload(ctx, job, l)

	res, err := f.client.Learn(ctx, payload)
	if err != nil {
		result := "learning_error"
		if errors.Is(err, models.ErrMalformedDeltas) {
			result = "malformed"
		}
		f.metrics.RecordFeedback(result)
		l.Warn("learning feedback failed, policy unchanged", logger.Error(err))
		return nil, err
	}
	if res.State == models.LearningStateWarmup {
		f.metrics.RecordFeedback("warmup")
		l.Info("learning agent warming up, policy unchanged", logger.Strings("reasoning", res.Reasoning))
		return map[string]float64{}, nil
	}

	deltas, err := f.filter(res.Deltas, l)
	if err != nil {
		f.metrics.RecordFeedback("malformed")
		l.Warn("learning deltas rejected, policy unchanged", logger.Error(err))
		return nil, err
	}
	if len(deltas) == 0 {
		f.metrics.RecordFeedback("empty")
		return deltas, nil
	}

	doc, err := f.store.Apply(ctx, deltas, "learning:"+job.Request.CorrelationID)
	if err != nil {
		f.metrics.RecordFeedback("persist_error")
		l.Error("policy update failed, policy unchanged", logger.Error(err))
		return nil, err
	}
	f.metrics.RecordFeedback("applied")
	l.Info("policy adapted",
		logger.Any("deltas", deltas),
		logger.Int64("policy_version", doc.Version),
		logger.String("learning_state", res.State),
		logger.Strings("reasoning", res.Reasoning),
	)
	return deltas, nil
}

func (f *LearningFeedbackLoop) payload(ctx context.Context, job *models.FeedbackJob, l *logger.Logger) *models.FeedbackPayload {
	p := &models.FeedbackPayload{
		LearningMode:  f.mode,
		WindowSize:    f.window,
		CorrelationID: job.Request.CorrelationID,
		Symbol:        job.Request.Ticker,
		AccountID:     job.Request.AccountID,
		ActionTaken:   models.ActionHold,
		Order:         job.Order,
		Portfolio:     job.Portfolio,
		CurrentPolicy: f.store.Current().CloneValues(),
	}
	if o := job.Outcome; o != nil {
		p.Signals = o.Contributing
		p.AggregateConfidence = o.AggregateConfidence
		p.Degraded = o.Degraded
	}
	if job.Order != nil {
		p.ActionTaken = job.Order.Side
	}
	if p.Signals == nil {
		p.Signals = []models.AgentSignal{}
	}

	// Trade history is context for the learner, so it is fetched best-effort.
	if f.ledger != nil && job.Request.AccountID != "" {
		trades, err := f.ledger.TradeHistory(ctx, job.Request.AccountID, f.window)
		if err != nil {
			l.Debug("trade history unavailable for feedback", logger.Error(err))
		}
		p.TradeHistory = trades
	}
	if p.TradeHistory == nil {
		p.TradeHistory = []models.TradeRecord{}
	}
	return p
}

// filter drops names the policy does not bound and zero deltas. A non-finite delta rejects the set.
func (f *LearningFeedbackLoop) filter(in map[string]float64, l *logger.Logger) (map[string]float64, error) {
	bounds := f.store.Bounds()
	out := make(map[string]float64, len(in))
	for name, d := range in {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: %s=%v", models.ErrMalformedDeltas, name, d)
		}
		if _, ok := bounds.Lookup(name); !ok {
			l.Warn("dropping delta for unknown parameter", logger.String("param", name), logger.Float64("delta", d))
			continue
		}
		if d == 0 {
			continue
		}
		out[name] = d
	}
	return out, nil
}

// InlineFeedback runs the loop on the request path, for deployments that want adaptation to be
// visible before the response returns.
type InlineFeedback struct {
	loop    *LearningFeedbackLoop
	timeout time.Duration
}

func NewInlineFeedback(loop *LearningFeedbackLoop, timeout time.Duration) *InlineFeedback {
	return &InlineFeedback{loop: loop, timeout: timeout}
}

func (s *InlineFeedback) Submit(ctx context.Context, job *models.FeedbackJob) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	_, err := s.loop.ReportOutcome(ctx, job)
	return err == nil
}
