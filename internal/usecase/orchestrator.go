package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	domsvc "TradeCore/internal/domain/service"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/logger"
)

// NoTradeLedgerUnavailable is reported when the portfolio could not be read.
const NoTradeLedgerUnavailable = "ledger_unavailable"

const (
	recordTimeout = 3 * time.Second

	// MaxBatchTickers caps one multi-asset request.
	MaxBatchTickers  = 20
	batchConcurrency = 4
)

// FeedbackSink accepts a decision for learning. Async implementations may drop it.
type FeedbackSink interface {
	Submit(ctx context.Context, job *models.FeedbackJob) bool
}

// Orchestrator runs one analysis request end to end: fanout, synthesis, sizing, order
// submission, decision recording, then feedback.
type Orchestrator struct {
	fanout   *SignalFanout
	synth    *SignalSynthesizer
	risk     *PortfolioRiskManager
	ledger   domrepo.Ledger
	policy   domrepo.PolicyStore
	recorder domrepo.DecisionRecorder
	feedback FeedbackSink
	metrics  domrepo.Metrics
	log      *logger.Logger

	agents   []models.AgentEndpoint
	names    []string
	deadline time.Duration
	scanner  domsvc.Scanner
}

type OrchestratorOption func(*Orchestrator)

// WithScanner enables ScanAndAnalyze.
func WithScanner(s domsvc.Scanner) OrchestratorOption {
	return func(o *Orchestrator) { o.scanner = s }
}

func NewOrchestrator(
	fanout *SignalFanout,
	synth *SignalSynthesizer,
	risk *PortfolioRiskManager,
	ledger domrepo.Ledger,
	policy domrepo.PolicyStore,
	recorder domrepo.DecisionRecorder,
	feedback FeedbackSink,
	metrics domrepo.Metrics,
	log *logger.Logger,
	agents []models.AgentEndpoint,
	deadline time.Duration,
	opts ...OrchestratorOption,
) *Orchestrator {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	o := &Orchestrator{
		fanout:   fanout,
		synth:    synth,
		risk:     risk,
		ledger:   ledger,
		policy:   policy,
		recorder: recorder,
		feedback: feedback,
		metrics:  metrics,
		log:      log,
		agents:   agents,
		names:    names,
		deadline: deadline,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze never fails because of agent or ledger trouble; it degrades to a hold or a
// report without an order instead. Only an unusable request is an error.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisReport, error) {
	start := time.Now()
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.Ticker == "" || req.AccountID == "" {
		o.metrics.RecordError("invalid_request")
		return nil, fmt.Errorf("%w: ticker and account_id are required", models.ErrInvalidRequest)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	l := o.log.With(logger.CorrelationID(req.CorrelationID), logger.String("ticker", req.Ticker))

	// One document for the whole request, so weights and sizing limits agree.
	policy := o.policy.Current()

	report, verdict := o.assess(ctx, req, policy, start)
	portfolio := o.trade(ctx, req, verdict, policy, report, l)
	o.finish(ctx, req, report, verdict, portfolio, start, l)
	return report, nil
}

// AnalyzeBatch analyzes several tickers for one account and sizes them together against one
// portfolio read and one shared per-request budget. Results keep the requested order.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, req models.BatchAnalysisRequest) (*models.BatchReport, error) {
	start := time.Now()
	tickers, err := normalizeTickers(req.Tickers)
	req.AccountID = strings.TrimSpace(req.AccountID)
	if err == nil && req.AccountID == "" {
		err = fmt.Errorf("%w: account_id is required", models.ErrInvalidRequest)
	}
	if err != nil {
		o.metrics.RecordError("invalid_request")
		return nil, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	l := o.log.With(logger.CorrelationID(req.CorrelationID), logger.String("account_id", req.AccountID))
	policy := o.policy.Current()

	reqs := make([]models.AnalysisRequest, len(tickers))
	reports := make([]*models.AnalysisReport, len(tickers))
	verdicts := make([]*models.SynthesisOutcome, len(tickers))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, t := range tickers {
		reqs[i] = models.AnalysisRequest{Ticker: t, AccountID: req.AccountID, CorrelationID: req.CorrelationID}
		g.Go(func() error {
			reports[i], verdicts[i] = o.assess(ctx, reqs[i], policy, time.Now())
			return nil
		})
	}
	_ = g.Wait()

	out := &models.BatchReport{
		CorrelationID: req.CorrelationID,
		AccountID:     req.AccountID,
		Timestamp:     start.UTC(),
		Results:       reports,
	}
	out.Summary.Analyzed = len(reports)

	cands := make([]BatchCandidate, len(tickers))
	directional := false
	for i := range tickers {
		cands[i] = BatchCandidate{Ticker: tickers[i], Outcome: verdicts[i]}
		if verdicts[i].FinalAction == models.ActionHold {
			reports[i].NoTradeReason = NoTradeHold
			continue
		}
		directional = true
	}

	var portfolio *models.PortfolioState
	if directional {
		portfolio, err = o.ledger.Portfolio(ctx, req.AccountID)
		if err != nil {
			l.Warn("portfolio unavailable, no orders for the batch", logger.Error(err))
			for i, v := range verdicts {
				if v.FinalAction != models.ActionHold {
					reports[i].OrderStatus = models.OrderStatusLedgerUnavailable
					reports[i].NoTradeReason = NoTradeLedgerUnavailable
					o.metrics.RecordOrder(models.OrderStatusLedgerUnavailable)
				}
			}
		} else {
			sized := o.risk.SizeBatch(ctx, cands, portfolio, policy)
			// Sells reach the ledger before buys, matching the sizing order.
			for _, side := range []models.Action{models.ActionSell, models.ActionBuy} {
				for i, res := range sized {
					if verdicts[i].FinalAction != side {
						continue
					}
					if res.Order == nil {
						reports[i].NoTradeReason = res.Reason
						o.metrics.RecordOrder("skipped")
						continue
					}
					out.Summary.TradesApproved++
					if res.Scaled {
						out.Summary.TradesScaled++
					}
					reports[i].Order = res.Order
					reports[i].OrderScaled = res.Scaled
					o.submit(ctx, reqs[i], res.Order, reports[i], l)
					if reports[i].OrderStatus == models.OrderStatusSubmitted {
						out.Summary.TradesSubmitted++
					}
				}
			}
		}
	}

	for i := range reports {
		o.finish(ctx, reqs[i], reports[i], verdicts[i], portfolio, start, l.With(logger.String("ticker", tickers[i])))
	}
	o.metrics.RecordLatency("analyze_batch", time.Since(start).Seconds())
	l.Info("batch analysis complete",
		logger.Int("tickers", len(tickers)),
		logger.Int("approved", out.Summary.TradesApproved),
		logger.Int("submitted", out.Summary.TradesSubmitted),
		logger.Int("scaled", out.Summary.TradesScaled),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
	return out, nil
}

// ScanAndAnalyze asks the scanner for candidates and runs the best of them as one batch.
func (o *Orchestrator) ScanAndAnalyze(ctx context.Context, req models.ScanRequest) (*models.BatchReport, error) {
	if o.scanner == nil {
		return nil, fmt.Errorf("%w: no scanner configured", models.ErrScannerUnavailable)
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		o.metrics.RecordError("invalid_request")
		return nil, fmt.Errorf("%w: account_id is required", models.ErrInvalidRequest)
	}
	if req.MaxCandidates <= 0 || req.MaxCandidates > MaxBatchTickers {
		req.MaxCandidates = MaxBatchTickers
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	cands, err := o.scanner.Scan(ctx, req)
	if err != nil {
		o.metrics.RecordError("scanner")
		o.log.Warn("market scan failed", logger.CorrelationID(req.CorrelationID), logger.Error(err))
		return nil, err
	}
	if len(cands) > req.MaxCandidates {
		cands = cands[:req.MaxCandidates]
	}
	if len(cands) == 0 {
		return &models.BatchReport{
			CorrelationID: req.CorrelationID,
			AccountID:     req.AccountID,
			Timestamp:     time.Now().UTC(),
			Candidates:    cands,
			Results:       []*models.AnalysisReport{},
		}, nil
	}

	tickers := make([]string, len(cands))
	for i, c := range cands {
		tickers[i] = c.Symbol
	}
	out, err := o.AnalyzeBatch(ctx, models.BatchAnalysisRequest{Tickers: tickers, AccountID: req.AccountID, CorrelationID: req.CorrelationID})
	if err != nil {
		return nil, err
	}
	out.Candidates = cands
	return out, nil
}

// assess runs the fanout and synthesis for one ticker and starts its report.
func (o *Orchestrator) assess(ctx context.Context, req models.AnalysisRequest, policy *models.PolicyDocument, start time.Time) (*models.AnalysisReport, *models.SynthesisOutcome) {
	report := &models.AnalysisReport{
		ReportID:      uuid.NewString(),
		CorrelationID: req.CorrelationID,
		Ticker:        req.Ticker,
		AccountID:     req.AccountID,
		Timestamp:     start.UTC(),
		OrderStatus:   models.OrderStatusNone,
		PolicyVersion: policy.Version,
	}

	outcomes := o.fanout.Query(ctx, req, o.agents, o.deadline)
	verdict := o.synth.Synthesize(outcomes, policy.Weights(o.names), policy.Value(models.ParamDecisionThreshold))

	report.FinalVerdict = verdict.FinalAction
	report.AggregateConfidence = verdict.AggregateConfidence
	report.Score = verdict.Score
	report.Degraded = verdict.Degraded
	report.Status = models.ReportComplete
	if verdict.Degraded {
		report.Status = models.ReportPartial
	}
	report.Details = details(outcomes)
	return report, verdict
}

// finish records the decision and hands it to the learning loop.
func (o *Orchestrator) finish(ctx context.Context, req models.AnalysisRequest, report *models.AnalysisReport, verdict *models.SynthesisOutcome, portfolio *models.PortfolioState, start time.Time, l *logger.Logger) {
	o.metrics.RecordDecision(report.FinalVerdict, report.Degraded)
	o.record(ctx, report, l)

	if o.feedback != nil {
		o.feedback.Submit(ctx, &models.FeedbackJob{
			Request:   req,
			Outcome:   verdict,
			Order:     report.Order,
			Portfolio: portfolio,
			Queued:    time.Now(),
		})
	}

	o.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	l.Info("analysis complete",
		logger.String("report_id", report.ReportID),
		logger.String("verdict", string(report.FinalVerdict)),
		logger.Float64("confidence", report.AggregateConfidence),
		logger.Bool("degraded", report.Degraded),
		logger.String("order_status", report.OrderStatus),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
}

// trade sizes and submits an order for a directional verdict. Ledger failures abort the order.
func (o *Orchestrator) trade(ctx context.Context, req models.AnalysisRequest, verdict *models.SynthesisOutcome, policy *models.PolicyDocument, report *models.AnalysisReport, l *logger.Logger) *models.PortfolioState {
	if verdict.FinalAction == models.ActionHold {
		report.NoTradeReason = NoTradeHold
		return nil
	}

	portfolio, err := o.ledger.Portfolio(ctx, req.AccountID)
	if err != nil {
		report.OrderStatus = models.OrderStatusLedgerUnavailable
		report.NoTradeReason = NoTradeLedgerUnavailable
		o.metrics.RecordOrder(models.OrderStatusLedgerUnavailable)
		l.Warn("portfolio unavailable, no order", logger.Error(err))
		return nil
	}

	sized := o.risk.Size(ctx, req.Ticker, verdict, portfolio, policy)
	if sized.Order == nil {
		report.NoTradeReason = sized.Reason
		o.metrics.RecordOrder("skipped")
		l.Info("no trade", logger.String("reason", sized.Reason))
		return portfolio
	}
	report.Order = sized.Order
	o.submit(ctx, req, sized.Order, report, l)
	return portfolio
}

// submit sends a sized order to the ledger and stamps the outcome on the report.
func (o *Orchestrator) submit(ctx context.Context, req models.AnalysisRequest, order *models.RiskAdjustedOrder, report *models.AnalysisReport, l *logger.Logger) {
	receipt, err := o.ledger.SubmitOrder(ctx, req.AccountID, order, req.CorrelationID)
	if err != nil {
		report.OrderStatus = models.OrderStatusLedgerUnavailable
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			report.OrderStatus = models.OrderStatusRejected
		}
		o.metrics.RecordOrder(report.OrderStatus)
		l.Error("order submission failed",
			logger.String("ticker", order.Symbol),
			logger.String("client_order_id", order.ClientOrderID),
			logger.String("order_status", report.OrderStatus),
			logger.Error(err),
		)
		return
	}

	report.OrderStatus = models.OrderStatusSubmitted
	report.OrderID = receipt.OrderID
	o.metrics.RecordOrder(models.OrderStatusSubmitted)
	l.Info("order submitted",
		logger.String("ticker", order.Symbol),
		logger.String("order_id", receipt.OrderID),
		logger.String("client_order_id", order.ClientOrderID),
		logger.String("side", string(order.Side)),
		logger.Int64("quantity", order.Quantity),
		logger.String("limit_price", order.LimitPrice.String()),
	)
}

// record is best-effort and must not hold the response past its own short timeout.
func (o *Orchestrator) record(ctx context.Context, report *models.AnalysisReport, l *logger.Logger) {
	if o.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := o.recorder.Record(rctx, models.NewDecisionEvent(report)); err != nil {
		o.metrics.RecordError("decision_record")
		l.Warn("decision record failed", logger.Error(err))
	}
}

// normalizeTickers upper-cases, trims and de-duplicates, keeping first-seen order.
func normalizeTickers(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	switch {
	case len(out) == 0:
		return nil, fmt.Errorf("%w: at least one ticker is required", models.ErrInvalidRequest)
	case len(out) > MaxBatchTickers:
		return nil, fmt.Errorf("%w: at most %d tickers per request", models.ErrInvalidRequest, MaxBatchTickers)
	}
	return out, nil
}

func details(outcomes []models.AgentOutcome) map[string]models.AgentDetail {
	out := make(map[string]models.AgentDetail, len(outcomes))
	for _, oc := range outcomes {
		d := models.AgentDetail{
			Status:    oc.Kind,
			LatencyMS: oc.Latency.Milliseconds(),
			Attempts:  oc.Attempts,
		}
		if oc.Signal != nil {
			d.Action = oc.Signal.Action
			d.Confidence = oc.Signal.Confidence
			d.Rationale = oc.Signal.Rationale
			d.NoSignal = oc.Signal.NoSignal
		}
		if oc.Err != nil {
			d.Error = oc.Err.Error()
		}
		out[oc.Agent] = d
	}
	return out
}
