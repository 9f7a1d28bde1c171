package repository

import (
	"context"

	"TradeCore/internal/domain/models"
)

// PolicyStore owns the live PolicyDocument. Mutations are serialized; reads are lock-free
// and always observe a fully written document.
type PolicyStore interface {
	Current() *models.PolicyDocument
	Bounds() *models.Bounds
	Apply(ctx context.Context, deltas map[string]float64, reason string) (*models.PolicyDocument, error)
	Rollback(ctx context.Context, snapshotID string) (*models.PolicyDocument, error)
	ListSnapshots(ctx context.Context) ([]models.PolicySnapshot, error)
}

// WriteLock guards policy mutations across processes.
type WriteLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Ledger is the synchronous RPC boundary to the account ledger.
type Ledger interface {
	Portfolio(ctx context.Context, accountID string) (*models.PortfolioState, error)
	SubmitOrder(ctx context.Context, accountID string, order *models.RiskAdjustedOrder, correlationID string) (*models.OrderReceipt, error)
	TradeHistory(ctx context.Context, accountID string, limit int) ([]models.TradeRecord, error)
}

// DecisionRecorder persists or publishes decision audit events.
type DecisionRecorder interface {
	Record(ctx context.Context, ev *models.DecisionEvent) error
	Close() error
}

// QuoteSource answers the most recent streamed price for a symbol.
type QuoteSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, bool)
}

// QuoteSink receives streamed quotes.
type QuoteSink interface {
	Put(ctx context.Context, q models.Quote) error
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordAgentOutcome(agent string, kind models.OutcomeKind, errKind string)
	RecordDecision(action models.Action, degraded bool)
	RecordOrder(status string)
	RecordPolicyWrite(op, result string)
	RecordClamp(param string)
	RecordPolicyValues(values map[string]float64)
	RecordFeedback(result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordQueueDepth(queue string, depth int)
}
