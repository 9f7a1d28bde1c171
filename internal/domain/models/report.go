package models

import "time"

const (
	ReportComplete = "complete"
	ReportPartial  = "partial"
)

// Order status values on the analysis report.
const (
	OrderStatusNone              = "none"
	OrderStatusSubmitted         = "submitted"
	OrderStatusLedgerUnavailable = "ledger_unavailable"
	OrderStatusRejected          = "rejected"
)

// AgentDetail is one agent's contribution as shown on the report.
type AgentDetail struct {
	Status     OutcomeKind `json:"status"`
	Action     Action      `json:"action,omitempty"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale,omitempty"`
	NoSignal   bool        `json:"no_signal,omitempty"`
	Error      string      `json:"error,omitempty"`
	LatencyMS  int64       `json:"latency_ms"`
	Attempts   int         `json:"attempts"`
}

// AnalysisReport is the /analyze response body.
type AnalysisReport struct {
	ReportID            string                 `json:"report_id"`
	CorrelationID       string                 `json:"correlation_id"`
	Ticker              string                 `json:"ticker"`
	AccountID           string                 `json:"account_id"`
	Timestamp           time.Time              `json:"timestamp"`
	FinalVerdict        Action                 `json:"final_verdict"`
	Status              string                 `json:"status"`
	AggregateConfidence float64                `json:"aggregate_confidence"`
	Score               float64                `json:"score"`
	Degraded            bool                   `json:"degraded"`
	Details             map[string]AgentDetail `json:"details"`
	Order               *RiskAdjustedOrder     `json:"order"`
	OrderStatus         string                 `json:"order_status"`
	OrderID             string                 `json:"order_id,omitempty"`
	NoTradeReason       string                 `json:"no_trade_reason,omitempty"`
	OrderScaled         bool                   `json:"order_scaled,omitempty"`
	PolicyVersion       int64                  `json:"policy_version"`
}

// BatchAnalysisRequest analyzes several tickers for one account under one shared risk budget.
type BatchAnalysisRequest struct {
	Tickers       []string
	AccountID     string
	CorrelationID string
}

// BatchSummary counts what the batch sizing pass approved and what the ledger accepted.
type BatchSummary struct {
	Analyzed        int `json:"total_analyzed"`
	TradesApproved  int `json:"total_trades_approved"`
	TradesSubmitted int `json:"total_trades_submitted"`
	TradesScaled    int `json:"total_trades_scaled"`
}

// BatchReport is the /analyze-multi and /scan-and-analyze response body. Results keep the
// requested ticker order.
type BatchReport struct {
	CorrelationID string            `json:"correlation_id"`
	AccountID     string            `json:"account_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Candidates    []ScanCandidate   `json:"candidates,omitempty"`
	Results       []*AnalysisReport `json:"results"`
	Summary       BatchSummary      `json:"execution_summary"`
}

// ScanRequest asks the scanner for candidate tickers and analyzes the best of them.
type ScanRequest struct {
	AccountID     string
	ScanType      string
	Symbols       []string
	MaxCandidates int
	CorrelationID string
}

// ScanCandidate is one symbol proposed by the scanner agent.
type ScanCandidate struct {
	Symbol         string `json:"symbol"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DecisionEvent is the audit record emitted after every decision.
type DecisionEvent struct {
	ReportID      string             `json:"report_id"`
	CorrelationID string             `json:"correlation_id"`
	Ticker        string             `json:"ticker"`
	AccountID     string             `json:"account_id"`
	Action        Action             `json:"action"`
	Confidence    float64            `json:"confidence"`
	Score         float64            `json:"score"`
	Degraded      bool               `json:"degraded"`
	Order         *RiskAdjustedOrder `json:"order,omitempty"`
	OrderStatus   string             `json:"order_status"`
	PolicyVersion int64              `json:"policy_version"`
	Timestamp     time.Time          `json:"timestamp"`
}

// NewDecisionEvent projects a report onto its audit record.
func NewDecisionEvent(r *AnalysisReport) *DecisionEvent {
	return &DecisionEvent{
		ReportID:      r.ReportID,
		CorrelationID: r.CorrelationID,
		Ticker:        r.Ticker,
		AccountID:     r.AccountID,
		Action:        r.FinalVerdict,
		Confidence:    r.AggregateConfidence,
		Score:         r.Score,
		Degraded:      r.Degraded,
		Order:         r.Order,
		OrderStatus:   r.OrderStatus,
		PolicyVersion: r.PolicyVersion,
		Timestamp:     r.Timestamp,
	}
}

// Quote is the latest traded price for a symbol from the market stream.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
