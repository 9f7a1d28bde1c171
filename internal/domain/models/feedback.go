package models

import "time"

// FeedbackPayload is what the learning collaborator receives after a decision.
type FeedbackPayload struct {
	LearningMode        string             `json:"learning_mode"`
	WindowSize          int                `json:"window_size"`
	CorrelationID       string             `json:"correlation_id"`
	Symbol              string             `json:"symbol"`
	AccountID           string             `json:"account_id"`
	Signals             []AgentSignal      `json:"signals"`
	ActionTaken         Action             `json:"action_taken"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	Degraded            bool               `json:"degraded"`
	Order               *RiskAdjustedOrder `json:"order"`
	Portfolio           *PortfolioState    `json:"portfolio"`
	TradeHistory        []TradeRecord      `json:"trade_history"`
	CurrentPolicy       map[string]float64 `json:"current_policy"`
}

// LearningResult is the collaborator's answer mapped onto policy parameter names.
type LearningResult struct {
	State     string
	Deltas    map[string]float64
	Reasoning []string
}

const LearningStateWarmup = "warmup"

// FeedbackJob is the decision context handed to the learning loop.
type FeedbackJob struct {
	Request   AnalysisRequest
	Outcome   *SynthesisOutcome
	Order     *RiskAdjustedOrder
	Portfolio *PortfolioState
	Queued    time.Time
}
