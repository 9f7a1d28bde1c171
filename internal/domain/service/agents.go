package service

import (
	"context"

	"TradeCore/internal/domain/models"
)

// AgentClient queries one analysis service. Failures come back as AgentOutcome values,
// never as Go errors, and the call is not retried internally.
type AgentClient interface {
	Call(ctx context.Context, ep models.AgentEndpoint, req models.AnalysisRequest) models.AgentOutcome
}

// LearningClient sends decision feedback and receives proposed parameter deltas.
type LearningClient interface {
	Learn(ctx context.Context, payload *models.FeedbackPayload) (*models.LearningResult, error)
}

// Scanner proposes candidate tickers for a market scan ("technical" or "fundamental").
type Scanner interface {
	Scan(ctx context.Context, req models.ScanRequest) ([]models.ScanCandidate, error)
}
