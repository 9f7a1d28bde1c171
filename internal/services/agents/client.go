package agents

import (
	"context"
	"errors"
	"time"

	"TradeCore/internal/domain/models"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/internal/services/base"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"
)

type analyzeReq struct {
	Ticker        string `json:"ticker"`
	CorrelationID string `json:"correlation_id"`
}

// HTTPAgentClient calls analysis agents over HTTP. Connections are pooled and shared
// across requests; each call is bounded by its own context.
type HTTPAgentClient struct {
	base *base.HTTPServiceBase
	now  func() time.Time
}

// NewHTTPAgentClient builds a client. maxTimeout caps any single call.
func NewHTTPAgentClient(maxTimeout time.Duration, opts ...xhttp.ClientOption) *HTTPAgentClient {
	return &HTTPAgentClient{
		base: base.NewHTTPServiceBase("", maxTimeout, opts...),
		now:  time.Now,
	}
}

// Call performs exactly one attempt against ep.
func (c *HTTPAgentClient) Call(ctx context.Context, ep models.AgentEndpoint, req models.AnalysisRequest) models.AgentOutcome {
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}

	start := c.now()
	var body []byte
	err := c.base.PostJSON(ctx, ep.URL,
		analyzeReq{Ticker: req.Ticker, CorrelationID: req.CorrelationID},
		&body,
		map[string]string{middleware.HeaderCorrelationID: req.CorrelationID},
	)
	latency := c.now().Sub(start)

	if err != nil {
		out := models.ErrorOutcome(ep.Name, classify(err))
		out.Latency = latency
		return out
	}

	sig, agentErr := parseEnvelope(body)
	if agentErr != nil {
		out := models.ErrorOutcome(ep.Name, agentErr)
		out.Latency = latency
		return out
	}
	sig.Latency = latency
	return models.SignalOutcome(ep.Name, sig)
}

func classify(err error) *models.AgentError {
	var se *xhttp.StatusError
	switch {
	case errors.As(err, &se):
		kind := models.AgentErrorHTTP
		if se.StatusCode >= 500 {
			kind = models.AgentErrorTransient
		}
		return &models.AgentError{Kind: kind, StatusCode: se.StatusCode, Cause: err.Error()}
	case errors.Is(err, xhttp.ErrBodyTooLarge):
		return &models.AgentError{Kind: models.AgentErrorContract, Cause: err.Error()}
	case xhttp.IsTimeout(err):
		return &models.AgentError{Kind: models.AgentErrorTimeout, Cause: err.Error()}
	case errors.Is(err, context.Canceled):
		return &models.AgentError{Kind: models.AgentErrorTimeout, Cause: "cancelled"}
	case xhttp.IsTransient(err):
		return &models.AgentError{Kind: models.AgentErrorTransient, Cause: err.Error()}
	default:
		return &models.AgentError{Kind: models.AgentErrorContract, Cause: err.Error()}
	}
}

var _ domsvc.AgentClient = (*HTTPAgentClient)(nil)
