package learning

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"TradeCore/internal/domain/models"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/internal/services/base"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"
)

const weightPrefix = "AGENT_WEIGHT_"

// riskAliases maps the learning agent's short risk names onto policy parameter names.
var riskAliases = map[string]string{
	"max_position_pct": models.ParamMaxPositionPercentage,
	"stop_loss_pct":    models.ParamStopLossPercentage,
}

type currentPolicy struct {
	AgentWeights map[string]float64 `json:"agent_weights"`
	Risk         map[string]float64 `json:"risk"`
	StrategyBias map[string]string  `json:"strategy_bias"`
}

type learnReq struct {
	LearningMode        string                    `json:"learning_mode"`
	WindowSize          int                       `json:"window_size"`
	CorrelationID       string                    `json:"correlation_id"`
	Symbol              string                    `json:"symbol"`
	AccountID           string                    `json:"account_id"`
	Signals             []models.AgentSignal      `json:"signals"`
	ActionTaken         models.Action             `json:"action_taken"`
	AggregateConfidence float64                   `json:"aggregate_confidence"`
	Degraded            bool                      `json:"degraded"`
	Order               *models.RiskAdjustedOrder `json:"order"`
	Portfolio           *models.PortfolioState    `json:"portfolio"`
	TradeHistory        []models.TradeRecord      `json:"trade_history"`
	CurrentPolicy       currentPolicy             `json:"current_policy"`
}

type learnResp struct {
	LearningState string `json:"learning_state"`
	PolicyDeltas  struct {
		AgentWeights map[string]float64 `json:"agent_weights"`
		Risk         map[string]float64 `json:"risk"`
	} `json:"policy_deltas"`
	Reasoning []string `json:"reasoning"`
}

// HTTPLearningClient posts feedback to {baseURL}/learn.
type HTTPLearningClient struct {
	base *base.HTTPServiceBase
}

func NewHTTPLearningClient(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPLearningClient {
	return &HTTPLearningClient{base: base.NewHTTPServiceBase(baseURL, timeout, opts...)}
}

// Learn returns proposed deltas keyed by policy parameter name.
// Transport failures wrap ErrLearningUnavailable; unusable deltas wrap ErrMalformedDeltas.
func (c *HTTPLearningClient) Learn(ctx context.Context, p *models.FeedbackPayload) (*models.LearningResult, error) {
	req := learnReq{
		LearningMode:        p.LearningMode,
		WindowSize:          p.WindowSize,
		CorrelationID:       p.CorrelationID,
		Symbol:              p.Symbol,
		AccountID:           p.AccountID,
		Signals:             p.Signals,
		ActionTaken:         p.ActionTaken,
		AggregateConfidence: p.AggregateConfidence,
		Degraded:            p.Degraded,
		Order:               p.Order,
		Portfolio:           p.Portfolio,
		TradeHistory:        p.TradeHistory,
		CurrentPolicy:       toWirePolicy(p.CurrentPolicy),
	}
	if req.Signals == nil {
		req.Signals = []models.AgentSignal{}
	}
	if req.TradeHistory == nil {
		req.TradeHistory = []models.TradeRecord{}
	}

	var resp learnResp
	err := c.base.PostJSON(ctx, c.base.URL("learn"), req, &resp, map[string]string{
		middleware.HeaderCorrelationID: p.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrLearningUnavailable, err)
	}
	if resp.LearningState == "" {
		return nil, fmt.Errorf("%w: missing learning_state", models.ErrMalformedDeltas)
	}

	deltas := make(map[string]float64, len(resp.PolicyDeltas.AgentWeights)+len(resp.PolicyDeltas.Risk))
	for agent, d := range resp.PolicyDeltas.AgentWeights {
		deltas[models.AgentWeightParam(agent)] = d
	}
	for name, d := range resp.PolicyDeltas.Risk {
		deltas[riskParam(name)] = d
	}
	for name, d := range deltas {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: %s is not finite", models.ErrMalformedDeltas, name)
		}
	}

	return &models.LearningResult{
		State:     resp.LearningState,
		Deltas:    deltas,
		Reasoning: resp.Reasoning,
	}, nil
}

func riskParam(name string) string {
	if p, ok := riskAliases[strings.ToLower(name)]; ok {
		return p
	}
	return strings.ToUpper(name)
}

// toWirePolicy splits flat parameters into the nested shape the learning agent expects.
func toWirePolicy(values map[string]float64) currentPolicy {
	cp := currentPolicy{
		AgentWeights: make(map[string]float64),
		Risk:         make(map[string]float64),
		StrategyBias: map[string]string{"preferred_regime": "any"},
	}
	reverse := make(map[string]string, len(riskAliases))
	for short, full := range riskAliases {
		reverse[full] = short
	}
	for name, v := range values {
		if strings.HasPrefix(name, weightPrefix) {
			cp.AgentWeights[strings.ToLower(strings.TrimPrefix(name, weightPrefix))] = v
			continue
		}
		key, ok := reverse[name]
		if !ok {
			key = strings.ToLower(name)
		}
		cp.Risk[key] = v
	}
	return cp
}

var _ domsvc.LearningClient = (*HTTPLearningClient)(nil)
