package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"TradeCore/internal/domain/models"
)

const (
	statusSuccess  = "success"
	statusNoSignal = "no_signal"
	statusError    = "error"
)

// envelope is the standard response every analysis agent must honour.
type envelope struct {
	Status    string          `json:"status"`
	AgentType string          `json:"agent_type"`
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type envelopeData struct {
	Action          string                 `json:"action"`
	Score           *float64               `json:"score"`
	ConfidenceScore *float64               `json:"confidence_score"`
	Reason          string                 `json:"reason"`
	CurrentPrice    *float64               `json:"current_price"`
	Indicators      map[string]interface{} `json:"indicators"`
}

// parseEnvelope maps a raw agent body to a signal or a contract/remote error.
func parseEnvelope(body []byte) (models.AgentSignal, *models.AgentError) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return models.AgentSignal{}, contractErr("invalid json: %v", err)
	}
	if !validVersion(env.Version) {
		return models.AgentSignal{}, contractErr("version %q is not semantic", env.Version)
	}

	switch env.Status {
	case statusSuccess:
	case statusNoSignal:
		sig := models.AgentSignal{
			Action:    models.ActionHold,
			NoSignal:  true,
			AgentType: env.AgentType,
			Version:   env.Version,
		}
		var d envelopeData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &d) == nil {
			sig.Rationale = d.Reason
		}
		return sig, nil
	case statusError:
		msg := "agent reported error"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return models.AgentSignal{}, &models.AgentError{Kind: models.AgentErrorRemote, Cause: msg}
	default:
		return models.AgentSignal{}, contractErr("unexpected status %q", env.Status)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return models.AgentSignal{}, contractErr("missing data")
	}
	var d envelopeData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return models.AgentSignal{}, contractErr("invalid data: %v", err)
	}
	action, ok := models.ParseAction(d.Action)
	if !ok {
		return models.AgentSignal{}, contractErr("invalid action %q", d.Action)
	}
	score := d.Score
	if score == nil {
		score = d.ConfidenceScore
	}
	if score == nil {
		return models.AgentSignal{}, contractErr("missing score")
	}
	if math.IsNaN(*score) || *score < 0 || *score > 1 {
		return models.AgentSignal{}, contractErr("score %v outside [0,1]", *score)
	}

	sig := models.AgentSignal{
		Action:     action,
		Confidence: *score,
		Rationale:  d.Reason,
		AgentType:  env.AgentType,
		Version:    env.Version,
	}
	if d.CurrentPrice != nil && *d.CurrentPrice > 0 && !math.IsInf(*d.CurrentPrice, 0) {
		sig.CurrentPrice = *d.CurrentPrice
	}
	if v, ok := d.Indicators["stop_loss"].(float64); ok && v > 0 {
		sig.TechnicalStop = v
	}
	return sig, nil
}

// validVersion accepts dotted numeric versions such as "1.0" or "2.1.3".
func validVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func contractErr(format string, args ...interface{}) *models.AgentError {
	return &models.AgentError{Kind: models.AgentErrorContract, Cause: fmt.Sprintf(format, args...)}
}
