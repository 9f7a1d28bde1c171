package models

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// ParseAction accepts buy/sell/hold in any case.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	}
	return "", false
}

// Sign maps buy to +1, sell to -1 and hold to 0.
func (a Action) Sign() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	default:
		return 0
	}
}

// AnalysisRequest is created per orchestration call and never mutated.
type AnalysisRequest struct {
	Ticker        string
	AccountID     string
	CorrelationID string
}

// AgentEndpoint is one configured analysis service.
type AgentEndpoint struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// AgentSignal is a successful agent answer.
type AgentSignal struct {
	Agent      string        `json:"agent"`
	Action     Action        `json:"action"`
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale"`
	Latency    time.Duration `json:"-"`
	// NoSignal marks a business outcome such as "ticker not found": a valid answer with nothing actionable.
	NoSignal bool `json:"no_signal,omitempty"`

	AgentType     string  `json:"agent_type,omitempty"`
	Version       string  `json:"version,omitempty"`
	CurrentPrice  float64 `json:"current_price,omitempty"`
	TechnicalStop float64 `json:"technical_stop,omitempty"`
}

type AgentErrorKind string

const (
	AgentErrorTimeout   AgentErrorKind = "timeout"
	AgentErrorTransient AgentErrorKind = "transient"
	AgentErrorHTTP      AgentErrorKind = "http"
	AgentErrorContract  AgentErrorKind = "contract"
	// AgentErrorRemote is a well-formed envelope in which the agent reports its own failure.
	AgentErrorRemote    AgentErrorKind = "remote"
)

// AgentError is a failed agent call, carried as data rather than returned up the stack.
type AgentError struct {
	Kind       AgentErrorKind `json:"kind"`
	StatusCode int            `json:"status_code,omitempty"`
	Cause      string         `json:"cause"`
}

func (e *AgentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent %s error (status %d): %s", e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("agent %s error: %s", e.Kind, e.Cause)
}

// Transient reports whether a retry may succeed.
func (e *AgentError) Transient() bool {
	return e.Kind == AgentErrorTimeout || e.Kind == AgentErrorTransient
}

type OutcomeKind string

const (
	OutcomeSignal OutcomeKind = "signal"
	OutcomeAbsent OutcomeKind = "absent"
	OutcomeError  OutcomeKind = "error"
)

// AgentOutcome is the closed Signal | Absent | Error variant for one agent in one request.
// Signal is set only for the signal kind. Err is set for errors, and for absent outcomes
// it may carry the last transient failure.
type AgentOutcome struct {
	Agent    string
	Kind     OutcomeKind
	Signal   *AgentSignal
	Err      *AgentError
	Attempts int
	Latency  time.Duration
}

func SignalOutcome(agent string, s AgentSignal) AgentOutcome {
	s.Agent = agent
	return AgentOutcome{Agent: agent, Kind: OutcomeSignal, Signal: &s, Attempts: 1, Latency: s.Latency}
}

func AbsentOutcome(agent string) AgentOutcome {
	return AgentOutcome{Agent: agent, Kind: OutcomeAbsent}
}

func ErrorOutcome(agent string, err *AgentError) AgentOutcome {
	return AgentOutcome{Agent: agent, Kind: OutcomeError, Err: err, Attempts: 1}
}

// Present reports whether the outcome contributes to synthesis.
func (o AgentOutcome) Present() bool {
	return o.Kind == OutcomeSignal && o.Signal != nil
}

// SynthesisOutcome is derived per request and never persisted.
type SynthesisOutcome struct {
	FinalAction         Action
	AggregateConfidence float64
	Score               float64
	Threshold           float64
	Contributing        []AgentSignal
	Outcomes            []AgentOutcome
	Degraded            bool
}

// Rationale joins contributing signal rationales for audit.
func (s *SynthesisOutcome) Rationale() string {
	parts := make([]string, 0, len(s.Contributing))
	for _, sig := range s.Contributing {
		if sig.Rationale != "" {
			parts = append(parts, sig.Agent+": "+sig.Rationale)
		}
	}
	return strings.Join(parts, " | ")
}
