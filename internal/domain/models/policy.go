package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Tunable parameter names.
const (
	ParamRiskPerTrade          = "RISK_PER_TRADE"
	ParamStopLossPercentage    = "STOP_LOSS_PERCENTAGE"
	ParamMaxPositionPercentage = "MAX_POSITION_PERCENTAGE"
	ParamEnableTechnicalStop   = "ENABLE_TECHNICAL_STOP"
	ParamStrictDegradedMode    = "STRICT_DEGRADED_MODE"
	ParamMaxTotalExposure      = "MAX_TOTAL_EXPOSURE"
	ParamPerRequestRiskBudget  = "PER_REQUEST_RISK_BUDGET"
	ParamMinPositionValue      = "MIN_POSITION_VALUE"
	ParamDecisionThreshold     = "DECISION_THRESHOLD"

	agentWeightPrefix = "AGENT_WEIGHT_"
)

// AgentWeightParam is the policy parameter holding an agent's synthesis weight.
func AgentWeightParam(agent string) string {
	return agentWeightPrefix + strings.ToUpper(agent)
}

// ParameterBounds is the static definition of one tunable.
type ParameterBounds struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	Min     float64 `json:"min_bound"`
	Max     float64 `json:"max_bound"`
}

// BuiltinParameterBounds returns the shipped defaults, one weight per agent.
func BuiltinParameterBounds(agents []string) []ParameterBounds {
	out := []ParameterBounds{
		{ParamRiskPerTrade, 0.01, 0.005, 0.05},
		{ParamStopLossPercentage, 0.03, 0.005, 0.20},
		{ParamMaxPositionPercentage, 0.20, 0.01, 0.50},
		{ParamEnableTechnicalStop, 1, 0, 1},
		{ParamStrictDegradedMode, 0, 0, 1},
		{ParamMaxTotalExposure, 0.50, 0.05, 1.00},
		{ParamPerRequestRiskBudget, 0.02, 0.001, 0.10},
		{ParamMinPositionValue, 500, 0, 100000},
		{ParamDecisionThreshold, 0.20, 0.01, 0.90},
	}
	for _, a := range agents {
		out = append(out, ParameterBounds{AgentWeightParam(a), 0.5, 0, 1})
	}
	return out
}

// Bounds is the immutable set of static safety ranges. It is the source of truth for clamping.
type Bounds struct {
	byName map[string]ParameterBounds
	order  []string
}

// NewBounds validates specs: min <= max and default within range.
func NewBounds(specs []ParameterBounds) (*Bounds, error) {
	b := &Bounds{byName: make(map[string]ParameterBounds, len(specs))}
	for _, p := range specs {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter name is required")
		}
		if math.IsNaN(p.Min) || math.IsNaN(p.Max) || math.IsNaN(p.Default) {
			return nil, fmt.Errorf("parameter %s: NaN bound", p.Name)
		}
		if p.Min > p.Max {
			return nil, fmt.Errorf("parameter %s: min %v > max %v", p.Name, p.Min, p.Max)
		}
		if p.Default < p.Min || p.Default > p.Max {
			return nil, fmt.Errorf("parameter %s: default %v outside [%v, %v]", p.Name, p.Default, p.Min, p.Max)
		}
		if _, dup := b.byName[p.Name]; !dup {
			b.order = append(b.order, p.Name)
		}
		b.byName[p.Name] = p
	}
	sort.Strings(b.order)
	return b, nil
}

func (b *Bounds) Lookup(name string) (ParameterBounds, bool) {
	p, ok := b.byName[name]
	return p, ok
}

// Names returns parameter names sorted.
func (b *Bounds) Names() []string {
	return append([]string(nil), b.order...)
}

func (b *Bounds) Defaults() map[string]float64 {
	out := make(map[string]float64, len(b.byName))
	for n, p := range b.byName {
		out[n] = p.Default
	}
	return out
}

// Clamp forces v into the parameter's range. NaN resolves to the default.
// The second result reports whether v was changed.
func (b *Bounds) Clamp(name string, v float64) (float64, bool) {
	p, ok := b.byName[name]
	if !ok {
		return v, false
	}
	switch {
	case math.IsNaN(v):
		return p.Default, true
	case v < p.Min:
		return p.Min, true
	case v > p.Max:
		return p.Max, true
	}
	return v, false
}

// PolicyParameter is one tunable with its bounds, as exposed to operators.
type PolicyParameter struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	MinBound float64 `json:"min_bound"`
	MaxBound float64 `json:"max_bound"`
}

// PolicyDocument is the live parameter set. A published document is never mutated;
// writers build a new one and swap it in.
type PolicyDocument struct {
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Values    map[string]float64 `json:"values"`
}

func (d *PolicyDocument) Value(name string) float64 {
	return d.Values[name]
}

// Enabled reads a 0/1 flag parameter.
func (d *PolicyDocument) Enabled(name string) bool {
	return d.Values[name] >= 0.5
}

func (d *PolicyDocument) Weight(agent string) float64 {
	return d.Values[AgentWeightParam(agent)]
}

// Weights returns the synthesis weight of each named agent.
func (d *PolicyDocument) Weights(agents []string) map[string]float64 {
	out := make(map[string]float64, len(agents))
	for _, a := range agents {
		out[a] = d.Weight(a)
	}
	return out
}

// CloneValues returns a copy safe to modify.
func (d *PolicyDocument) CloneValues() map[string]float64 {
	out := make(map[string]float64, len(d.Values))
	for k, v := range d.Values {
		out[k] = v
	}
	return out
}

// Parameters lists every bounded parameter with its current value.
func (d *PolicyDocument) Parameters(b *Bounds) []PolicyParameter {
	names := b.Names()
	out := make([]PolicyParameter, 0, len(names))
	for _, n := range names {
		p, _ := b.Lookup(n)
		out = append(out, PolicyParameter{Name: n, Value: d.Values[n], MinBound: p.Min, MaxBound: p.Max})
	}
	return out
}

// SameValues reports whether both documents hold identical parameter values.
func (d *PolicyDocument) SameValues(o *PolicyDocument) bool {
	if len(d.Values) != len(o.Values) {
		return false
	}
	for k, v := range d.Values {
		if ov, ok := o.Values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// PolicySnapshot is an immutable point-in-time copy of policy values.
type PolicySnapshot struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Reason     string             `json:"reason"`
	Parameters map[string]float64 `json:"parameters"`
}

// ClampEvent records a value forced back inside its bounds.
type ClampEvent struct {
	Name      string
	Requested float64
	Clamped   float64
}
