package usecase

import (
	"math"

	"TradeCore/internal/domain/models"
)

// SignalSynthesizer combines agent outcomes into one verdict. It is pure and never blocks.
type SignalSynthesizer struct{}

func NewSignalSynthesizer() *SignalSynthesizer {
	return &SignalSynthesizer{}
}

// Synthesize scores present signals as weight*confidence*sign(action) over the summed weight of
// present signals only. A score exactly at the threshold holds.
func (s *SignalSynthesizer) Synthesize(outcomes []models.AgentOutcome, weights map[string]float64, threshold float64) *models.SynthesisOutcome {
	res := &models.SynthesisOutcome{
		FinalAction: models.ActionHold,
		Threshold:   threshold,
		Outcomes:    outcomes,
	}

	var sum, sumW float64
	for _, o := range outcomes {
		if !o.Present() {
			res.Degraded = true
			continue
		}
		sig := *o.Signal
		res.Contributing = append(res.Contributing, sig)
		w := sanitize(weights[o.Agent], 0, math.Inf(1))
		sum += w * sanitize(sig.Confidence, 0, 1) * sig.Action.Sign()
		sumW += w
	}

	if len(res.Contributing) == 0 {
		res.Degraded = true
		return res
	}
	if sumW == 0 {
		return res
	}

	res.Score = sum / sumW
	res.AggregateConfidence = sanitize(math.Abs(res.Score), 0, 1)
	switch {
	case res.Score > threshold:
		res.FinalAction = models.ActionBuy
	case res.Score < -threshold:
		res.FinalAction = models.ActionSell
	}
	return res
}

// sanitize clamps v into [lo, hi]; NaN becomes lo.
func sanitize(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
