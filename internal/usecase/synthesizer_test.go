package usecase

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
)

func sig(agent string, action models.Action, conf float64) models.AgentOutcome {
	return models.SignalOutcome(agent, models.AgentSignal{Action: action, Confidence: conf, Rationale: agent + " says " + string(action)})
}

func TestSynthesizeBuyWithHold(t *testing.T) {
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{sig("technical", models.ActionBuy, 0.8), sig("fundamental", models.ActionHold, 0.6)},
		map[string]float64{"technical": 0.5, "fundamental": 0.5},
		0.2,
	)

	assert.Equal(t, models.ActionBuy, out.FinalAction)
	assert.InDelta(t, 0.4, out.AggregateConfidence, 1e-9)
	assert.False(t, out.Degraded)
	require.Len(t, out.Contributing, 2)
	assert.Equal(t, "technical: technical says buy | fundamental: fundamental says hold", out.Rationale())
}

func TestSynthesizeAbsentAgentDoesNotDilute(t *testing.T) {
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{sig("technical", models.ActionSell, 0.9), models.AbsentOutcome("fundamental")},
		map[string]float64{"technical": 0.5, "fundamental": 0.5},
		0.2,
	)

	assert.Equal(t, models.ActionSell, out.FinalAction)
	assert.InDelta(t, -0.9, out.Score, 1e-9)
	assert.InDelta(t, 0.9, out.AggregateConfidence, 1e-9)
	assert.True(t, out.Degraded)
	assert.Len(t, out.Contributing, 1)
}

func TestSynthesizeErrorOutcomeExcluded(t *testing.T) {
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{
			models.ErrorOutcome("technical", &models.AgentError{Kind: models.AgentErrorContract, Cause: "bad"}),
			sig("fundamental", models.ActionBuy, 0.5),
		},
		map[string]float64{"technical": 0.9, "fundamental": 0.1},
		0.2,
	)

	assert.Equal(t, models.ActionBuy, out.FinalAction)
	assert.InDelta(t, 0.5, out.Score, 1e-9)
	assert.True(t, out.Degraded)
}

func TestSynthesizeAllAbsent(t *testing.T) {
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{models.AbsentOutcome("a"), models.AbsentOutcome("b")},
		map[string]float64{"a": 0.5, "b": 0.5},
		0.2,
	)

	assert.Equal(t, models.ActionHold, out.FinalAction)
	assert.Equal(t, 0.0, out.AggregateConfidence)
	assert.True(t, out.Degraded)
	assert.Empty(t, out.Contributing)
}

func TestSynthesizeTieAtThresholdHolds(t *testing.T) {
	s := NewSignalSynthesizer()
	w := map[string]float64{"a": 1}

	buy := s.Synthesize([]models.AgentOutcome{sig("a", models.ActionBuy, 0.25)}, w, 0.25)
	assert.Equal(t, models.ActionHold, buy.FinalAction)

	sell := s.Synthesize([]models.AgentOutcome{sig("a", models.ActionSell, 0.25)}, w, 0.25)
	assert.Equal(t, models.ActionHold, sell.FinalAction)
}

func TestSynthesizeZeroWeightsHold(t *testing.T) {
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{sig("a", models.ActionBuy, 1)},
		map[string]float64{"a": 0},
		0.2,
	)
	assert.Equal(t, models.ActionHold, out.FinalAction)
	assert.Equal(t, 0.0, out.AggregateConfidence)
	assert.False(t, out.Degraded)
}

func TestSynthesizeNoSignalCountsAsHold(t *testing.T) {
	noSignal := models.SignalOutcome("fundamental", models.AgentSignal{Action: models.ActionHold, NoSignal: true, Rationale: "ticker not found"})
	out := NewSignalSynthesizer().Synthesize(
		[]models.AgentOutcome{sig("technical", models.ActionBuy, 0.6), noSignal},
		map[string]float64{"technical": 0.5, "fundamental": 0.5},
		0.2,
	)

	assert.Equal(t, models.ActionBuy, out.FinalAction)
	assert.InDelta(t, 0.3, out.Score, 1e-9)
	assert.False(t, out.Degraded)
}

func TestSynthesizeBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	actions := []models.Action{models.ActionBuy, models.ActionSell, models.ActionHold}
	names := []string{"a", "b", "c", "d"}
	s := NewSignalSynthesizer()

	for i := 0; i < 2000; i++ {
		weights := map[string]float64{}
		var outcomes []models.AgentOutcome
		for _, n := range names {
			weights[n] = rng.Float64() * 3
			switch rng.Intn(3) {
			case 0:
				outcomes = append(outcomes, models.AbsentOutcome(n))
			default:
				// confidences outside [0,1] must not leak through
				outcomes = append(outcomes, sig(n, actions[rng.Intn(3)], rng.Float64()*1.4-0.2))
			}
		}
		out := s.Synthesize(outcomes, weights, rng.Float64())

		assert.GreaterOrEqual(t, out.AggregateConfidence, 0.0)
		assert.LessOrEqual(t, out.AggregateConfidence, 1.0)
		assert.False(t, math.IsNaN(out.Score))
		assert.Contains(t, actions, out.FinalAction)
	}
}
