package metrics

import (
	"strconv"

	"TradeCore/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	agentOutcomes *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	orders        *prometheus.CounterVec
	policyWrites  *prometheus.CounterVec
	clamps        *prometheus.CounterVec
	policyValue   *prometheus.GaugeVec
	feedback      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		agentOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_agent_outcomes_total",
				Help: "Agent call outcomes by agent, kind and error kind",
			},
			[]string{"agent", "kind", "error"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_decisions_total",
				Help: "Synthesized decisions by action and degraded flag",
			},
			[]string{"action", "degraded"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_orders_total",
				Help: "Order emission results",
			},
			[]string{"status"},
		),
		policyWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_policy_writes_total",
				Help: "Policy apply/rollback attempts by result",
			},
			[]string{"op", "result"},
		),
		clamps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_policy_clamps_total",
				Help: "Parameter values forced back inside static bounds",
			},
			[]string{"param"},
		),
		policyValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradecore_policy_value",
				Help: "Current value of each policy parameter",
			},
			[]string{"param"},
		),
		feedback: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_feedback_total",
				Help: "Learning feedback cycles by result",
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradecore_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"operation"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradecore_queue_depth",
				Help: "Jobs waiting in an in-process queue",
			},
			[]string{"queue"},
		),
	}
}

func (r *Recorder) RecordAgentOutcome(agent string, kind models.OutcomeKind, errKind string) {
	r.agentOutcomes.WithLabelValues(agent, string(kind), errKind).Inc()
}

func (r *Recorder) RecordDecision(action models.Action, degraded bool) {
	r.decisions.WithLabelValues(string(action), strconv.FormatBool(degraded)).Inc()
}

func (r *Recorder) RecordOrder(status string) {
	r.orders.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordPolicyWrite(op, result string) {
	r.policyWrites.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RecordClamp(param string) {
	r.clamps.WithLabelValues(param).Inc()
}

// RecordPolicyValues publishes every parameter of the current document.
func (r *Recorder) RecordPolicyValues(values map[string]float64) {
	for name, v := range values {
		r.policyValue.WithLabelValues(name).Set(v)
	}
}

func (r *Recorder) RecordFeedback(result string) {
	r.feedback.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordAgentOutcome(string, models.OutcomeKind, string) {}
func (Nop) RecordDecision(models.Action, bool)                    {}
func (Nop) RecordOrder(string)                                    {}
func (Nop) RecordPolicyWrite(string, string)                      {}
func (Nop) RecordClamp(string)                                    {}
func (Nop) RecordPolicyValues(map[string]float64)                 {}
func (Nop) RecordFeedback(string)                                 {}
func (Nop) RecordError(string)                                    {}
func (Nop) RecordLatency(string, float64)                         {}
func (Nop) RecordQueueDepth(string, int)                          {}
