package metrics

import (
	"testing"

	"TradeCore/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordDecision(models.ActionBuy, false)
	r.RecordDecision(models.ActionBuy, false)
	r.RecordDecision(models.ActionHold, true)
	r.RecordClamp(models.ParamRiskPerTrade)
	r.RecordPolicyValues(map[string]float64{models.ParamRiskPerTrade: 0.05})
	r.RecordQueueDepth("feedback", 7)
	r.RecordQueueDepth("feedback", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("buy", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("hold", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.clamps.WithLabelValues(models.ParamRiskPerTrade)))
	assert.Equal(t, 0.05, testutil.ToFloat64(r.policyValue.WithLabelValues(models.ParamRiskPerTrade)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("feedback")))
}
