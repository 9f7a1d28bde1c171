package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeCore/internal/domain/models"
	xhttp "TradeCore/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentServer(t *testing.T, status int, body string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Ticker)
		assert.Equal(t, "corr-1", req.CorrelationID)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, timeout time.Duration) models.AgentOutcome {
	t.Helper()
	c := NewHTTPAgentClient(5 * time.Second)
	return c.Call(context.Background(),
		models.AgentEndpoint{Name: "technical", URL: srv.URL, Timeout: timeout},
		models.AnalysisRequest{Ticker: "AAPL", AccountID: "acc", CorrelationID: "corr-1"},
	)
}

func TestCallSuccess(t *testing.T) {
	srv := agentServer(t, 200, `{"status":"success","agent_type":"technical","version":"1.2.0",
		"timestamp":"2025-01-01T00:00:00Z",
		"data":{"action":"BUY","confidence_score":0.8,"reason":"rsi oversold","current_price":187.5,
		"indicators":{"stop_loss":180.0}}}`, 0)

	out := call(t, srv, time.Second)
	require.Equal(t, models.OutcomeSignal, out.Kind)
	require.NotNil(t, out.Signal)
	assert.Equal(t, "technical", out.Signal.Agent)
	assert.Equal(t, models.ActionBuy, out.Signal.Action)
	assert.Equal(t, 0.8, out.Signal.Confidence)
	assert.Equal(t, "rsi oversold", out.Signal.Rationale)
	assert.Equal(t, 187.5, out.Signal.CurrentPrice)
	assert.Equal(t, 180.0, out.Signal.TechnicalStop)
}

func TestCallNoSignalIsBusinessOutcome(t *testing.T) {
	srv := agentServer(t, 200, `{"status":"no_signal","agent_type":"fundamental","version":"1.0",
		"data":{"reason":"ticker not found"}}`, 0)

	out := call(t, srv, time.Second)
	require.True(t, out.Present())
	assert.Equal(t, models.ActionHold, out.Signal.Action)
	assert.Equal(t, 0.0, out.Signal.Confidence)
	assert.True(t, out.Signal.NoSignal)
	assert.Equal(t, "ticker not found", out.Signal.Rationale)
}

func TestCallContractViolations(t *testing.T) {
	bodies := map[string]string{
		"bare ok":        `{"status":"ok"}`,
		"not json":       `<html>oops</html>`,
		"bad action":     `{"status":"success","version":"1.0","data":{"action":"short","score":0.5}}`,
		"score too high": `{"status":"success","version":"1.0","data":{"action":"buy","score":1.5}}`,
		"missing score":  `{"status":"success","version":"1.0","data":{"action":"buy"}}`,
		"missing data":   `{"status":"success","version":"1.0"}`,
		"bad version":    `{"status":"success","version":"v1-beta","data":{"action":"buy","score":0.5}}`,
		"oversized":      `{"status":"success","version":"1.0","pad":"` + strings.Repeat("x", xhttp.MaxResponseBody) + `"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			out := call(t, agentServer(t, 200, body, 0), time.Second)
			require.Equal(t, models.OutcomeError, out.Kind)
			assert.Equal(t, models.AgentErrorContract, out.Err.Kind)
			assert.False(t, out.Err.Transient())
		})
	}
}

func TestCallRemoteError(t *testing.T) {
	out := call(t, agentServer(t, 200, `{"status":"error","version":"1.0","error":{"message":"model offline"}}`, 0), time.Second)
	require.Equal(t, models.OutcomeError, out.Kind)
	assert.Equal(t, models.AgentErrorRemote, out.Err.Kind)
	assert.Equal(t, "model offline", out.Err.Cause)
}

func TestCallHTTPStatusClassification(t *testing.T) {
	out := call(t, agentServer(t, 503, "busy", 0), time.Second)
	require.Equal(t, models.OutcomeError, out.Kind)
	assert.Equal(t, models.AgentErrorTransient, out.Err.Kind)
	assert.Equal(t, 503, out.Err.StatusCode)
	assert.True(t, out.Err.Transient())

	out = call(t, agentServer(t, 404, "nope", 0), time.Second)
	assert.Equal(t, models.AgentErrorHTTP, out.Err.Kind)
	assert.False(t, out.Err.Transient())
}

func TestCallTimeout(t *testing.T) {
	out := call(t, agentServer(t, 200, `{}`, 500*time.Millisecond), 30*time.Millisecond)
	require.Equal(t, models.OutcomeError, out.Kind)
	assert.Equal(t, models.AgentErrorTimeout, out.Err.Kind)
	assert.True(t, out.Err.Transient())
}

func TestValidVersion(t *testing.T) {
	for _, v := range []string{"1", "1.0", "2.1.3"} {
		assert.True(t, validVersion(v), v)
	}
	for _, v := range []string{"", "1.", ".1", "1.a", "v1"} {
		assert.False(t, validVersion(v), v)
	}
}
