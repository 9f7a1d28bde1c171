package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradeCore/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRoutesByType(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))

		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.URL.Path == "/scan/fundamental" {
			assert.Equal(t, []string{"AAPL", "MSFT"}, body["symbols"])
		}
		_, _ = w.Write([]byte(`{"status":"success","agent_type":"scanner","version":"1.0.0",
			"data":{"candidates":[{"symbol":"aapl","recommendation":"STRONG_BUY"},{"symbol":" "},
			{"symbol":"MSFT","recommendation":"BUY"},{"symbol":"AAPL"}]}}`))
	}))
	defer srv.Close()

	s := NewHTTPScanner(srv.URL, time.Second)
	got, err := s.Scan(context.Background(), models.ScanRequest{ScanType: ScanTechnical, CorrelationID: "corr-1"})
	require.NoError(t, err)
	assert.Equal(t, []models.ScanCandidate{
		{Symbol: "AAPL", Recommendation: "STRONG_BUY"},
		{Symbol: "MSFT", Recommendation: "BUY"},
	}, got)

	_, err = s.Scan(context.Background(), models.ScanRequest{ScanType: ScanFundamental, Symbols: []string{"AAPL", "MSFT"}, CorrelationID: "corr-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/scan", "/scan/fundamental"}, paths)
}

func TestScanFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"error envelope", http.StatusOK, `{"status":"error","error":"market closed"}`},
		{"missing data", http.StatusOK, `{"status":"success"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPScanner(srv.URL, time.Second).Scan(context.Background(), models.ScanRequest{})
			assert.ErrorIs(t, err, models.ErrScannerUnavailable)
		})
	}

	_, err := NewHTTPScanner("http://127.0.0.1:1", time.Second).Scan(context.Background(), models.ScanRequest{ScanType: "sideways"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}
