package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	"TradeCore/internal/service/ratelimit"
	"TradeCore/pkg/http/middleware"
	"TradeCore/pkg/logger"
)

type fakeAnalyzer struct {
	got     models.AnalysisRequest
	gotMany models.BatchAnalysisRequest
	gotScan models.ScanRequest
	err     error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest) (*models.AnalysisReport, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalysisReport{
		ReportID:      "r-1",
		CorrelationID: req.CorrelationID,
		Ticker:        req.Ticker,
		FinalVerdict:  models.ActionHold,
		Status:        models.ReportComplete,
		OrderStatus:   models.OrderStatusNone,
	}, nil
}

func (f *fakeAnalyzer) AnalyzeBatch(_ context.Context, req models.BatchAnalysisRequest) (*models.BatchReport, error) {
	f.gotMany = req
	if f.err != nil {
		return nil, f.err
	}
	out := &models.BatchReport{CorrelationID: req.CorrelationID, AccountID: req.AccountID}
	for _, t := range req.Tickers {
		out.Results = append(out.Results, &models.AnalysisReport{Ticker: t, FinalVerdict: models.ActionHold})
	}
	out.Summary.Analyzed = len(out.Results)
	return out, nil
}

func (f *fakeAnalyzer) ScanAndAnalyze(_ context.Context, req models.ScanRequest) (*models.BatchReport, error) {
	f.gotScan = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.BatchReport{
		CorrelationID: req.CorrelationID,
		AccountID:     req.AccountID,
		Candidates:    []models.ScanCandidate{{Symbol: "AAPL", Recommendation: "BUY"}},
	}, nil
}

type fakePolicy struct {
	doc        *models.PolicyDocument
	snaps      []models.PolicySnapshot
	rollbackTo string
	err        error
}

func (f *fakePolicy) Current() *models.PolicyDocument { return f.doc }

func (f *fakePolicy) Rollback(_ context.Context, id string) (*models.PolicyDocument, error) {
	f.rollbackTo = id
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *fakePolicy) ListSnapshots(context.Context) ([]models.PolicySnapshot, error) {
	return f.snaps, f.err
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(a Analyzer, p PolicyAdmin, opts ...Option) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Correlation())
	NewHandler(a, p, logger.Nop(), opts...).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func defaultDoc() *models.PolicyDocument {
	return &models.PolicyDocument{Version: 4, Values: map[string]float64{models.ParamRiskPerTrade: 0.01}}
}

func TestAnalyzeEndpoint(t *testing.T) {
	a := &fakeAnalyzer{}
	e := newTestServer(a, &fakePolicy{doc: defaultDoc()})

	rec, env := do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`,
		map[string]string{middleware.HeaderCorrelationID: "corr-42"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-42", rec.Header().Get(middleware.HeaderCorrelationID))
	assert.Equal(t, "corr-42", a.got.CorrelationID)

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "AAPL", report.Ticker)
	assert.Equal(t, models.ActionHold, report.FinalVerdict)
	assert.Equal(t, "corr-42", report.CorrelationID)
}

func TestAnalyzeValidation(t *testing.T) {
	e := newTestServer(&fakeAnalyzer{}, &fakePolicy{doc: defaultDoc()})

	tests := []struct {
		name string
		body string
	}{
		{"missing ticker", `{"account_id":"acc-1"}`},
		{"bad ticker", `{"ticker":"AA PL!","account_id":"acc-1"}`},
		{"missing account", `{"ticker":"AAPL"}`},
		{"malformed json", `{"ticker":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodPost, "/analyze", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, http.StatusBadRequest, env.Status)
		})
	}
}

func TestAnalyzeThrottledPerAccount(t *testing.T) {
	e := newTestServer(&fakeAnalyzer{}, &fakePolicy{doc: defaultDoc()}, WithLimiter(ratelimit.New(1, 0)))

	rec, _ := do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-2"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	a := &fakeAnalyzer{err: fmt.Errorf("%w: empty", models.ErrInvalidRequest)}
	e := newTestServer(a, &fakePolicy{doc: defaultDoc()}, WithRequestTimeout(time.Second))

	rec, _ := do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.err = context.DeadlineExceeded
	rec, _ = do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	a.err = fmt.Errorf("synthesis exploded")
	rec, env := do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var errs []struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_INTERNAL", errs[0].Code)
}

func TestAnalyzeMultiEndpoint(t *testing.T) {
	a := &fakeAnalyzer{}
	e := newTestServer(a, &fakePolicy{doc: defaultDoc()}, WithRequestTimeout(time.Second))

	rec, env := do(t, e, http.MethodPost, "/analyze-multi", `{"tickers":["AAPL","MSFT"],"account_id":"acc-1"}`,
		map[string]string{middleware.HeaderCorrelationID: "corr-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.gotMany.Tickers)
	assert.Equal(t, "corr-7", a.gotMany.CorrelationID)

	var report models.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Summary.Analyzed)

	tests := []struct {
		name string
		body string
	}{
		{"no tickers", `{"tickers":[],"account_id":"acc-1"}`},
		{"bad ticker", `{"tickers":["AAPL","no way"],"account_id":"acc-1"}`},
		{"missing account", `{"tickers":["AAPL"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, e, http.MethodPost, "/analyze-multi", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnalyzeMultiSharesAccountThrottle(t *testing.T) {
	e := newTestServer(&fakeAnalyzer{}, &fakePolicy{doc: defaultDoc()}, WithLimiter(ratelimit.New(1, 0)))

	rec, _ := do(t, e, http.MethodPost, "/analyze", `{"ticker":"AAPL","account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/analyze-multi", `{"tickers":["AAPL"],"account_id":"acc-1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestScanAndAnalyzeEndpoint(t *testing.T) {
	a := &fakeAnalyzer{}
	e := newTestServer(a, &fakePolicy{doc: defaultDoc()})

	rec, env := do(t, e, http.MethodPost, "/scan-and-analyze", `{"account_id":"acc-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "technical", a.gotScan.ScanType)
	assert.Equal(t, 5, a.gotScan.MaxCandidates)

	var report models.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Candidates, 1)
	assert.Equal(t, "AAPL", report.Candidates[0].Symbol)

	rec, _ = do(t, e, http.MethodPost, "/scan-and-analyze", `{"account_id":"acc-1","scan_type":"momentum"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.err = fmt.Errorf("%w: connection refused", models.ErrScannerUnavailable)
	rec, _ = do(t, e, http.MethodPost, "/scan-and-analyze", `{"account_id":"acc-1","scan_type":"fundamental"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPolicyEndpoints(t *testing.T) {
	p := &fakePolicy{doc: defaultDoc(), snaps: []models.PolicySnapshot{{ID: "s3"}, {ID: "s2"}, {ID: "s1"}}}
	e := newTestServer(&fakeAnalyzer{}, p)

	rec, env := do(t, e, http.MethodGet, "/api/policy", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var doc models.PolicyDocument
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, int64(4), doc.Version)

	rec, env = do(t, e, http.MethodGet, "/api/policy/snapshots?limit=2", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.PolicySnapshot `json:"rows"`
		Total int64                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Rows, 2)
	assert.Equal(t, "s3", list.Rows[0].ID)
	assert.Equal(t, int64(3), list.Total)

	rec, _ = do(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRollbackRequiresAdminToken(t *testing.T) {
	p := &fakePolicy{doc: defaultDoc()}
	e := newTestServer(&fakeAnalyzer{}, p, WithAdminToken("s3cret"))
	body := `{"snapshot_id":"20240102T030405.000000000Z"}`

	rec, _ := do(t, e, http.MethodPost, "/api/policy/rollback", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/policy/rollback", body, map[string]string{headerAdminToken: "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, p.rollbackTo)

	rec, _ = do(t, e, http.MethodPost, "/api/policy/rollback", body, map[string]string{headerAdminToken: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20240102T030405.000000000Z", p.rollbackTo)
}

func TestRollbackErrors(t *testing.T) {
	p := &fakePolicy{doc: defaultDoc(), err: fmt.Errorf("read: %w", models.ErrSnapshotNotFound)}
	e := newTestServer(&fakeAnalyzer{}, p)
	body := `{"snapshot_id":"missing"}`

	rec, _ := do(t, e, http.MethodPost, "/api/policy/rollback", body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p.err = fmt.Errorf("%w: %w", models.ErrPersistence, models.ErrPolicyLocked)
	rec, _ = do(t, e, http.MethodPost, "/api/policy/rollback", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	p.err = models.ErrPersistence
	rec, _ = do(t, e, http.MethodPost, "/api/policy/rollback", body, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
