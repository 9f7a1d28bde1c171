package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"TradeCore/internal/domain/models"
	"TradeCore/internal/service/metrics"
	"TradeCore/internal/service/ratelimit"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"
	applogger "TradeCore/pkg/logger"
)

const (
	headerAdminToken = "X-Admin-Token"
	// batchParallelism matches how many tickers the orchestrator analyzes at once.
	batchParallelism = 4
)

// Analyzer runs analysis requests.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisReport, error)
	AnalyzeBatch(ctx context.Context, req models.BatchAnalysisRequest) (*models.BatchReport, error)
	ScanAndAnalyze(ctx context.Context, req models.ScanRequest) (*models.BatchReport, error)
}

// PolicyAdmin is the part of the policy store exposed to operators.
type PolicyAdmin interface {
	Current() *models.PolicyDocument
	Rollback(ctx context.Context, snapshotID string) (*models.PolicyDocument, error)
	ListSnapshots(ctx context.Context) ([]models.PolicySnapshot, error)
}

// Handler serves the decision and policy admin endpoints.
type Handler struct {
	analyzer       Analyzer
	policy         PolicyAdmin
	limiter        ratelimit.Allower
	logger         *applogger.Logger
	requestTimeout time.Duration
	adminToken     string
}

type Option func(*Handler)

// WithLimiter throttles the analysis endpoints per account.
func WithLimiter(l ratelimit.Allower) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithAdminToken guards policy mutations. Empty leaves them open.
func WithAdminToken(token string) Option {
	return func(h *Handler) { h.adminToken = token }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) { h.requestTimeout = d }
}

func NewHandler(analyzer Analyzer, policy PolicyAdmin, logger *applogger.Logger, opts ...Option) *Handler {
	metrics.Register()
	h := &Handler{analyzer: analyzer, policy: policy, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/analyze", h.Analyze)
	e.POST("/analyze-multi", h.AnalyzeMulti)
	e.POST("/scan-and-analyze", h.ScanAndAnalyze)
	e.GET("/healthz", h.Health)

	g := e.Group("/api/policy")
	g.GET("", h.CurrentPolicy)
	g.GET("/snapshots", h.ListSnapshots)
	g.POST("/rollback", h.Rollback, h.requireAdmin)
}

func (h *Handler) Analyze(c echo.Context) error {
	const endpoint = "analyze"
	start := time.Now()
	defer func() { metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	if h.throttled(c, endpoint, req.AccountID) {
		return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{xhttp.TooManyRequestsError("too many analysis requests for this account")})
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 1)
	defer cancel()

	report, err := h.analyzer.Analyze(ctx, models.AnalysisRequest{
		Ticker:        req.Ticker,
		AccountID:     req.AccountID,
		CorrelationID: middleware.CorrelationID(c),
	})
	if err != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "usecase").Inc()
		h.logger.Error("analyze usecase error", applogger.CorrelationID(middleware.CorrelationID(c)), applogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *Handler) AnalyzeMulti(c echo.Context) error {
	const endpoint = "analyze_multi"
	start := time.Now()
	defer func() { metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyzeMultiRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.throttled(c, endpoint, req.AccountID) {
		return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{xhttp.TooManyRequestsError("too many analysis requests for this account")})
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), len(req.Tickers))
	defer cancel()

	report, err := h.analyzer.AnalyzeBatch(ctx, models.BatchAnalysisRequest{
		Tickers:       req.Tickers,
		AccountID:     req.AccountID,
		CorrelationID: middleware.CorrelationID(c),
	})
	if err != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "usecase").Inc()
		h.logger.Error("analyze-multi usecase error", applogger.CorrelationID(middleware.CorrelationID(c)), applogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *Handler) ScanAndAnalyze(c echo.Context) error {
	const endpoint = "scan_and_analyze"
	start := time.Now()
	defer func() { metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ScanAndAnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "validation").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.throttled(c, endpoint, req.AccountID) {
		return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{xhttp.TooManyRequestsError("too many analysis requests for this account")})
	}
	// one extra round for the scan itself
	ctx, cancel := h.withTimeout(c.Request().Context(), req.MaxCandidates+batchParallelism)
	defer cancel()

	report, err := h.analyzer.ScanAndAnalyze(ctx, models.ScanRequest{
		AccountID:     req.AccountID,
		ScanType:      req.ScanType,
		Symbols:       req.Symbols,
		MaxCandidates: req.MaxCandidates,
		CorrelationID: middleware.CorrelationID(c),
	})
	if err != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, "usecase").Inc()
		h.logger.Error("scan-and-analyze usecase error", applogger.CorrelationID(middleware.CorrelationID(c)), applogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

// throttled charges one request to the account and reports whether it was refused.
func (h *Handler) throttled(c echo.Context, endpoint, accountID string) bool {
	if h.limiter == nil || h.limiter.Allow(c.Request().Context(), accountID) {
		return false
	}
	metrics.Throttled.WithLabelValues(endpoint).Inc()
	h.logger.Warn("analysis throttled",
		applogger.CorrelationID(middleware.CorrelationID(c)),
		applogger.String("endpoint", endpoint),
		applogger.String("account_id", accountID),
	)
	return true
}

// withTimeout gives a request one timeout budget per round of concurrently analyzed tickers.
func (h *Handler) withTimeout(ctx context.Context, tickers int) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return ctx, func() {}
	}
	rounds := (tickers + batchParallelism - 1) / batchParallelism
	if rounds < 1 {
		rounds = 1
	}
	return context.WithTimeout(ctx, time.Duration(rounds)*h.requestTimeout)
}

func (h *Handler) CurrentPolicy(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.policy.Current())
}

func (h *Handler) ListSnapshots(c echo.Context) error {
	req := &models.SnapshotListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snaps, err := h.policy.ListSnapshots(c.Request().Context())
	if err != nil {
		metrics.EndpointErrors.WithLabelValues("snapshots", "store").Inc()
		h.logger.Error("list snapshots error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	total := int64(len(snaps))
	if len(snaps) > req.Limit {
		snaps = snaps[:req.Limit]
	}
	return xhttp.ListResponse(c, snaps, total)
}

func (h *Handler) Rollback(c echo.Context) error {
	req := &models.RollbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	doc, err := h.policy.Rollback(c.Request().Context(), req.SnapshotID)
	if err != nil {
		metrics.EndpointErrors.WithLabelValues("rollback", "store").Inc()
		h.logger.Warn("policy rollback failed",
			applogger.CorrelationID(middleware.CorrelationID(c)),
			applogger.String("snapshot_id", req.SnapshotID),
			applogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Info("policy rolled back",
		applogger.CorrelationID(middleware.CorrelationID(c)),
		applogger.String("snapshot_id", req.SnapshotID),
		applogger.Int64("version", doc.Version),
	)
	return xhttp.SuccessResponse(c, doc)
}

func (h *Handler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":         "ok",
		"policy_version": h.policy.Current().Version,
	})
}

func (h *Handler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.adminToken == "" {
			return next(c)
		}
		got := c.Request().Header.Get(headerAdminToken)
		if got == "" {
			return xhttp.UnauthorizedResponse(c, []*xhttp.AppError{xhttp.UnauthorizedError("admin token required")})
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
			return xhttp.ForbiddenResponse(c, []*xhttp.AppError{xhttp.ForbiddenError("invalid admin token")})
		}
		return next(c)
	}
}

// toAppError maps domain sentinels onto HTTP statuses.
func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrSnapshotNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrPolicyLocked):
		return xhttp.NewAppError("ERR_POLICY_LOCKED", "", err.Error(), http.StatusConflict).WithError(err)
	case errors.Is(err, models.ErrPersistence):
		return xhttp.ServiceUnavailableError("policy could not be persisted").WithError(err)
	case errors.Is(err, models.ErrScannerUnavailable):
		return xhttp.ServiceUnavailableError("scanner agent unavailable").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return xhttp.InternalError("request failed").WithError(err)
}
