package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradeCore/internal/domain/models"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/internal/services/base"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"
)

const (
	ScanTechnical   = "technical"
	ScanFundamental = "fundamental"
)

type scanReq struct {
	Symbols []string `json:"symbols,omitempty"`
}

type scanResp struct {
	Status    string `json:"status"`
	AgentType string `json:"agent_type"`
	Data      *struct {
		Candidates []models.ScanCandidate `json:"candidates"`
	} `json:"data"`
	Error string `json:"error"`
}

// HTTPScanner asks the scanner agent for candidate tickers. Technical scans post to /scan,
// fundamental scans to /scan/fundamental.
type HTTPScanner struct {
	base *base.HTTPServiceBase
}

func NewHTTPScanner(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPScanner {
	return &HTTPScanner{base: base.NewHTTPServiceBase(baseURL, timeout, opts...)}
}

// Scan returns candidates in the scanner's ranking order, blank and repeated symbols removed.
// Any failure, including a non-success envelope, wraps ErrScannerUnavailable.
func (s *HTTPScanner) Scan(ctx context.Context, req models.ScanRequest) ([]models.ScanCandidate, error) {
	target := s.base.URL("scan")
	switch req.ScanType {
	case "", ScanTechnical:
	case ScanFundamental:
		target = s.base.URL("scan", "fundamental")
	default:
		return nil, fmt.Errorf("%w: unknown scan type %q", models.ErrInvalidRequest, req.ScanType)
	}

	var headers map[string]string
	if req.CorrelationID != "" {
		headers = map[string]string{middleware.HeaderCorrelationID: req.CorrelationID}
	}
	var resp scanResp
	err := s.base.PostJSON(ctx, target, scanReq{Symbols: req.Symbols}, &resp, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrScannerUnavailable, err)
	}
	if resp.Status != "success" || resp.Data == nil {
		return nil, fmt.Errorf("%w: status %q %s", models.ErrScannerUnavailable, resp.Status, resp.Error)
	}

	seen := make(map[string]struct{}, len(resp.Data.Candidates))
	out := make([]models.ScanCandidate, 0, len(resp.Data.Candidates))
	for _, c := range resp.Data.Candidates {
		c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
		if c.Symbol == "" {
			continue
		}
		if _, dup := seen[c.Symbol]; dup {
			continue
		}
		seen[c.Symbol] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

var _ domsvc.Scanner = (*HTTPScanner)(nil)
