package base

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"
)

// HTTPServiceBase provides a DRY foundation for collaborator HTTP clients.
// It centralizes client construction, JSON requests and correlation-id propagation.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds a client for baseURL. An empty baseURL means paths are absolute URLs.
func NewHTTPServiceBase(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(opts...),
	}
}

// URL joins path segments under baseURL, escaping each segment.
func (b *HTTPServiceBase) URL(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, b.baseURL)
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// PostJSON posts payload to target and decodes the JSON answer into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, target string, payload, dest interface{}, headers map[string]string) error {
	return b.do(ctx, xhttp.MethodPost, target, payload, dest, headers)
}

// GetJSON fetches target and decodes the JSON answer into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, target string, query map[string][]string, dest interface{}) error {
	if b.client == nil {
		return fmt.Errorf("http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         target,
		Headers:     correlationHeader(ctx, nil),
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("get %s: %w", target, err)
	}
	return nil
}

func (b *HTTPServiceBase) do(ctx context.Context, method, target string, payload, dest interface{}, headers map[string]string) error {
	if b.client == nil {
		return fmt.Errorf("http client not initialized")
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  method,
		URL:     target,
		Headers: correlationHeader(ctx, h),
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(method), target, err)
	}
	return nil
}

// correlationHeader stamps X-Correlation-ID from ctx unless the caller already set one.
func correlationHeader(ctx context.Context, h map[string]string) map[string]string {
	if h == nil {
		h = make(map[string]string, 1)
	}
	if _, ok := h[middleware.HeaderCorrelationID]; ok {
		return h
	}
	if id := middleware.CorrelationIDFrom(ctx); id != "" {
		h[middleware.HeaderCorrelationID] = id
	}
	return h
}
