package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"TradeCore/internal/domain/models"
	drepo "TradeCore/internal/domain/repository"
	"TradeCore/internal/services/base"
	xhttp "TradeCore/pkg/http"
	"TradeCore/pkg/http/middleware"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type balanceResp struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
}

type createOrderReq struct {
	ClientOrderID string          `json:"client_order_id"`
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	OrderType     string          `json:"order_type"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	Quantity      int64           `json:"quantity"`
	TimeInForce   string          `json:"time_in_force"`
}

// HTTPLedger talks to the ledger service. Concurrent portfolio reads for the same account
// share one round trip.
type HTTPLedger struct {
	base    *base.HTTPServiceBase
	group   singleflight.Group
	timeout time.Duration
}

func NewHTTPLedger(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLedger{base: base.NewHTTPServiceBase(baseURL, timeout, opts...), timeout: timeout}
}

// Portfolio reads cash and positions and derives total exposure. The shared read is detached
// from any single caller, so one caller giving up does not fail the others waiting on it.
func (l *HTTPLedger) Portfolio(ctx context.Context, accountID string) (*models.PortfolioState, error) {
	ch := l.group.DoChan(accountID, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.fetchPortfolio(fctx, accountID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ledgerErr("portfolio", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// Callers sharing a flight get the same pointer; hand each one its own copy.
	ps := *res.Val.(*models.PortfolioState)
	positions := make(map[string]models.Position, len(ps.Positions))
	for k, p := range ps.Positions {
		positions[k] = p
	}
	ps.Positions = positions
	return &ps, nil
}

func (l *HTTPLedger) fetchPortfolio(ctx context.Context, accountID string) (*models.PortfolioState, error) {
	var bal balanceResp
	if err := l.base.GetJSON(ctx, l.base.URL("accounts", accountID, "balance"), nil, &bal); err != nil {
		return nil, ledgerErr("balance", err)
	}
	var positions []models.Position
	if err := l.base.GetJSON(ctx, l.base.URL("accounts", accountID, "positions"), nil, &positions); err != nil {
		return nil, ledgerErr("positions", err)
	}
	return models.NewPortfolioState(accountID, bal.CashBalance, positions), nil
}

// SubmitOrder creates a GTC limit order. The client order id doubles as the idempotency key.
func (l *HTTPLedger) SubmitOrder(ctx context.Context, accountID string, order *models.RiskAdjustedOrder, correlationID string) (*models.OrderReceipt, error) {
	body := createOrderReq{
		ClientOrderID: order.ClientOrderID,
		AccountID:     accountID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		OrderType:     "limit",
		Price:         order.LimitPrice,
		StopPrice:     order.StopPrice,
		Quantity:      order.Quantity,
		TimeInForce:   "GTC",
	}
	var receipt models.OrderReceipt
	err := l.base.PostJSON(ctx, l.base.URL("accounts", accountID, "orders"), body, &receipt, map[string]string{
		"Idempotency-Key":              order.ClientOrderID,
		middleware.HeaderCorrelationID: correlationID,
	})
	if err != nil {
		return nil, ledgerErr("create order", err)
	}
	if receipt.ClientOrderID == "" {
		receipt.ClientOrderID = order.ClientOrderID
	}
	return &receipt, nil
}

// TradeHistory returns the most recent trades, newest first as the ledger orders them.
func (l *HTTPLedger) TradeHistory(ctx context.Context, accountID string, limit int) ([]models.TradeRecord, error) {
	var query map[string][]string
	if limit > 0 {
		query = map[string][]string{"limit": {strconv.Itoa(limit)}}
	}
	var trades []models.TradeRecord
	if err := l.base.GetJSON(ctx, l.base.URL("accounts", accountID, "trade_history"), query, &trades); err != nil {
		return nil, ledgerErr("trade history", err)
	}
	return trades, nil
}

func ledgerErr(op string, err error) error {
	return fmt.Errorf("ledger %s: %w: %w", op, models.ErrLedgerUnavailable, err)
}

var _ drepo.Ledger = (*HTTPLedger)(nil)
