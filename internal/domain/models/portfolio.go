package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one holding as reported by the ledger.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	MarketPrice decimal.Decimal `json:"current_market_price"`
}

// MarkPrice is the market price, falling back to average cost.
func (p Position) MarkPrice() decimal.Decimal {
	if p.MarketPrice.IsPositive() {
		return p.MarketPrice
	}
	return p.AverageCost
}

// Value marks the position to market.
func (p Position) Value() decimal.Decimal {
	return p.Quantity.Mul(p.MarkPrice())
}

// PortfolioState is a read-only, possibly stale snapshot owned by the ledger.
type PortfolioState struct {
	AccountID     string              `json:"account_id"`
	CashBalance   decimal.Decimal     `json:"cash_balance"`
	Positions     map[string]Position `json:"positions"`
	TotalExposure decimal.Decimal     `json:"total_exposure"`
	FetchedAt     time.Time           `json:"fetched_at"`
}

// NewPortfolioState derives total exposure from the positions.
func NewPortfolioState(accountID string, cash decimal.Decimal, positions []Position) *PortfolioState {
	ps := &PortfolioState{
		AccountID:   accountID,
		CashBalance: cash,
		Positions:   make(map[string]Position, len(positions)),
		FetchedAt:   time.Now().UTC(),
	}
	for _, p := range positions {
		ps.Positions[p.Symbol] = p
		ps.TotalExposure = ps.TotalExposure.Add(p.Value())
	}
	return ps
}

// RiskAdjustedOrder is a sized limit order. Nil means no trade.
type RiskAdjustedOrder struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          Action          `json:"side"`
	Quantity      int64           `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	Rationale     string          `json:"rationale"`
}

// Notional is quantity times limit price.
func (o *RiskAdjustedOrder) Notional() decimal.Decimal {
	return o.LimitPrice.Mul(decimal.NewFromInt(o.Quantity))
}

// SizingResult carries the sized order, or the gate that rejected the trade.
type SizingResult struct {
	Order  *RiskAdjustedOrder
	Reason string
	// Scaled is set when a shared batch budget shrank the order.
	Scaled bool
}

// OrderReceipt is the ledger's acknowledgement of a created order.
type OrderReceipt struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

// TradeRecord is one executed trade from the ledger history.
type TradeRecord struct {
	TradeID   string          `json:"trade_id"`
	OrderID   string          `json:"order_id,omitempty"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
