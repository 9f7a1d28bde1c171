package usecase

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
)

// Reasons a sizing pass produced no order.
const (
	NoTradeHold           = "hold"
	NoTradeStrictDegraded = "degraded_strict_mode"
	NoTradeNoCash         = "no_cash"
	NoTradeBelowMinimum   = "below_min_position_value"
	NoTradeExposure       = "max_total_exposure"
	NoTradeNoPrice        = "no_reference_price"
	NoTradeNoPosition     = "no_position_to_sell"
	NoTradeZeroQuantity   = "zero_quantity"
	NoTradeBudgetSpent    = "request_budget_exhausted"
	NoTradeScaledTooSmall = "scaled_below_min_position_value"
)

var one = decimal.NewFromInt(1)

// PortfolioRiskManager turns a verdict into a sized limit order. Every step is a hard gate.
type PortfolioRiskManager struct {
	quotes domrepo.QuoteSource
	newID  func() string
}

// NewPortfolioRiskManager takes an optional quote source used when no agent reported a price.
func NewPortfolioRiskManager(quotes domrepo.QuoteSource) *PortfolioRiskManager {
	return &PortfolioRiskManager{quotes: quotes, newID: uuid.NewString}
}

// budgetState is what earlier orders in the same request already used up.
type budgetState struct {
	exposure  decimal.Decimal
	remaining decimal.Decimal
}

// BatchCandidate is one ticker's verdict in a multi-asset request.
type BatchCandidate struct {
	Ticker  string
	Outcome *models.SynthesisOutcome
}

// Size sizes a single verdict on its own.
func (m *PortfolioRiskManager) Size(ctx context.Context, ticker string, outcome *models.SynthesisOutcome, portfolio *models.PortfolioState, policy *models.PolicyDocument) models.SizingResult {
	return m.size(ctx, ticker, outcome, portfolio, policy, nil)
}

// SizeBatch sizes several verdicts against one portfolio and one per-request budget. Sells
// run first and free exposure. Buys follow by descending score; each is scaled down to the
// budget left over and checked against the exposure already taken by approved buys.
// Results keep the candidate order.
func (m *PortfolioRiskManager) SizeBatch(ctx context.Context, cands []BatchCandidate, portfolio *models.PortfolioState, policy *models.PolicyDocument) []models.SizingResult {
	out := make([]models.SizingResult, len(cands))
	st := &budgetState{}
	if portfolio != nil {
		st.exposure = portfolio.TotalExposure
		st.remaining = portfolio.CashBalance.Mul(decimal.NewFromFloat(policy.Value(models.ParamPerRequestRiskBudget)))
	}

	var sells, buys []int
	for i, c := range cands {
		switch {
		case c.Outcome == nil || c.Outcome.FinalAction == models.ActionHold:
			out[i] = noTrade(NoTradeHold)
		case c.Outcome.FinalAction == models.ActionSell:
			sells = append(sells, i)
		default:
			buys = append(buys, i)
		}
	}

	for _, i := range sells {
		out[i] = m.size(ctx, cands[i].Ticker, cands[i].Outcome, portfolio, policy, st)
		if o := out[i].Order; o != nil {
			freed := decimal.NewFromInt(o.Quantity).Mul(portfolio.Positions[o.Symbol].MarkPrice())
			st.exposure = decimal.Max(decimal.Zero, st.exposure.Sub(freed))
		}
	}

	sort.SliceStable(buys, func(a, b int) bool {
		return cands[buys[a]].Outcome.Score > cands[buys[b]].Outcome.Score
	})
	for _, i := range buys {
		out[i] = m.size(ctx, cands[i].Ticker, cands[i].Outcome, portfolio, policy, st)
		if o := out[i].Order; o != nil {
			st.exposure = st.exposure.Add(o.Notional())
			st.remaining = st.remaining.Sub(o.Notional())
		}
	}
	return out
}

// size runs the gates. st is nil for a standalone request.
func (m *PortfolioRiskManager) size(ctx context.Context, ticker string, outcome *models.SynthesisOutcome, portfolio *models.PortfolioState, policy *models.PolicyDocument, st *budgetState) models.SizingResult {
	if outcome == nil || outcome.FinalAction == models.ActionHold {
		return noTrade(NoTradeHold)
	}
	if outcome.Degraded && policy.Enabled(models.ParamStrictDegradedMode) {
		return noTrade(NoTradeStrictDegraded)
	}
	if portfolio == nil || !portfolio.CashBalance.IsPositive() {
		return noTrade(NoTradeNoCash)
	}

	cash := portfolio.CashBalance
	frac := func(name string) decimal.Decimal {
		return cash.Mul(decimal.NewFromFloat(policy.Value(name)))
	}

	notional := decimal.Min(
		frac(models.ParamRiskPerTrade),
		frac(models.ParamMaxPositionPercentage),
		frac(models.ParamPerRequestRiskBudget),
	)
	exposure := portfolio.TotalExposure
	scaled := false
	if st != nil {
		exposure = st.exposure
		// Only buys draw on the shared budget.
		if outcome.FinalAction == models.ActionBuy {
			if !st.remaining.IsPositive() {
				return noTrade(NoTradeBudgetSpent)
			}
			if notional.GreaterThan(st.remaining) {
				notional, scaled = st.remaining, true
			}
		}
	}
	if notional.LessThan(decimal.NewFromFloat(policy.Value(models.ParamMinPositionValue))) {
		if scaled {
			return noTrade(NoTradeScaledTooSmall)
		}
		return noTrade(NoTradeBelowMinimum)
	}
	// Sells reduce exposure, so only buys are held to the exposure ceiling.
	if outcome.FinalAction == models.ActionBuy &&
		exposure.Add(notional).GreaterThan(frac(models.ParamMaxTotalExposure)) {
		return noTrade(NoTradeExposure)
	}

	price, stopHint := m.referencePrice(ctx, ticker, outcome)
	if !price.IsPositive() {
		return noTrade(NoTradeNoPrice)
	}

	qty := notional.Div(price).Floor()
	if outcome.FinalAction == models.ActionSell {
		held := portfolio.Positions[ticker].Quantity.Floor()
		if !held.IsPositive() {
			return noTrade(NoTradeNoPosition)
		}
		qty = decimal.Min(qty, held)
	}
	if !qty.IsPositive() {
		return noTrade(NoTradeZeroQuantity)
	}

	return models.SizingResult{Scaled: scaled, Order: &models.RiskAdjustedOrder{
		ClientOrderID: m.newID(),
		Symbol:        ticker,
		Side:          outcome.FinalAction,
		Quantity:      qty.IntPart(),
		LimitPrice:    price,
		StopPrice:     stopPrice(outcome.FinalAction, price, stopHint, policy),
		Rationale:     outcome.Rationale(),
	}}
}

// referencePrice prefers the first contributing agent that quoted a price, then the quote stream.
// The technical stop comes from the first agent that supplied one.
func (m *PortfolioRiskManager) referencePrice(ctx context.Context, ticker string, outcome *models.SynthesisOutcome) (decimal.Decimal, decimal.Decimal) {
	var price, stop decimal.Decimal
	for _, s := range outcome.Contributing {
		if price.IsZero() && s.CurrentPrice > 0 {
			price = decimal.NewFromFloat(s.CurrentPrice)
		}
		if stop.IsZero() && s.TechnicalStop > 0 {
			stop = decimal.NewFromFloat(s.TechnicalStop)
		}
	}
	if price.IsZero() && m.quotes != nil {
		if p, ok := m.quotes.LatestPrice(ctx, ticker); ok && p > 0 {
			price = decimal.NewFromFloat(p)
		}
	}
	return price, stop
}

func stopPrice(side models.Action, price, technical decimal.Decimal, policy *models.PolicyDocument) decimal.Decimal {
	if policy.Enabled(models.ParamEnableTechnicalStop) && technical.IsPositive() {
		if (side == models.ActionBuy && technical.LessThan(price)) ||
			(side == models.ActionSell && technical.GreaterThan(price)) {
			return technical
		}
	}
	pct := decimal.NewFromFloat(policy.Value(models.ParamStopLossPercentage))
	if side == models.ActionSell {
		return price.Mul(one.Add(pct)).Round(4)
	}
	return price.Mul(one.Sub(pct)).Round(4)
}

func noTrade(reason string) models.SizingResult {
	return models.SizingResult{Reason: reason}
}
