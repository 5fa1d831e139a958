package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"venue/domain/orderbook"
)

// Rejection reasons. Each maps to exactly one failing check; checks never
// partially apply.
var (
	ErrPositionLimit      = errors.New("position limit exceeded")
	ErrInstrumentNotional = errors.New("instrument notional limit exceeded")
	ErrPortfolioNotional  = errors.New("portfolio notional limit exceeded")
	ErrSpreadProtection   = errors.New("market order rejected: spread too wide")
)

// Limits are the static risk bounds loaded at startup.
type Limits struct {
	MaxPosition           int64
	MaxInstrumentNotional decimal.Decimal
	MaxPortfolioNotional  decimal.Decimal
	MaxSpreadRatio        decimal.Decimal // spread / midpoint
}

// MarketView is what the risk engine sees of the target book at check time.
type MarketView struct {
	// Reference price for notional checks: the limit price for limit
	// orders, the best opposing price (or last trade) for market orders.
	Ref    decimal.Decimal
	HasRef bool

	// Spread-to-midpoint ratio, defined only when both sides are non-empty.
	SpreadRatio    decimal.Decimal
	HasSpreadRatio bool
}

// Engine runs the deterministic pre-trade checks against the ledger. It is
// stateless per call; all mutable state lives in the ledger.
type Engine struct {
	limits Limits
	ledger *Ledger
}

func NewEngine(limits Limits, ledger *Ledger) *Engine {
	return &Engine{limits: limits, ledger: ledger}
}

func (e *Engine) Ledger() *Ledger { return e.ledger }

// Check validates the order before it reaches any book. The position check
// is conservative: it assumes a full fill and counts open resting quantity
// on the same side. A nil return means accept.
func (e *Engine) Check(o *orderbook.Order, view MarketView) error {
	a := e.ledger.account(o.AccountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.state(o.Instrument)

	// 1. Per-instrument position cap, worst-case full fill.
	var projected int64
	if o.Side == orderbook.Buy {
		projected = s.Position + s.OpenBuy + o.Quantity
	} else {
		projected = s.Position - s.OpenSell - o.Quantity
	}
	if abs(projected) > e.limits.MaxPosition {
		return ErrPositionLimit
	}

	if view.HasRef {
		notional := decimal.NewFromInt(abs(s.Position) + o.Quantity).Mul(view.Ref)

		// 2. Per-instrument notional cap.
		if notional.Cmp(e.limits.MaxInstrumentNotional) > 0 {
			return ErrInstrumentNotional
		}

		// 3. Portfolio-wide notional cap.
		portfolio := a.portfolio.Sub(s.Exposure).Add(notional)
		if portfolio.Cmp(e.limits.MaxPortfolioNotional) > 0 {
			return ErrPortfolioNotional
		}
	}

	// 4. Market order price protection.
	if o.Type == orderbook.Market && view.HasSpreadRatio {
		if view.SpreadRatio.Cmp(e.limits.MaxSpreadRatio) > 0 {
			return ErrSpreadProtection
		}
	}

	return nil
}
