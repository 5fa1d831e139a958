package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side int
type OrderType int
type Status int

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
)

const (
	New Status = iota
	PartiallyFilled
	Filled
	Canceled
	Rejected
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (t OrderType) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

// ParseSide maps the wire form back to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// ParseOrderType maps the wire form back to an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func (s Status) String() string {
	switch s {
	case New:
		return "NEW"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is the book's domain entity. Price is meaningful only for limit
// orders. SeqID is the admission sequence assigned at log append and is the
// sole source of time priority; wall clocks never order anything here.
type Order struct {
	ID         string
	AccountID  string
	Instrument string

	Side  Side
	Type  OrderType
	Price decimal.Decimal

	Quantity int64
	Filled   int64

	SeqID  uint64
	Status Status

	next *Order
	prev *Order
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Terminal reports whether the order can never mutate again.
func (o *Order) Terminal() bool {
	return o.Status == Filled || o.Status == Canceled || o.Status == Rejected
}

// fill applies an execution of qty and moves the status forward.
func (o *Order) fill(qty int64) {
	o.Filled += qty
	if o.Remaining() == 0 {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
}

// Reset clears the order for pool reuse.
func (o *Order) Reset() {
	*o = Order{}
}

// Read-only traversal helper for FIFO level walks.
func (o *Order) Next() *Order { return o.next }

// Trade is an immutable execution record. Price is always the resting
// order's price, never the incomer's limit. Seq is the log sequence of the
// command that produced it.
type Trade struct {
	ID            string          `json:"id"`
	Instrument    string          `json:"instrument"`
	BuyerOrderID  string          `json:"buyer_order_id"`
	SellerOrderID string          `json:"seller_order_id"`
	BuyerAccount  string          `json:"buyer_account"`
	SellerAccount string          `json:"seller_account"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	Seq           uint64          `json:"seq"`
}

// TradeID derives a deterministic trade identifier from the admission
// sequence of the producing command and the match index within it, so
// replay reproduces identical IDs.
func TradeID(seq uint64, idx int) string {
	return fmt.Sprintf("T%d-%d", seq, idx)
}
