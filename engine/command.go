package engine

import (
	"github.com/shopspring/decimal"

	"venue/domain/orderbook"
)

type CommandKind string

const (
	CommandNewOrder CommandKind = "new_order"
	CommandCancel   CommandKind = "cancel_order"
)

// Command is one input to the matching core and the unit stored in the
// event log. ID doubles as the client idempotency key: resubmitting a seen
// ID returns the cached acknowledgment instead of reprocessing.
type Command struct {
	Kind       CommandKind         `json:"kind"`
	ID         string              `json:"id"`
	OrderID    string              `json:"order_id"`
	AccountID  string              `json:"account_id,omitempty"`
	Instrument string              `json:"instrument,omitempty"`
	Side       orderbook.Side      `json:"side,omitempty"`
	Type       orderbook.OrderType `json:"type,omitempty"`
	Quantity   int64               `json:"quantity,omitempty"`
	Price      decimal.Decimal     `json:"price,omitempty"`
}

// logEntry is the serialized form of a log record: the command plus its
// recorded outcome. Replay recomputes the outcome and halts on divergence.
type logEntry struct {
	Command    Command          `json:"command"`
	Accepted   bool             `json:"accepted"`
	Reason     string           `json:"reason,omitempty"`
	TradeCount int              `json:"trade_count,omitempty"`
	Status     orderbook.Status `json:"status,omitempty"`
	Canceled   bool             `json:"canceled,omitempty"`
}

// Result is the synchronous answer to one command.
type Result struct {
	Seq      uint64
	Accepted bool
	Reason   string
	Canceled bool

	// New-order outcome
	Trades []orderbook.Trade
	Status orderbook.Status
	Filled int64
}

// ack is the compact cached acknowledgment kept for idempotency.
type ack struct {
	Seq      uint64
	Accepted bool
	Reason   string
	Canceled bool
	Status   orderbook.Status
	Filled   int64
}

func ackOf(r Result) ack {
	return ack{
		Seq:      r.Seq,
		Accepted: r.Accepted,
		Reason:   r.Reason,
		Canceled: r.Canceled,
		Status:   r.Status,
		Filled:   r.Filled,
	}
}

func (a ack) result() Result {
	return Result{
		Seq:      a.Seq,
		Accepted: a.Accepted,
		Reason:   a.Reason,
		Canceled: a.Canceled,
		Status:   a.Status,
		Filled:   a.Filled,
	}
}
