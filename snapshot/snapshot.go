package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"venue/domain/orderbook"
	"venue/domain/risk"
)

// Snapshot is a full serialization of venue state as of sequence Seq:
// every book's resting orders, the risk ledger, and the idempotency acks.
// It never mutates after creation; later snapshots supersede it.
type Snapshot struct {
	Seq     uint64
	Created time.Time

	Books    []BookState
	Accounts []risk.AccountSnapshot
	Acks     []Ack
}

// BookState captures one instrument's resting orders in walk order (bids
// best to worst, then asks, FIFO within each level) so restore rebuilds
// identical queues.
type BookState struct {
	Instrument string
	LastTrade  decimal.Decimal
	HasLast    bool
	Orders     []OrderEntry
}

type OrderEntry struct {
	ID        string
	AccountID string
	Side      orderbook.Side
	Type      orderbook.OrderType
	Price     decimal.Decimal
	Quantity  int64
	Filled    int64
	SeqID     uint64
	Status    orderbook.Status
}

// Ack is one cached idempotency acknowledgment.
type Ack struct {
	CommandID string
	Seq       uint64
	Accepted  bool
	Reason    string
	Canceled  bool
	Status    orderbook.Status
	Filled    int64
}
