package orderbook

import (
	"sync"

	"github.com/shopspring/decimal"

	"venue/infra/memory"
)

// OrderBook is a single-instrument price-time-priority matcher. It owns its
// price levels exclusively and knows nothing about other instruments, risk
// or persistence.
//
// Mutating calls are serialized by the engine; the RWMutex exists so
// market-data reads can proceed concurrently with each other.
type OrderBook struct {
	mu sync.RWMutex

	Instrument string

	Bids *RBTree // best = MaxLevel
	Asks *RBTree // best = MinLevel

	// resting orders by id, for O(log n) cancellation
	index map[string]*Order

	lastTrade    decimal.Decimal
	hasLastTrade bool

	pool *memory.Pool[Order]

	// terminal resting orders pending recycle. They stay readable until the
	// next mutating call so callers can inspect fill state after a match.
	retired []*Order
}

func NewOrderBook(instrument string, pool *memory.Pool[Order]) *OrderBook {
	return &OrderBook{
		Instrument: instrument,
		Bids:       NewRBTree(),
		Asks:       NewRBTree(),
		index:      make(map[string]*Order),
		pool:       pool,
	}
}

// SubmitLimit matches the order against the opposing side and rests any
// remainder at its limit price.
func (b *OrderBook) SubmitLimit(o *Order) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainRetired()

	trades := b.match(o)

	if o.Remaining() > 0 {
		b.enqueue(o)
	}
	return trades
}

// SubmitMarket matches the order against available liquidity. Market orders
// never rest: any remainder transitions the order to Rejected with partial
// fills retained.
func (b *OrderBook) SubmitMarket(o *Order) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainRetired()

	trades := b.match(o)

	if o.Remaining() > 0 {
		o.Status = Rejected
	}
	return trades
}

// Cancel removes a resting order. The unfilled remainder is voided; filled
// quantity stays as-is. The returned order is readable until the next
// mutating call on this book.
func (b *OrderBook) Cancel(orderID string) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainRetired()

	o, ok := b.index[orderID]
	if !ok {
		return nil, false
	}

	side := b.Bids
	if o.Side == Sell {
		side = b.Asks
	}
	lvl := side.FindLevel(o.Price)
	lvl.Unlink(o)
	if lvl.Empty() {
		side.DeleteLevel(lvl.Price)
	}

	delete(b.index, orderID)
	o.Status = Canceled
	b.retired = append(b.retired, o)
	return o, true
}

func (b *OrderBook) match(o *Order) []Trade {
	var trades []Trade
	idx := 0

	for o.Remaining() > 0 {
		var best *PriceLevel
		if o.Side == Buy {
			best = b.Asks.MinLevel()
			if best == nil {
				break
			}
			if o.Type == Limit && o.Price.Cmp(best.Price) < 0 {
				break
			}
		} else {
			best = b.Bids.MaxLevel()
			if best == nil {
				break
			}
			if o.Type == Limit && o.Price.Cmp(best.Price) > 0 {
				break
			}
		}

		for o.Remaining() > 0 && !best.Empty() {
			resting := best.Head()
			qty := min(o.Remaining(), resting.Remaining())

			resting.fill(qty)
			best.TotalQty -= qty
			o.fill(qty)

			trades = append(trades, b.newTrade(o, resting, qty, idx))
			idx++

			b.lastTrade = best.Price
			b.hasLastTrade = true

			if resting.Remaining() == 0 {
				best.PopHead()
				delete(b.index, resting.ID)
				b.retired = append(b.retired, resting)
			}
		}

		if best.Empty() {
			if o.Side == Buy {
				b.Asks.DeleteLevel(best.Price)
			} else {
				b.Bids.DeleteLevel(best.Price)
			}
		}
	}
	return trades
}

// newTrade records an execution at the resting order's price.
func (b *OrderBook) newTrade(incoming, resting *Order, qty int64, idx int) Trade {
	t := Trade{
		ID:         TradeID(incoming.SeqID, idx),
		Instrument: b.Instrument,
		Price:      resting.Price,
		Quantity:   qty,
		Seq:        incoming.SeqID,
	}
	if incoming.Side == Buy {
		t.BuyerOrderID = incoming.ID
		t.BuyerAccount = incoming.AccountID
		t.SellerOrderID = resting.ID
		t.SellerAccount = resting.AccountID
	} else {
		t.BuyerOrderID = resting.ID
		t.BuyerAccount = resting.AccountID
		t.SellerOrderID = incoming.ID
		t.SellerAccount = incoming.AccountID
	}
	return t
}

func (b *OrderBook) enqueue(o *Order) {
	side := b.Bids
	if o.Side == Sell {
		side = b.Asks
	}
	side.UpsertLevel(o.Price).Enqueue(o)
	b.index[o.ID] = o
}

// Restore re-inserts a resting order from a snapshot without matching.
// Callers must present orders in FIFO order within each price level.
func (b *OrderBook) Restore(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueue(o)
}

func (b *OrderBook) drainRetired() {
	for _, o := range b.retired {
		o.Reset()
		b.pool.Put(o)
	}
	b.retired = b.retired[:0]
}

// BestBid returns the highest resting bid price.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl := b.Bids.MaxLevel()
	if lvl == nil {
		return decimal.Decimal{}, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl := b.Asks.MinLevel()
	if lvl == nil {
		return decimal.Decimal{}, false
	}
	return lvl.Price, true
}

// Spread returns ask-bid, defined only when both sides are non-empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid := b.Bids.MaxLevel()
	ask := b.Asks.MinLevel()
	if bid == nil || ask == nil {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

// LastTrade returns the most recent execution price on this book.
func (b *OrderBook) LastTrade() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTrade, b.hasLastTrade
}

// SetLastTrade restores the last execution price from a snapshot.
func (b *OrderBook) SetLastTrade(p decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastTrade = p
	b.hasLastTrade = true
}

// Has reports whether an order id is currently resting in this book.
func (b *OrderBook) Has(orderID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[orderID]
	return ok
}

// RestingCount returns the number of resting orders.
func (b *OrderBook) RestingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}

// WalkResting visits every resting order, bids from best to worst then asks
// from best to worst, FIFO within each level. Snapshot and depth views both
// rely on this order being stable.
func (b *OrderBook) WalkResting(visit func(o *Order)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.Bids.ForEachDescending(func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			visit(o)
		}
		return true
	})
	b.Asks.ForEachAscending(func(lvl *PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			visit(o)
		}
		return true
	})
}
