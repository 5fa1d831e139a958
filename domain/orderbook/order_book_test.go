package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue/infra/memory"
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	pool := memory.NewPool(func() *Order { return &Order{} })
	return NewOrderBook("BTC-USD", pool)
}

var seqCounter uint64

func limit(id string, side Side, price string, qty int64) *Order {
	seqCounter++
	return &Order{
		ID:        id,
		AccountID: "acct-" + id,
		Side:      side,
		Type:      Limit,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		SeqID:     seqCounter,
		Status:    New,
	}
}

func market(id string, side Side, qty int64) *Order {
	seqCounter++
	return &Order{
		ID:        id,
		AccountID: "acct-" + id,
		Side:      side,
		Type:      Market,
		Quantity:  qty,
		SeqID:     seqCounter,
		Status:    New,
	}
}

func TestLimitOrderRestsWhenNoMatch(t *testing.T) {
	b := newTestBook(t)

	trades := b.SubmitLimit(limit("b1", Buy, "100", 10))

	assert.Empty(t, trades)
	assert.True(t, b.Has("b1"))
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("100")))
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestExactMatchFillsBothSides(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 10))
	incoming := limit("b1", Buy, "100", 10)
	trades := b.SubmitLimit(incoming)

	require.Len(t, trades, 1)
	assert.Equal(t, int64(10), trades[0].Quantity)
	assert.Equal(t, "b1", trades[0].BuyerOrderID)
	assert.Equal(t, "s1", trades[0].SellerOrderID)
	assert.Equal(t, Filled, incoming.Status)
	assert.Equal(t, 0, b.RestingCount())
}

func TestTradeExecutesAtRestingPrice(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 5))
	trades := b.SubmitLimit(limit("b1", Buy, "105", 5))

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(decimal.RequireFromString("100")),
		"trade must execute at the resting order's price")
}

func TestPartialFillRestsRemainder(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 4))
	incoming := limit("b1", Buy, "100", 10)
	trades := b.SubmitLimit(incoming)

	require.Len(t, trades, 1)
	assert.Equal(t, int64(4), trades[0].Quantity)
	assert.Equal(t, PartiallyFilled, incoming.Status)
	assert.Equal(t, int64(6), incoming.Remaining())
	assert.True(t, b.Has("b1"))
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("100")))
}

func TestPricePriority(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s-high", Sell, "102", 5))
	b.SubmitLimit(limit("s-low", Sell, "101", 5))

	trades := b.SubmitLimit(limit("b1", Buy, "102", 5))

	require.Len(t, trades, 1)
	assert.Equal(t, "s-low", trades[0].SellerOrderID, "better price matches first")
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s-first", Sell, "100", 5))
	b.SubmitLimit(limit("s-second", Sell, "100", 5))

	trades := b.SubmitLimit(limit("b1", Buy, "100", 5))

	require.Len(t, trades, 1)
	assert.Equal(t, "s-first", trades[0].SellerOrderID, "earlier admission matches first")
	assert.True(t, b.Has("s-second"))
}

func TestSweepAcrossLevels(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 3))
	b.SubmitLimit(limit("s2", Sell, "101", 3))
	b.SubmitLimit(limit("s3", Sell, "102", 3))

	incoming := limit("b1", Buy, "101", 9)
	trades := b.SubmitLimit(incoming)

	require.Len(t, trades, 2)
	assert.Equal(t, "s1", trades[0].SellerOrderID)
	assert.Equal(t, "s2", trades[1].SellerOrderID)
	assert.Equal(t, int64(6), incoming.Filled)
	// Remainder rests at the limit; s3 is beyond it.
	assert.True(t, b.Has("b1"))
	assert.True(t, b.Has("s3"))
}

func TestMarketOrderFullFill(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 10))
	incoming := market("m1", Buy, 10)
	trades := b.SubmitMarket(incoming)

	require.Len(t, trades, 1)
	assert.Equal(t, Filled, incoming.Status)
	last, ok := b.LastTrade()
	require.True(t, ok)
	assert.True(t, last.Equal(decimal.RequireFromString("100")))
}

func TestMarketOrderNoLiquidityRejected(t *testing.T) {
	b := newTestBook(t)

	incoming := market("m1", Buy, 10)
	trades := b.SubmitMarket(incoming)

	assert.Empty(t, trades)
	assert.Equal(t, Rejected, incoming.Status)
	assert.Equal(t, int64(0), incoming.Filled)
	assert.Equal(t, 0, b.RestingCount())
}

func TestMarketOrderPartialFillKeepsExecutions(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 4))
	incoming := market("m1", Buy, 10)
	trades := b.SubmitMarket(incoming)

	require.Len(t, trades, 1)
	assert.Equal(t, int64(4), trades[0].Quantity)
	assert.Equal(t, Rejected, incoming.Status, "unfillable remainder rejects the order")
	assert.Equal(t, int64(4), incoming.Filled, "partial executions stand")
	assert.False(t, b.Has("m1"), "market orders never rest")
}

func TestCancelRestingOrder(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("b1", Buy, "100", 10))
	o, ok := b.Cancel("b1")

	require.True(t, ok)
	assert.Equal(t, Canceled, o.Status)
	assert.False(t, b.Has("b1"))
	_, hasBid := b.BestBid()
	assert.False(t, hasBid, "empty level is removed")
}

func TestCancelUnknownOrderReturnsFalse(t *testing.T) {
	b := newTestBook(t)

	_, ok := b.Cancel("nope")
	assert.False(t, ok)
}

func TestCancelMidQueuePreservesFIFO(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 5))
	b.SubmitLimit(limit("s2", Sell, "100", 5))
	b.SubmitLimit(limit("s3", Sell, "100", 5))

	_, ok := b.Cancel("s2")
	require.True(t, ok)

	trades := b.SubmitLimit(limit("b1", Buy, "100", 10))
	require.Len(t, trades, 2)
	assert.Equal(t, "s1", trades[0].SellerOrderID)
	assert.Equal(t, "s3", trades[1].SellerOrderID)
}

func TestCancelPartiallyFilledVoidsRemainderOnly(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 10))
	b.SubmitLimit(limit("b1", Buy, "100", 4))

	o, ok := b.Cancel("s1")
	require.True(t, ok)
	assert.Equal(t, int64(4), o.Filled)
	assert.Equal(t, int64(6), o.Remaining())
}

func TestNoRestingCross(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 5))
	b.SubmitLimit(limit("b1", Buy, "101", 3))

	// The crossing buy must have traded, not rested above the ask.
	assert.False(t, b.Has("b1"))
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if hasBid && hasAsk {
		assert.True(t, bid.Cmp(ask) < 0, "book must never rest crossed")
	}
}

func TestVolumeConservation(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("s1", Sell, "100", 7))
	b.SubmitLimit(limit("s2", Sell, "101", 5))
	incoming := limit("b1", Buy, "101", 10)
	trades := b.SubmitLimit(incoming)

	var traded int64
	for _, tr := range trades {
		traded += tr.Quantity
	}
	assert.Equal(t, incoming.Filled, traded)
	assert.Equal(t, incoming.Quantity, incoming.Filled+incoming.Remaining())
}

func TestSpread(t *testing.T) {
	b := newTestBook(t)

	_, ok := b.Spread()
	assert.False(t, ok)

	b.SubmitLimit(limit("b1", Buy, "99", 1))
	_, ok = b.Spread()
	assert.False(t, ok, "spread needs both sides")

	b.SubmitLimit(limit("s1", Sell, "101", 1))
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(decimal.RequireFromString("2")))
}

func TestWalkRestingOrder(t *testing.T) {
	b := newTestBook(t)

	b.SubmitLimit(limit("b-low", Buy, "98", 1))
	b.SubmitLimit(limit("b-high", Buy, "99", 1))
	b.SubmitLimit(limit("a-high", Sell, "102", 1))
	b.SubmitLimit(limit("a-low", Sell, "101", 1))

	var ids []string
	b.WalkResting(func(o *Order) { ids = append(ids, o.ID) })

	assert.Equal(t, []string{"b-high", "b-low", "a-low", "a-high"}, ids)
}

func TestRestoreRebuildsQueues(t *testing.T) {
	b := newTestBook(t)

	b.Restore(limit("s1", Sell, "100", 5))
	b.Restore(limit("s2", Sell, "100", 5))

	trades := b.SubmitLimit(limit("b1", Buy, "100", 5))
	require.Len(t, trades, 1)
	assert.Equal(t, "s1", trades[0].SellerOrderID)
}
