package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue/domain/orderbook"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLimits() Limits {
	return Limits{
		MaxPosition:           100,
		MaxInstrumentNotional: dec("100000"),
		MaxPortfolioNotional:  dec("150000"),
		MaxSpreadRatio:        dec("0.05"),
	}
}

func limitOrder(account string, side orderbook.Side, price string, qty int64) *orderbook.Order {
	return &orderbook.Order{
		ID:         "o1",
		AccountID:  account,
		Instrument: "BTC-USD",
		Side:       side,
		Type:       orderbook.Limit,
		Price:      dec(price),
		Quantity:   qty,
	}
}

func refView(price string) MarketView {
	return MarketView{Ref: dec(price), HasRef: true}
}

func TestCheckAcceptsWithinLimits(t *testing.T) {
	e := NewEngine(testLimits(), NewLedger())

	err := e.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100"))
	assert.NoError(t, err)
}

func TestPositionCapRejectsOversizeOrder(t *testing.T) {
	e := NewEngine(testLimits(), NewLedger())

	err := e.Check(limitOrder("a1", orderbook.Buy, "100", 101), refView("100"))
	assert.ErrorIs(t, err, ErrPositionLimit)
}

func TestPositionCapCountsExistingPosition(t *testing.T) {
	l := NewLedger()
	e := NewEngine(testLimits(), l)

	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "a1", SellerAccount: "a2",
		Price: dec("100"), Quantity: 60,
	}, false)

	err := e.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100"))
	assert.ErrorIs(t, err, ErrPositionLimit)

	// The seller went short 60; another 50 sell breaches on the short side.
	err = e.Check(limitOrder("a2", orderbook.Sell, "100", 50), refView("100"))
	assert.ErrorIs(t, err, ErrPositionLimit)
}

func TestPositionCapCountsOpenRestingQuantity(t *testing.T) {
	l := NewLedger()
	e := NewEngine(testLimits(), l)

	l.Reserve("a1", "BTC-USD", orderbook.Buy, 60)

	err := e.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100"))
	assert.ErrorIs(t, err, ErrPositionLimit)

	// Opposite side resting quantity does not count against a buy.
	l2 := NewLedger()
	e2 := NewEngine(testLimits(), l2)
	l2.Reserve("a1", "BTC-USD", orderbook.Sell, 60)
	err = e2.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100"))
	assert.NoError(t, err)
}

func TestApplyTradeWithoutReserveKeepsOpenNonNegative(t *testing.T) {
	l := NewLedger()
	e := NewEngine(testLimits(), l)

	// No Reserve preceded this trade; open quantities must clamp at zero
	// rather than go negative and loosen the position cap.
	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "a1", SellerAccount: "a2",
		Price: dec("100"), Quantity: 60,
	}, false)

	snaps := l.Export()
	for _, snap := range snaps {
		for _, s := range snap.Instruments {
			assert.GreaterOrEqual(t, s.OpenBuy, int64(0))
			assert.GreaterOrEqual(t, s.OpenSell, int64(0))
		}
	}

	// With OpenSell clamped, the short side still breaches the cap.
	err := e.Check(limitOrder("a2", orderbook.Sell, "100", 50), refView("100"))
	assert.ErrorIs(t, err, ErrPositionLimit)
}

func TestReserveThenTradeDrainsOpenQuantity(t *testing.T) {
	l := NewLedger()

	l.Reserve("a2", "BTC-USD", orderbook.Sell, 60)
	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "a1", SellerAccount: "a2",
		Price: dec("100"), Quantity: 60,
	}, false)

	snaps := l.Export()
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		if snap.Account != "a2" {
			continue
		}
		require.Len(t, snap.Instruments, 1)
		assert.Equal(t, int64(0), snap.Instruments[0].OpenSell)
	}
}

func TestReleaseRestoresHeadroom(t *testing.T) {
	l := NewLedger()
	e := NewEngine(testLimits(), l)

	l.Reserve("a1", "BTC-USD", orderbook.Buy, 60)
	require.ErrorIs(t, e.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100")), ErrPositionLimit)

	l.Release("a1", "BTC-USD", orderbook.Buy, 60)
	assert.NoError(t, e.Check(limitOrder("a1", orderbook.Buy, "100", 50), refView("100")))
}

func TestInstrumentNotionalCap(t *testing.T) {
	e := NewEngine(testLimits(), NewLedger())

	// 50 * 2500 = 125000 > 100000
	err := e.Check(limitOrder("a1", orderbook.Buy, "2500", 50), refView("2500"))
	assert.ErrorIs(t, err, ErrInstrumentNotional)
}

func TestPortfolioNotionalCap(t *testing.T) {
	l := NewLedger()
	e := NewEngine(testLimits(), l)

	// Exposure of 90000 on another instrument.
	l.ApplyTrade(orderbook.Trade{
		Instrument:   "ETH-USD",
		BuyerAccount: "a1", SellerAccount: "a2",
		Price: dec("900"), Quantity: 100,
	}, false)

	// 90000 existing + 95000 new = 185000 > 150000, while the instrument
	// cap alone (95000 < 100000) would pass.
	o := limitOrder("a1", orderbook.Buy, "950", 100)
	err := e.Check(o, refView("950"))
	assert.ErrorIs(t, err, ErrPortfolioNotional)
}

func TestMarketOrderSpreadProtection(t *testing.T) {
	e := NewEngine(testLimits(), NewLedger())

	o := &orderbook.Order{
		AccountID:  "a1",
		Instrument: "BTC-USD",
		Side:       orderbook.Buy,
		Type:       orderbook.Market,
		Quantity:   1,
	}

	wide := MarketView{
		Ref: dec("100"), HasRef: true,
		SpreadRatio: dec("0.10"), HasSpreadRatio: true,
	}
	assert.ErrorIs(t, e.Check(o, wide), ErrSpreadProtection)

	tight := MarketView{
		Ref: dec("100"), HasRef: true,
		SpreadRatio: dec("0.01"), HasSpreadRatio: true,
	}
	assert.NoError(t, e.Check(o, tight))

	// Limit orders bypass spread protection entirely.
	lo := limitOrder("a1", orderbook.Buy, "100", 1)
	assert.NoError(t, e.Check(lo, wide))
}

func TestApplyTradeMovesBothPositions(t *testing.T) {
	l := NewLedger()

	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "buyer", SellerAccount: "seller",
		Price: dec("100"), Quantity: 10,
	}, false)

	assert.Equal(t, int64(10), l.Position("buyer", "BTC-USD"))
	assert.Equal(t, int64(-10), l.Position("seller", "BTC-USD"))
	assert.True(t, l.PortfolioExposure("buyer").Equal(dec("1000")))
	assert.True(t, l.PortfolioExposure("seller").Equal(dec("1000")))
}

func TestApplyTradeSelfMatchNets(t *testing.T) {
	l := NewLedger()

	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "a1", SellerAccount: "a1",
		Price: dec("100"), Quantity: 5,
	}, false)

	assert.Equal(t, int64(0), l.Position("a1", "BTC-USD"))
}

func TestExportImportRoundTrip(t *testing.T) {
	l := NewLedger()
	l.ApplyTrade(orderbook.Trade{
		Instrument:   "BTC-USD",
		BuyerAccount: "a1", SellerAccount: "a2",
		Price: dec("100"), Quantity: 10,
	}, false)
	l.Reserve("a1", "ETH-USD", orderbook.Buy, 7)

	snaps := l.Export()
	require.Len(t, snaps, 2)

	restored := NewLedger()
	restored.Import(snaps)

	assert.Equal(t, int64(10), restored.Position("a1", "BTC-USD"))
	assert.Equal(t, int64(-10), restored.Position("a2", "BTC-USD"))
	assert.True(t, restored.PortfolioExposure("a1").Equal(l.PortfolioExposure("a1")))
	assert.Equal(t, snaps, restored.Export())
}
