package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"venue/domain/orderbook"
	"venue/infra/memory"
)

// Manager holds one order book per instrument for a fixed, pre-configured
// set. Books share nothing; instruments cannot interfere with each other.
// Unknown instruments fail closed.
type Manager struct {
	books map[string]*orderbook.OrderBook
}

func NewManager(instruments []string, pool *memory.Pool[orderbook.Order]) *Manager {
	books := make(map[string]*orderbook.OrderBook, len(instruments))
	for _, instr := range instruments {
		books[instr] = orderbook.NewOrderBook(instr, pool)
	}
	return &Manager{books: books}
}

func (m *Manager) Book(instrument string) (*orderbook.OrderBook, bool) {
	b, ok := m.books[instrument]
	return b, ok
}

// Route dispatches the order to its instrument's book by order type.
func (m *Manager) Route(o *orderbook.Order) ([]orderbook.Trade, error) {
	b, ok := m.books[o.Instrument]
	if !ok {
		return nil, ErrUnsupportedInstrument
	}
	if o.Type == orderbook.Market {
		return b.SubmitMarket(o), nil
	}
	return b.SubmitLimit(o), nil
}

// Cancel removes a resting order from the named instrument's book.
func (m *Manager) Cancel(instrument, orderID string) (*orderbook.Order, bool, error) {
	b, ok := m.books[instrument]
	if !ok {
		return nil, false, ErrUnsupportedInstrument
	}
	o, ok := b.Cancel(orderID)
	return o, ok, nil
}

// FindInstrument locates the book currently resting the given order id.
// Books are scanned in sorted instrument order so the lookup is
// reproducible under replay.
func (m *Manager) FindInstrument(orderID string) (string, bool) {
	for _, instr := range m.Instruments() {
		if m.books[instr].Has(orderID) {
			return instr, true
		}
	}
	return "", false
}

// Instruments returns the supported set, sorted.
func (m *Manager) Instruments() []string {
	out := make([]string, 0, len(m.books))
	for instr := range m.books {
		out = append(out, instr)
	}
	sort.Strings(out)
	return out
}

// MarketData is the read-only top-of-book view served to the transport
// layer.
type MarketData struct {
	Instrument string
	BestBid    decimal.Decimal
	HasBid     bool
	BestAsk    decimal.Decimal
	HasAsk     bool
	Spread     decimal.Decimal
	HasSpread  bool
	LastTrade  decimal.Decimal
	HasLast    bool
}

func (m *Manager) MarketData(instrument string) (MarketData, error) {
	b, ok := m.books[instrument]
	if !ok {
		return MarketData{}, ErrUnsupportedInstrument
	}
	md := MarketData{Instrument: instrument}
	md.BestBid, md.HasBid = b.BestBid()
	md.BestAsk, md.HasAsk = b.BestAsk()
	md.Spread, md.HasSpread = b.Spread()
	md.LastTrade, md.HasLast = b.LastTrade()
	return md, nil
}
