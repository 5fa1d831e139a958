package risk

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"venue/domain/orderbook"
)

// instrumentState is per (account, instrument) risk state. Position is the
// signed net quantity; Exposure is |position| marked at the last execution
// price. OpenBuy/OpenSell are unfilled resting quantities, counted against
// the position cap so an account cannot stack unbounded resting risk.
type instrumentState struct {
	Position int64
	Exposure decimal.Decimal
	OpenBuy  int64
	OpenSell int64
}

type accountState struct {
	mu          sync.Mutex
	instruments map[string]*instrumentState
	portfolio   decimal.Decimal // sum of instrument exposures
}

func (a *accountState) state(instrument string) *instrumentState {
	s, ok := a.instruments[instrument]
	if !ok {
		s = &instrumentState{Exposure: decimal.Zero}
		a.instruments[instrument] = s
	}
	return s
}

// Ledger holds all per-account position/exposure state. Every mutation for
// one account funnels through that account's mutex; state is never rolled
// back once a trade applied it.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*accountState)}
}

func (l *Ledger) account(id string) *accountState {
	l.mu.RLock()
	a, ok := l.accounts[id]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[id]; ok {
		return a
	}
	a = &accountState{
		instruments: make(map[string]*instrumentState),
		portfolio:   decimal.Zero,
	}
	l.accounts[id] = a
	return a
}

// Reserve records resting (unfilled) quantity for an account after a limit
// order is booked.
func (l *Ledger) Reserve(accountID, instrument string, side orderbook.Side, qty int64) {
	a := l.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.state(instrument)
	if side == orderbook.Buy {
		s.OpenBuy += qty
	} else {
		s.OpenSell += qty
	}
}

// Release gives back resting quantity when an order is canceled.
func (l *Ledger) Release(accountID, instrument string, side orderbook.Side, qty int64) {
	l.Reserve(accountID, instrument, side, -qty)
}

// ApplyTrade moves both counterparties' positions and re-marks exposure at
// the execution price. The resting side's open quantity shrinks by the
// executed amount. Called only after the book reported the trade; never
// undone.
func (l *Ledger) ApplyTrade(t orderbook.Trade, restingIsBuyer bool) {
	buyer := l.account(t.BuyerAccount)
	seller := l.account(t.SellerAccount)

	lockOrdered(t.BuyerAccount, buyer, t.SellerAccount, seller)
	defer unlockOrdered(buyer, seller)

	bs := buyer.state(t.Instrument)
	bs.Position += t.Quantity
	if restingIsBuyer {
		// Clamp at zero: a negative open quantity would loosen the
		// position cap instead of tightening it.
		bs.OpenBuy -= t.Quantity
		if bs.OpenBuy < 0 {
			bs.OpenBuy = 0
		}
	}
	remark(buyer, bs, t.Price)

	ss := seller.state(t.Instrument)
	ss.Position -= t.Quantity
	if !restingIsBuyer {
		ss.OpenSell -= t.Quantity
		if ss.OpenSell < 0 {
			ss.OpenSell = 0
		}
	}
	remark(seller, ss, t.Price)
}

// remark recomputes instrument exposure as |position| x price and folds the
// delta into the portfolio total. Caller holds the account lock.
func remark(a *accountState, s *instrumentState, price decimal.Decimal) {
	old := s.Exposure
	s.Exposure = decimal.NewFromInt(abs(s.Position)).Mul(price)
	a.portfolio = a.portfolio.Sub(old).Add(s.Exposure)
}

func lockOrdered(idA string, a *accountState, idB string, b *accountState) {
	if a == b {
		a.mu.Lock()
		return
	}
	if idA < idB {
		a.mu.Lock()
		b.mu.Lock()
	} else {
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockOrdered(a, b *accountState) {
	a.mu.Unlock()
	if a != b {
		b.mu.Unlock()
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// InstrumentSnapshot is the serializable per-instrument risk state.
type InstrumentSnapshot struct {
	Instrument string
	Position   int64
	Exposure   decimal.Decimal
	OpenBuy    int64
	OpenSell   int64
}

// AccountSnapshot is the serializable risk state of one account.
type AccountSnapshot struct {
	Account     string
	Instruments []InstrumentSnapshot
}

// Export returns the full ledger state in deterministic order.
func (l *Ledger) Export() []AccountSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AccountSnapshot, 0, len(l.accounts))
	for id, a := range l.accounts {
		a.mu.Lock()
		snap := AccountSnapshot{Account: id}
		for instr, s := range a.instruments {
			snap.Instruments = append(snap.Instruments, InstrumentSnapshot{
				Instrument: instr,
				Position:   s.Position,
				Exposure:   s.Exposure,
				OpenBuy:    s.OpenBuy,
				OpenSell:   s.OpenSell,
			})
		}
		a.mu.Unlock()
		sort.Slice(snap.Instruments, func(i, j int) bool {
			return snap.Instruments[i].Instrument < snap.Instruments[j].Instrument
		})
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// Import replaces the ledger state from a snapshot.
func (l *Ledger) Import(snaps []AccountSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[string]*accountState, len(snaps))
	for _, snap := range snaps {
		a := &accountState{
			instruments: make(map[string]*instrumentState, len(snap.Instruments)),
			portfolio:   decimal.Zero,
		}
		for _, s := range snap.Instruments {
			a.instruments[s.Instrument] = &instrumentState{
				Position: s.Position,
				Exposure: s.Exposure,
				OpenBuy:  s.OpenBuy,
				OpenSell: s.OpenSell,
			}
			a.portfolio = a.portfolio.Add(s.Exposure)
		}
		l.accounts[snap.Account] = a
	}
}

// Position returns the signed net position for one (account, instrument).
func (l *Ledger) Position(accountID, instrument string) int64 {
	l.mu.RLock()
	a, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.instruments[instrument]
	if !ok {
		return 0
	}
	return s.Position
}

// PortfolioExposure returns the account's aggregate notional exposure.
func (l *Ledger) PortfolioExposure(accountID string) decimal.Decimal {
	l.mu.RLock()
	a, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.portfolio
}
