package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"venue/domain/orderbook"
	"venue/domain/risk"
	"venue/infra/memory"
	"venue/infra/outbox"
	"venue/infra/sequence"
	"venue/infra/wal"
)

// TickPublisher receives best-effort market-data ticks after each processed
// command.
type TickPublisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Core is the only write entry point into the venue. Per command it runs
// RECEIVED -> RISK_CHECKED -> {ROUTED -> LOGGED} | REJECTED_LOGGED: validate,
// risk-check, match, update the ledger, and append the outcome durably to
// the event log before acknowledging or admitting the next command.
//
// The admission mutex linearizes the whole pipeline; it is what makes live
// execution and sequential replay observe identical state.
type Core struct {
	mu sync.Mutex

	log     *zap.Logger
	manager *Manager
	risk    *risk.Engine
	seq     *sequence.Sequencer
	pool    *memory.Pool[orderbook.Order]
	wal     *wal.WAL

	outbox *outbox.Outbox // optional: durable trade staging for the broadcaster
	ticks  TickPublisher  // optional: best-effort market-data ticks

	// cached acknowledgments by command id, for duplicate delivery and
	// replay-safe idempotency
	acks map[string]ack
}

func NewCore(
	log *zap.Logger,
	manager *Manager,
	riskEngine *risk.Engine,
	seq *sequence.Sequencer,
	pool *memory.Pool[orderbook.Order],
	w *wal.WAL,
	opts ...Option,
) *Core {
	c := &Core{
		log:     log,
		manager: manager,
		risk:    riskEngine,
		seq:     seq,
		pool:    pool,
		wal:     w,
		acks:    make(map[string]ack),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit processes one command to completion. Validation errors return
// before anything is logged; every other outcome is appended to the event
// log exactly once, durably, before this returns.
func (c *Core) Submit(cmd Command) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd.ID == "" {
		return Result{}, ErrMissingCommandID
	}

	// The idempotency lookup runs before validation: a resubmitted command
	// whose order already rests must come back as the cached no-op, not as
	// a duplicate-order-id rejection.
	if a, ok := c.acks[cmd.ID]; ok {
		return a.result(), nil
	}

	if err := c.validate(cmd); err != nil {
		return Result{}, err
	}

	res, entry := c.apply(cmd)

	data, err := json.Marshal(entry)
	if err != nil {
		return Result{}, err
	}
	if err := c.wal.Append(wal.NewRecord(recordType(cmd.Kind), res.Seq, data)); err != nil {
		// State is ahead of the log; the caller must treat this as fatal,
		// restart and recover.
		return Result{}, fmt.Errorf("wal append: %w", err)
	}

	c.stage(res)
	c.publishTick(cmd.Instrument, res.Seq)
	c.acks[cmd.ID] = ackOf(res)

	if res.Accepted {
		c.log.Debug("command processed",
			zap.String("command", cmd.ID),
			zap.Uint64("seq", res.Seq),
			zap.Int("trades", len(res.Trades)))
	} else {
		c.log.Info("command rejected",
			zap.String("command", cmd.ID),
			zap.Uint64("seq", res.Seq),
			zap.String("reason", res.Reason))
	}
	return res, nil
}

// Cancel is the convenience form: a cancel command for one resting order
// on one instrument.
func (c *Core) Cancel(commandID, instrument, orderID string) (bool, error) {
	res, err := c.Submit(Command{
		Kind:       CommandCancel,
		ID:         commandID,
		Instrument: instrument,
		OrderID:    orderID,
	})
	if err != nil {
		return false, err
	}
	return res.Canceled, nil
}

// MarketData serves top-of-book reads; they take no admission lock.
func (c *Core) MarketData(instrument string) (MarketData, error) {
	return c.manager.MarketData(instrument)
}

// Instruments returns the configured instrument set, sorted.
func (c *Core) Instruments() []string {
	return c.manager.Instruments()
}

func (c *Core) validate(cmd Command) error {
	switch cmd.Kind {
	case CommandNewOrder:
		if cmd.OrderID == "" {
			return ErrMissingOrderID
		}
		if cmd.AccountID == "" {
			return ErrMissingAccount
		}
		if _, ok := c.manager.Book(cmd.Instrument); !ok {
			return ErrUnsupportedInstrument
		}
		if cmd.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if cmd.Type == orderbook.Limit && cmd.Price.Sign() <= 0 {
			return ErrMissingPrice
		}
		// Resting order ids are unique across every book, so an
		// instrument-less cancel always resolves to exactly one order.
		if _, resting := c.manager.FindInstrument(cmd.OrderID); resting {
			return ErrDuplicateOrderID
		}
		return nil
	case CommandCancel:
		if cmd.OrderID == "" {
			return ErrMissingOrderID
		}
		if cmd.Instrument != "" {
			if _, ok := c.manager.Book(cmd.Instrument); !ok {
				return ErrUnsupportedInstrument
			}
		}
		return nil
	default:
		return ErrUnknownCommand
	}
}

// apply is the deterministic reducer shared by live traffic and replay. It
// assigns the admission sequence, runs risk and matching, and updates the
// ledger. It never touches the log, the outbox or Kafka.
func (c *Core) apply(cmd Command) (Result, logEntry) {
	seq := c.seq.Next()
	if cmd.Kind == CommandCancel {
		return c.applyCancel(cmd, seq)
	}
	return c.applyNewOrder(cmd, seq)
}

func (c *Core) applyNewOrder(cmd Command, seq uint64) (Result, logEntry) {
	book, ok := c.manager.Book(cmd.Instrument)
	if !ok {
		// Reachable only on replay against a configuration that dropped
		// the instrument; the recorded outcome cannot match and recovery
		// halts on the divergence.
		res := Result{Seq: seq, Reason: ErrUnsupportedInstrument.Error(), Status: orderbook.Rejected}
		return res, logEntry{Command: cmd, Reason: res.Reason, Status: orderbook.Rejected}
	}

	o := c.pool.Get()
	*o = orderbook.Order{
		ID:         cmd.OrderID,
		AccountID:  cmd.AccountID,
		Instrument: cmd.Instrument,
		Side:       cmd.Side,
		Type:       cmd.Type,
		Price:      cmd.Price,
		Quantity:   cmd.Quantity,
		SeqID:      seq,
		Status:     orderbook.New,
	}

	if err := c.risk.Check(o, c.marketView(o, book)); err != nil {
		o.Reset()
		c.pool.Put(o)
		res := Result{Seq: seq, Reason: err.Error(), Status: orderbook.Rejected}
		return res, logEntry{Command: cmd, Reason: res.Reason, Status: orderbook.Rejected}
	}

	trades, err := c.manager.Route(o)
	if err != nil {
		o.Reset()
		c.pool.Put(o)
		res := Result{Seq: seq, Reason: err.Error(), Status: orderbook.Rejected}
		return res, logEntry{Command: cmd, Reason: res.Reason, Status: orderbook.Rejected}
	}

	// The resting party of every trade is the opposite side of the incomer.
	restingIsBuyer := cmd.Side == orderbook.Sell
	for _, t := range trades {
		c.risk.Ledger().ApplyTrade(t, restingIsBuyer)
	}

	res := Result{
		Seq:      seq,
		Accepted: true,
		Trades:   trades,
		Status:   o.Status,
		Filled:   o.Filled,
	}

	if o.Type == orderbook.Limit && o.Remaining() > 0 {
		// Rested: the unfilled remainder now counts against the account's
		// open resting quantity.
		c.risk.Ledger().Reserve(o.AccountID, o.Instrument, o.Side, o.Remaining())
	} else {
		if o.Status == orderbook.Rejected {
			res.Reason = ReasonNoLiquidity
		}
		o.Reset()
		c.pool.Put(o)
	}

	return res, logEntry{
		Command:    cmd,
		Accepted:   true,
		Reason:     res.Reason,
		TradeCount: len(trades),
		Status:     res.Status,
	}
}

func (c *Core) applyCancel(cmd Command, seq uint64) (Result, logEntry) {
	instrument := cmd.Instrument
	if instrument == "" {
		instrument, _ = c.manager.FindInstrument(cmd.OrderID)
	}

	var canceled bool
	if instrument != "" {
		if o, ok, err := c.manager.Cancel(instrument, cmd.OrderID); err == nil && ok {
			c.risk.Ledger().Release(o.AccountID, instrument, o.Side, o.Remaining())
			canceled = true
		}
	}

	res := Result{Seq: seq, Accepted: true, Canceled: canceled}
	return res, logEntry{Command: cmd, Accepted: true, Canceled: canceled}
}

var two = decimal.NewFromInt(2)

// marketView derives the risk engine's inputs from the target book:
// reference price for notional checks and the spread-to-midpoint ratio.
func (c *Core) marketView(o *orderbook.Order, book *orderbook.OrderBook) risk.MarketView {
	var v risk.MarketView

	if o.Type == orderbook.Limit {
		v.Ref, v.HasRef = o.Price, true
	} else {
		if o.Side == orderbook.Buy {
			v.Ref, v.HasRef = book.BestAsk()
		} else {
			v.Ref, v.HasRef = book.BestBid()
		}
		if !v.HasRef {
			v.Ref, v.HasRef = book.LastTrade()
		}
	}

	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if hasBid && hasAsk {
		mid := bid.Add(ask).Div(two)
		if !mid.IsZero() {
			v.SpreadRatio = ask.Sub(bid).Div(mid)
			v.HasSpreadRatio = true
		}
	}
	return v
}

// stage writes every produced trade to the durable outbox; the broadcaster
// drains it to the feed topic at-least-once.
func (c *Core) stage(res Result) {
	if c.outbox == nil {
		return
	}
	for i, t := range res.Trades {
		payload, err := json.Marshal(t)
		if err != nil {
			c.log.Error("trade marshal failed", zap.Error(err), zap.String("trade", t.ID))
			continue
		}
		if err := c.outbox.Put(t.Seq, i, payload); err != nil {
			c.log.Error("outbox put failed", zap.Error(err), zap.String("trade", t.ID))
		}
	}
}

// Tick is the market-data message published after each processed command.
type Tick struct {
	Instrument string  `json:"instrument"`
	Seq        uint64  `json:"seq"`
	BestBid    *string `json:"best_bid"`
	BestAsk    *string `json:"best_ask"`
	Spread     *string `json:"spread"`
	LastTrade  *string `json:"last_trade"`
}

func (c *Core) publishTick(instrument string, seq uint64) {
	if c.ticks == nil || instrument == "" {
		return
	}
	md, err := c.manager.MarketData(instrument)
	if err != nil {
		return
	}
	tick := Tick{
		Instrument: instrument,
		Seq:        seq,
		BestBid:    decString(md.BestBid, md.HasBid),
		BestAsk:    decString(md.BestAsk, md.HasAsk),
		Spread:     decString(md.Spread, md.HasSpread),
		LastTrade:  decString(md.LastTrade, md.HasLast),
	}
	data, err := json.Marshal(tick)
	if err != nil {
		return
	}
	if err := c.ticks.Send(context.Background(), []byte(instrument), data); err != nil {
		c.log.Warn("tick publish failed", zap.Error(err), zap.String("instrument", instrument))
	}
}

func decString(d decimal.Decimal, ok bool) *string {
	if !ok {
		return nil
	}
	s := d.String()
	return &s
}

func recordType(kind CommandKind) wal.RecordType {
	if kind == CommandCancel {
		return wal.RecordCancel
	}
	return wal.RecordNewOrder
}
