package engine

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"venue/domain/orderbook"
	"venue/infra/wal"
	"venue/snapshot"
)

// Recover rebuilds venue state after a restart: load the newest snapshot
// if one exists, then fold the event log from the snapshot's sequence
// forward through the same reducer live traffic uses. Each replayed record
// carries the outcome observed live; any divergence means the log and the
// code disagree on history, which is fatal.
func (c *Core) Recover(snapDir, walDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var base uint64
	snap, ok, err := snapshot.LoadLatest(snapDir)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		if err := c.restore(snap); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		base = snap.Seq
	}
	c.seq.Reset(base)

	replayed := 0
	last, err := wal.Replay(walDir, base, func(rec *wal.Record) error {
		var e logEntry
		if err := json.Unmarshal(rec.Data, &e); err != nil {
			return fmt.Errorf("decode record %d: %w", rec.Seq, err)
		}

		res, out := c.apply(e.Command)
		if res.Seq != rec.Seq {
			return fmt.Errorf("%w: record %d replayed with seq %d",
				ErrRecoveryInconsistent, rec.Seq, res.Seq)
		}
		if out.Accepted != e.Accepted ||
			out.Reason != e.Reason ||
			out.TradeCount != e.TradeCount ||
			out.Status != e.Status ||
			out.Canceled != e.Canceled {
			return fmt.Errorf("%w: record %d outcome diverged", ErrRecoveryInconsistent, rec.Seq)
		}

		c.acks[e.Command.ID] = ackOf(res)
		replayed++
		return nil
	})
	if err != nil {
		return err
	}
	if last > base {
		c.seq.Reset(last)
	}

	c.log.Info("recovery complete",
		zap.Uint64("snapshot_seq", base),
		zap.Int("replayed", replayed),
		zap.Uint64("last_seq", c.seq.Current()))
	return nil
}

func (c *Core) restore(s *snapshot.Snapshot) error {
	for _, bs := range s.Books {
		book, ok := c.manager.Book(bs.Instrument)
		if !ok {
			return fmt.Errorf("snapshot instrument %q not configured", bs.Instrument)
		}
		if bs.HasLast {
			book.SetLastTrade(bs.LastTrade)
		}
		for _, e := range bs.Orders {
			o := c.pool.Get()
			*o = orderbook.Order{
				ID:         e.ID,
				AccountID:  e.AccountID,
				Instrument: bs.Instrument,
				Side:       e.Side,
				Type:       e.Type,
				Price:      e.Price,
				Quantity:   e.Quantity,
				Filled:     e.Filled,
				SeqID:      e.SeqID,
				Status:     e.Status,
			}
			book.Restore(o)
		}
	}

	c.risk.Ledger().Import(s.Accounts)

	c.acks = make(map[string]ack, len(s.Acks))
	for _, a := range s.Acks {
		c.acks[a.CommandID] = ack{
			Seq:      a.Seq,
			Accepted: a.Accepted,
			Reason:   a.Reason,
			Canceled: a.Canceled,
			Status:   a.Status,
			Filled:   a.Filled,
		}
	}
	return nil
}
