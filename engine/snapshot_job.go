package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"venue/domain/orderbook"
	"venue/snapshot"
)

// Snapshot serializes the full venue state under the admission lock, so
// the capture sits exactly between two commands.
func (c *Core) Snapshot() *snapshot.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &snapshot.Snapshot{
		Seq:     c.seq.Current(),
		Created: time.Now().UTC(),
	}

	for _, instrument := range c.manager.Instruments() {
		book, ok := c.manager.Book(instrument)
		if !ok {
			continue
		}
		bs := snapshot.BookState{Instrument: instrument}
		bs.LastTrade, bs.HasLast = book.LastTrade()
		book.WalkResting(func(o *orderbook.Order) {
			bs.Orders = append(bs.Orders, snapshot.OrderEntry{
				ID:        o.ID,
				AccountID: o.AccountID,
				Side:      o.Side,
				Type:      o.Type,
				Price:     o.Price,
				Quantity:  o.Quantity,
				Filled:    o.Filled,
				SeqID:     o.SeqID,
				Status:    o.Status,
			})
		})
		s.Books = append(s.Books, bs)
	}

	s.Accounts = c.risk.Ledger().Export()

	s.Acks = make([]snapshot.Ack, 0, len(c.acks))
	for id, a := range c.acks {
		s.Acks = append(s.Acks, snapshot.Ack{
			CommandID: id,
			Seq:       a.Seq,
			Accepted:  a.Accepted,
			Reason:    a.Reason,
			Canceled:  a.Canceled,
			Status:    a.Status,
			Filled:    a.Filled,
		})
	}
	sort.Slice(s.Acks, func(i, j int) bool { return s.Acks[i].CommandID < s.Acks[j].CommandID })

	return s
}

// pruneAcks drops cached acknowledgments at or below seq. The snapshot
// just written still carries them, so the in-memory idempotency window
// spans at least one snapshot interval and the cache stays bounded.
func (c *Core) pruneAcks(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, a := range c.acks {
		if a.Seq <= seq {
			delete(c.acks, id)
		}
	}
}

// RunSnapshotJob writes a snapshot every interval and trims the event log
// and outbox below the captured sequence. Blocks until ctx is done.
func (c *Core) RunSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: dir}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Snapshot()
			if err := w.Write(s); err != nil {
				c.log.Error("snapshot write failed", zap.Error(err))
				continue
			}
			if err := c.wal.TruncateBefore(s.Seq); err != nil {
				c.log.Warn("log truncation failed", zap.Error(err))
			}
			if c.outbox != nil {
				if err := c.outbox.TruncateAckedUpTo(s.Seq); err != nil {
					c.log.Warn("outbox truncation failed", zap.Error(err))
				}
			}
			c.pruneAcks(s.Seq)
			c.log.Info("snapshot written",
				zap.Uint64("seq", s.Seq),
				zap.Int("accounts", len(s.Accounts)))
		}
	}
}
