package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// State tracks one trade event's journey to the feed topic.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Record is a durable outbox entry: one trade event keyed by the admission
// sequence of the command that produced it plus the match index within it.
type Record struct {
	Seq         uint64
	Index       int
	State       State
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][lastAttempt:8][payload]
func encodeValue(r *Record) []byte {
	buf := make([]byte, 1+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint64(buf[1:9], uint64(r.LastAttempt))
	copy(buf[9:], r.Payload)
	return buf
}

func decodeValue(b []byte) (State, int64, []byte, error) {
	if len(b) < 9 {
		return 0, 0, nil, errors.New("outbox: short record")
	}
	payload := make([]byte, len(b)-9)
	copy(payload, b[9:])
	return State(b[0]), int64(binary.BigEndian.Uint64(b[1:9])), payload, nil
}

// Outbox is the pebble-backed staging store between the matching core and
// the Kafka broadcaster. Every produced trade lands here in the same
// synchronous step that logs its command; the broadcaster drains it
// at-least-once.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stages a new trade event durably.
func (o *Outbox) Put(seq uint64, idx int, payload []byte) error {
	rec := &Record{Seq: seq, Index: idx, State: StateNew, Payload: payload}
	return o.db.Set(keyFor(seq, idx), encodeValue(rec), pebble.Sync)
}

// MarkSent flags an entry as handed to the producer.
func (o *Outbox) MarkSent(seq uint64, idx int) error {
	return o.setState(seq, idx, StateSent)
}

// MarkAcked flags an entry as acknowledged by the broker.
func (o *Outbox) MarkAcked(seq uint64, idx int) error {
	return o.setState(seq, idx, StateAcked)
}

func (o *Outbox) setState(seq uint64, idx int, state State) error {
	key := keyFor(seq, idx)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	_, _, payload, err := decodeValue(val)
	_ = closer.Close()
	if err != nil {
		return err
	}
	rec := &Record{
		Seq:         seq,
		Index:       idx,
		State:       state,
		LastAttempt: time.Now().UnixNano(),
		Payload:     payload,
	}
	return o.db.Set(key, encodeValue(rec), pebble.Sync)
}

// ScanPending visits every entry not yet acked, in key order.
func (o *Outbox) ScanPending(fn func(rec *Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		state, attempt, payload, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		if state == StateAcked {
			continue
		}

		seq, idx, err := parseKey(iter.Key())
		if err != nil {
			return err
		}

		rec := &Record{Seq: seq, Index: idx, State: state, LastAttempt: attempt, Payload: payload}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAckedUpTo deletes acked entries with seq at or below the snapshot
// sequence.
func (o *Outbox) TruncateAckedUpTo(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		state, _, _, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		recSeq, _, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if state == StateAcked && recSeq <= seq {
			key := append([]byte(nil), iter.Key()...)
			if err := o.db.Delete(key, pebble.NoSync); err != nil {
				return err
			}
		}
	}
	return iter.Error()
}

func keyFor(seq uint64, idx int) []byte {
	return []byte(fmt.Sprintf("trade/%020d-%06d", seq, idx))
}

func parseKey(b []byte) (uint64, int, error) {
	var seq uint64
	var idx int
	_, err := fmt.Sscanf(string(b), "trade/%d-%d", &seq, &idx)
	return seq, idx, err
}
