package sequence

import "sync/atomic"

// Sequencer hands out admission sequence numbers: strictly monotonic,
// assigned at log append, shared by every instrument. Recovery's total
// order and intra-level FIFO priority both come from these values, never
// from wall clocks.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer that will issue start+1 next.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next admission sequence.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset jumps the sequencer forward after snapshot load and log replay.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
