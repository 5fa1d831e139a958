package wal

import "time"

type RecordType uint8

const (
	RecordNewOrder RecordType = iota
	RecordCancel
)

// Record is one event log entry: an accepted (or risk-rejected) input
// command tagged with its admission sequence. Time is audit metadata only;
// nothing downstream orders by it.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
