package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: true})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Append(NewRecord(RecordNewOrder, uint64(i), []byte(fmt.Sprintf("payload-%d", i)))))
	}
	require.NoError(t, w.Close())

	var got []uint64
	last, err := Replay(dir, 0, func(r *Record) error {
		got = append(got, r.Seq)
		assert.Equal(t, fmt.Sprintf("payload-%d", r.Seq), string(r.Data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, got)
}

func TestReplaySkipsThroughFromSeq(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: false})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Append(NewRecord(RecordNewOrder, uint64(i), []byte("x"))))
	}
	require.NoError(t, w.Close())

	var got []uint64
	last, err := Replay(dir, 3, func(r *Record) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
	assert.Equal(t, []uint64{4, 5}, got)
}

func TestReplayEmptyDir(t *testing.T) {
	last, err := Replay(t.TempDir(), 7, func(r *Record) error {
		t.Fatal("no records expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), last)
}

func TestRotationSpansSegments(t *testing.T) {
	dir := t.TempDir()

	// Tiny segment size forces a rotation per record.
	w, err := Open(Config{Dir: dir, SegmentSize: 8, Sync: false})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		require.NoError(t, w.Append(NewRecord(RecordNewOrder, uint64(i), []byte("data"))))
	}
	require.NoError(t, w.Close())

	files, err := segmentFiles(dir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)

	var got []uint64
	_, err = Replay(dir, 0, func(r *Record) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, got)
}

func TestReopenResumesLastSegment(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: false})
	require.NoError(t, err)
	require.NoError(t, w.Append(NewRecord(RecordNewOrder, 1, []byte("one"))))
	require.NoError(t, w.Close())

	w2, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: false})
	require.NoError(t, err)
	require.NoError(t, w2.Append(NewRecord(RecordNewOrder, 2, []byte("two"))))
	require.NoError(t, w2.Close())

	var got []uint64
	_, err = Replay(dir, 0, func(r *Record) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestCorruptRecordFailsReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: true})
	require.NoError(t, err)
	require.NoError(t, w.Append(NewRecord(RecordNewOrder, 1, []byte("payload"))))
	require.NoError(t, w.Close())

	files, err := segmentFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// Flip a payload byte; the CRC no longer matches.
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	data[22] ^= 0xff
	require.NoError(t, os.WriteFile(files[0], data, 0o644))

	_, err = Replay(dir, 0, func(r *Record) error { return nil })
	assert.ErrorContains(t, err, "crc mismatch")
}

func TestTornTailIsIgnored(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: true})
	require.NoError(t, err)
	require.NoError(t, w.Append(NewRecord(RecordNewOrder, 1, []byte("payload"))))
	require.NoError(t, w.Close())

	files, err := segmentFiles(dir)
	require.NoError(t, err)

	// Simulate a crash mid-write: a partial header at the tail.
	f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []uint64
	last, err := Replay(dir, 0, func(r *Record) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
	assert.Equal(t, []uint64{1}, got)
}

func TestTruncateBeforeRemovesCoveredSegments(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 8, Sync: false})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		require.NoError(t, w.Append(NewRecord(RecordNewOrder, uint64(i), []byte("data"))))
	}

	require.NoError(t, w.TruncateBefore(2))

	var got []uint64
	_, err = Replay(dir, 0, func(r *Record) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, got)

	require.NoError(t, w.Close())
}

func TestTruncateNeverRemovesLiveSegment(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20, Sync: false})
	require.NoError(t, err)
	require.NoError(t, w.Append(NewRecord(RecordNewOrder, 1, []byte("data"))))

	require.NoError(t, w.TruncateBefore(1))

	files, err := segmentFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "segment-000000.wal", filepath.Base(files[0]))

	require.NoError(t, w.Close())
}
