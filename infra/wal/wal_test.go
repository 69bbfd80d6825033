package wal

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

const testType RecordType = 7

func openTest(t *testing.T, dir string, segSize int64) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: segSize, NoSync: true})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	return w
}

func appendN(t *testing.T, w *WAL, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		rec := &Record{Type: testType, Seq: uint64(i), Time: int64(1000 + i), Data: []byte(fmt.Sprintf("cmd-%d", i))}
		if err := w.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)
	appendN(t, w, 1, 100)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	count := 0
	last, err := Replay(dir, 0, func(r *Record) error {
		count++
		if r.Type != testType || string(r.Data) != fmt.Sprintf("cmd-%d", r.Seq) || r.Time != int64(1000+r.Seq) {
			t.Fatalf("record %d decoded wrong: %+v", r.Seq, r)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 100 || last != 100 {
		t.Fatalf("expected 100 records up to seq 100, got %d up to %d", count, last)
	}
}

func TestReplaySkipsUpToAfter(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)
	appendN(t, w, 1, 10)
	_ = w.Close()

	var seen []uint64
	last, err := Replay(dir, 7, func(r *Record) error {
		seen = append(seen, r.Seq)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != 10 || len(seen) != 3 || seen[0] != 8 {
		t.Fatalf("expected seqs 8..10 and last 10, got %v last %d", seen, last)
	}
}

func TestRotationAndResume(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 64)
	appendN(t, w, 1, 20)
	_ = w.Close()

	idx, _ := segments(dir)
	if len(idx) < 2 {
		t.Fatalf("expected rotation, found %d segments", len(idx))
	}

	w = openTest(t, dir, 64)
	if w.LastSeq() != 20 {
		t.Fatalf("expected resumed last seq 20, got %d", w.LastSeq())
	}
	if w.current.index != idx[len(idx)-1] {
		t.Fatalf("expected to resume segment %d, got %d", idx[len(idx)-1], w.current.index)
	}
	appendN(t, w, 21, 5)
	_ = w.Close()

	last, err := Replay(dir, 0, func(*Record) error { return nil })
	if err != nil || last != 25 {
		t.Fatalf("replay after resume: last=%d err=%v", last, err)
	}
}

func TestAppendRejectsStaleSequence(t *testing.T) {
	w := openTest(t, t.TempDir(), 0)
	defer w.Close()
	appendN(t, w, 1, 3)
	err := w.Append(&Record{Type: testType, Seq: 3})
	if !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("expected ErrNonMonotonic, got %v", err)
	}
}

func TestTornTailIsCutOnOpen(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)
	appendN(t, w, 1, 5)
	_ = w.Close()

	path := segmentPath(dir, 0)
	st, _ := os.Stat(path)
	if err := os.Truncate(path, st.Size()-3); err != nil {
		t.Fatal(err)
	}

	last, err := Replay(dir, 0, func(*Record) error { return nil })
	if err != nil || last != 4 {
		t.Fatalf("replay of torn log: last=%d err=%v", last, err)
	}

	w = openTest(t, dir, 0)
	if w.LastSeq() != 4 {
		t.Fatalf("expected last seq 4 after repair, got %d", w.LastSeq())
	}
	appendN(t, w, 5, 1)
	_ = w.Close()
	if last, err := Replay(dir, 0, func(*Record) error { return nil }); err != nil || last != 5 {
		t.Fatalf("replay after repair: last=%d err=%v", last, err)
	}
}

func TestCorruptionIsReported(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 0)
	appendN(t, w, 1, 3)
	_ = w.Close()

	path := segmentPath(dir, 0)
	b, _ := os.ReadFile(path)
	b[headerSize+1] ^= 0xff
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Replay(dir, 0, func(*Record) error { return nil })
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 64)
	defer w.Close()
	appendN(t, w, 1, 30)

	before, _ := segments(dir)
	removed, err := w.TruncateBefore(10)
	if err != nil {
		t.Fatal(err)
	}
	if removed == 0 {
		t.Fatal("expected some segments removed")
	}
	after, _ := segments(dir)
	if len(after) != len(before)-removed {
		t.Fatalf("segment count mismatch: %d -> %d removed %d", len(before), len(after), removed)
	}

	var first uint64
	if _, err := Replay(dir, 0, func(r *Record) error {
		if first == 0 {
			first = r.Seq
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if first == 0 || first > 11 {
		t.Fatalf("records above 10 must survive, first remaining is %d", first)
	}
}
