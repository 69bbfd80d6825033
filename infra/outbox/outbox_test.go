package outbox

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestPutScanAndLifecycle(t *testing.T) {
	o := openTest(t)
	err := o.PutBatch([]Entry{
		{Seq: 2, Index: 0, Key: "pool-a", Payload: []byte(`{"n":1}`)},
		{Seq: 2, Index: 1, Key: "pool-a", Payload: []byte(`{"n":2}`)},
		{Seq: 10, Index: 0, Key: "pool-b", Payload: []byte(`{"n":3}`), State: StateAcked},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []Entry
	if err := o.ScanByState(StateNew, 0, func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("every stored entry starts NEW, got %d", len(got))
	}
	if got[0].Seq != 2 || got[1].Index != 1 || got[2].Seq != 10 {
		t.Fatalf("scan out of order: %+v", got)
	}
	if string(got[1].Payload) != `{"n":2}` || got[2].Key != "pool-b" {
		t.Fatalf("payload or key lost: %+v", got)
	}

	if err := o.MarkSent(got[0]); err != nil {
		t.Fatal(err)
	}
	if err := o.MarkRetry(got[0]); err != nil {
		t.Fatal(err)
	}
	e, err := o.Get(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.State != StateNew || e.Retries != 1 || e.LastAttempt == 0 {
		t.Fatalf("retry not recorded: %+v", e)
	}

	if err := o.MarkAcked(got[1]); err != nil {
		t.Fatal(err)
	}
	if err := o.MarkFailed(got[2]); err != nil {
		t.Fatal(err)
	}
	counts, err := o.Count()
	if err != nil {
		t.Fatal(err)
	}
	if counts[StateNew] != 1 || counts[StateAcked] != 1 || counts[StateFailed] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestScanLimit(t *testing.T) {
	o := openTest(t)
	var batch []Entry
	for i := uint64(1); i <= 5; i++ {
		batch = append(batch, Entry{Seq: i, Payload: []byte("x")})
	}
	if err := o.PutBatch(batch); err != nil {
		t.Fatal(err)
	}
	n := 0
	_ = o.ScanByState(StateNew, 2, func(Entry) error { n++; return nil })
	if n != 2 {
		t.Fatalf("expected 2 entries under limit, got %d", n)
	}
}

func TestDeleteAckedKeepsNewest(t *testing.T) {
	o := openTest(t)
	if err := o.PutBatch([]Entry{{Seq: 1}, {Seq: 2}, {Seq: 3}}); err != nil {
		t.Fatal(err)
	}
	for s := uint64(1); s <= 3; s++ {
		if err := o.Mark(s, 0, StateAcked, 0); err != nil {
			t.Fatal(err)
		}
	}
	n, err := o.DeleteAcked()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if _, err := o.Get(1, 0); !errors.Is(err, pebble.ErrNotFound) {
		t.Fatalf("seq 1 should be gone, got %v", err)
	}
	last, err := o.LastSeq()
	if err != nil || last != 3 {
		t.Fatalf("last seq must survive cleanup: %d %v", last, err)
	}
}

func TestLastSeqEmpty(t *testing.T) {
	o := openTest(t)
	last, err := o.LastSeq()
	if err != nil || last != 0 {
		t.Fatalf("empty outbox: %d %v", last, err)
	}
}
