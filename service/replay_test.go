package service

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"

	"scalex/domain/currency"
	"scalex/domain/errs"
	"scalex/domain/ledger"
	"scalex/domain/orderbook"
	"scalex/infra/outbox"
	"scalex/infra/wal"
	"scalex/snapshot"
)

// scenario drives a little trading session and returns the pool and the
// id of an order left resting.
func scenario(h *harness) (currency.PoolID, uint64) {
	t := h.t
	id := h.pool()
	h.fund(alice, weth, eth(t, "3"))
	h.fund(bob, usdc, usd(t, "10000"))
	h.limit(id, alice, orderbook.Sell, "2000", "1")
	h.limit(id, alice, orderbook.Sell, "2010", "1")
	h.limit(id, bob, orderbook.Buy, "2005", "1.5")

	h.now += 60
	exp, err := h.ex.PlaceLimitOrder(id, orderbook.LimitOrder{
		Owner: bob, Side: orderbook.Buy, Price: usd(t, "1900"), Quantity: eth(t, "1"), Expiry: h.now + 100,
	})
	if err != nil {
		t.Fatalf("expiring order: %v", err)
	}
	resting := h.limit(id, bob, orderbook.Buy, "1950", "0.5")

	h.now += 500
	if _, err := h.ex.Cancel(id, bob, exp.Order.ID); err != nil {
		t.Fatalf("cancel expired: %v", err)
	}
	if _, err := h.ex.PlaceMarketOrder(id, orderbook.MarketOrder{Owner: alice, Side: orderbook.Sell, Amount: eth(t, "0.2")}); err != nil {
		t.Fatalf("market sell: %v", err)
	}
	if err := h.ex.Withdraw(alice, usdc, usd(t, "100")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	return id, resting.Order.ID
}

func expectSameState(t *testing.T, a, b *Exchange, pool currency.PoolID) {
	t.Helper()
	for _, user := range []common.Address{alice, bob, owner} {
		for _, cur := range []currency.Currency{weth, usdc} {
			if x, y := a.Balance(user, cur), b.Balance(user, cur); !x.Eq(y) {
				t.Errorf("free %s %s: %s vs %s", user.Hex(), cur, x.ToBig(), y.ToBig())
			}
			if x, y := a.LockedBalance(user, cur, pool), b.LockedBalance(user, cur, pool); !x.Eq(y) {
				t.Errorf("locked %s %s: %s vs %s", user.Hex(), cur, x.ToBig(), y.ToBig())
			}
		}
	}
	for _, cur := range []currency.Currency{weth, usdc} {
		x, y := a.Totals(cur), b.Totals(cur)
		if !x.Free.Eq(y.Free) || !x.Locked.Eq(y.Locked) || !x.Protocol.Eq(y.Protocol) ||
			!x.Deposited.Eq(y.Deposited) || !x.Withdrawn.Eq(y.Withdrawn) {
			t.Errorf("totals %s differ", cur)
		}
	}
	for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
		da, _ := a.Depth(pool, side, 10)
		db, _ := b.Depth(pool, side, 10)
		if len(da) != len(db) {
			t.Fatalf("%s depth: %d vs %d levels", side, len(da), len(db))
		}
		for i := range da {
			if da[i] != db[i] {
				t.Errorf("%s level %d: %+v vs %+v", side, i, da[i], db[i])
			}
		}
	}
	pa, _ := a.Pool(pool)
	pb, _ := b.Pool(pool)
	if pa.LastOrderID != pb.LastOrderID {
		t.Errorf("last order id %d vs %d", pa.LastOrderID, pb.LastOrderID)
	}
	if a.LastSeq() != b.LastSeq() {
		t.Errorf("last seq %d vs %d", a.LastSeq(), b.LastSeq())
	}
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	walDir := t.TempDir()
	h := newHarness(t, walDir, "")
	pool, resting := scenario(h)
	defer h.close()

	r := newHarness(t, t.TempDir(), "")
	defer r.close()
	st, err := r.ex.Recover("", walDir)
	if err != nil {
		t.Fatal(err)
	}
	if st.LastSeq != h.ex.LastSeq() || st.Replayed != int(h.ex.LastSeq()) {
		t.Fatalf("unexpected stats %+v (live seq %d)", st, h.ex.LastSeq())
	}
	expectSameState(t, h.ex, r.ex, pool)

	o, _, _ := r.ex.Order(pool, resting)
	if o.Status != orderbook.Open {
		t.Fatalf("resting order should survive replay, got %s", o.Status)
	}
}

func TestRecoverContinuesTheLog(t *testing.T) {
	walDir := t.TempDir()
	h := newHarness(t, walDir, "")
	pool, _ := scenario(h)
	before := h.ex.LastSeq()
	h.close()

	r := newHarness(t, walDir, "")
	defer r.close()
	if _, err := r.ex.Recover("", walDir); err != nil {
		t.Fatal(err)
	}
	r.now = h.now
	exec := r.limit(pool, bob, orderbook.Buy, "1800", "0.1")
	if r.ex.LastSeq() != before+1 {
		t.Fatalf("expected seq %d, got %d", before+1, r.ex.LastSeq())
	}
	info, _ := r.ex.Pool(pool)
	if exec.Order.ID != info.LastOrderID {
		t.Fatal("order ids must continue after recovery")
	}
}

func TestCheckpointThenRecover(t *testing.T) {
	walDir, snapDir := t.TempDir(), t.TempDir()
	h := newHarness(t, walDir, "")
	defer h.close()
	pool, _ := scenario(h)

	seq, err := h.ex.Checkpoint(&snapshot.Writer{Dir: snapDir})
	if err != nil {
		t.Fatal(err)
	}
	if seq != h.ex.LastSeq() {
		t.Fatalf("snapshot seq %d, live %d", seq, h.ex.LastSeq())
	}
	h.limit(pool, bob, orderbook.Buy, "1850", "0.3")
	if _, err := h.ex.PlaceMarketOrder(pool, orderbook.MarketOrder{Owner: bob, Side: orderbook.Buy, Amount: usd(t, "500")}); err != nil {
		t.Fatal(err)
	}

	r := newHarness(t, t.TempDir(), "")
	defer r.close()
	st, err := r.ex.Recover(snapDir, walDir)
	if err != nil {
		t.Fatal(err)
	}
	if st.SnapshotSeq != seq || st.Replayed != 2 {
		t.Fatalf("expected 2 commands replayed after seq %d, got %+v", seq, st)
	}
	expectSameState(t, h.ex, r.ex, pool)
}

func TestRecoverRestoresMissingEvents(t *testing.T) {
	walDir, boxDir := t.TempDir(), t.TempDir()
	h := newHarness(t, walDir, boxDir)
	scenario(h)
	counts, _ := h.outbox.Count()
	live := counts[outbox.StateNew]
	h.close()

	// same outbox: nothing is stored twice
	r := newHarness(t, t.TempDir(), boxDir)
	if _, err := r.ex.Recover("", walDir); err != nil {
		t.Fatal(err)
	}
	counts, _ = r.outbox.Count()
	if counts[outbox.StateNew] != live {
		t.Fatalf("expected %d events after replay, got %d", live, counts[outbox.StateNew])
	}
	r.close()

	// empty outbox: every event is stored again
	fresh := newHarness(t, t.TempDir(), t.TempDir())
	defer fresh.close()
	if _, err := fresh.ex.Recover("", walDir); err != nil {
		t.Fatal(err)
	}
	counts, _ = fresh.outbox.Count()
	if counts[outbox.StateNew] != live {
		t.Fatalf("expected %d events regenerated, got %d", live, counts[outbox.StateNew])
	}
}

func TestRecoverRefusesARunningExchange(t *testing.T) {
	h := newHarness(t, t.TempDir(), "")
	defer h.close()
	h.pool()
	if _, err := h.ex.Recover("", h.walDir); err == nil {
		t.Fatal("expected an error")
	}
}

func TestCommandCodec(t *testing.T) {
	c := &Command{
		Kind:        KindPlaceLimit,
		Caller:      alice,
		Pool:        key.ID(),
		Side:        uint8(orderbook.Sell),
		TimeInForce: uint8(orderbook.PostOnly),
		Expiry:      1_700_000_500,
		Fees:        ledger.Fees{Maker: 1, Taker: 3, Protocol: 1},
		Allowed:     true,
	}
	c.Price.SetUint64(2_000_000_000)
	c.Quantity.Set(new(uint256.Int).Lsh(uint256.NewInt(1), 200))
	c.Rules = ethUsdcRules()

	b := c.Encode()
	// a field from a newer writer must be skipped
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	got, err := DecodeCommand(KindPlaceLimit, b)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *c {
		t.Fatalf("decoded %+v, want %+v", got, c)
	}

	torn := protowire.AppendTag(c.Encode(), 99, protowire.BytesType)
	torn = protowire.AppendVarint(torn, 20)
	torn = append(torn, 1, 2)
	if _, err := DecodeCommand(KindPlaceLimit, torn); err == nil {
		t.Fatal("truncated body must fail")
	}
}

func TestOversizedAmountsNeverReachTheLog(t *testing.T) {
	h := newHarness(t, t.TempDir(), "")
	defer h.close()
	id := h.pool()
	before := h.ex.LastSeq()
	wide := new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	_, err := h.ex.PlaceLimitOrder(id, orderbook.LimitOrder{
		Owner: alice, Side: orderbook.Sell, Price: new(uint256.Int).Mul(wide, uint256.NewInt(10_000)), Quantity: eth(t, "1"),
	})
	if !errors.Is(err, errs.ErrAmountTooLarge) {
		t.Fatalf("place: expected AmountTooLarge, got %v", err)
	}
	if err := h.ex.Deposit(weth, new(uint256.Int).Not(new(uint256.Int)), alice, alice); !errors.Is(err, errs.ErrAmountTooLarge) {
		t.Fatalf("deposit: expected AmountTooLarge, got %v", err)
	}
	if h.ex.LastSeq() != before {
		t.Fatalf("rejected amounts were logged: seq %d -> %d", before, h.ex.LastSeq())
	}
}

func TestReplayRejectsOversizedLoggedCommand(t *testing.T) {
	walDir := t.TempDir()
	h := newHarness(t, walDir, "")
	id := h.pool()
	h.fund(alice, weth, eth(t, "1"))

	// written by a build that did not bound amounts
	cmd := &Command{Kind: KindPlaceLimit, Caller: alice, Pool: id, Side: uint8(orderbook.Sell)}
	cmd.Price.Mul(new(uint256.Int).Lsh(uint256.NewInt(1), 200), uint256.NewInt(10_000))
	cmd.Quantity.Mul(new(uint256.Int).Lsh(uint256.NewInt(1), 100), uint256.NewInt(1e14))
	next := h.ex.LastSeq() + 1
	if err := h.wal.Append(&wal.Record{Type: KindPlaceLimit, Seq: next, Time: int64(h.now), Data: cmd.Encode()}); err != nil {
		t.Fatal(err)
	}
	h.close()

	r := newHarness(t, walDir, "")
	defer r.close()
	st, err := r.ex.Recover("", walDir)
	if err != nil {
		t.Fatal(err)
	}
	if st.Rejected != 1 || st.LastSeq != next {
		t.Fatalf("expected the logged command to be rejected, got %+v", st)
	}
	if !r.ex.Balance(alice, weth).Eq(eth(t, "1")) {
		t.Error("balance changed by a rejected command")
	}
}
