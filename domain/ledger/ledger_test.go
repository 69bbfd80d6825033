package ledger

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/currency"
	"scalex/domain/errs"
)

var (
	owner = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000b0071")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a1ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc  = currency.New(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	weth  = currency.New(common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func newManager(t *testing.T, fees Fees) *Manager {
	t.Helper()
	m, err := NewManager(Config{Owner: owner, Fees: fees, Gate: NewOperatorSet(pool)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func fund(t *testing.T, m *Manager, user common.Address, cur currency.Currency, amount uint64) {
	t.Helper()
	if err := m.Deposit(cur, u(amount), user, user); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func expectBalance(t *testing.T, m *Manager, user common.Address, cur currency.Currency, want uint64) {
	t.Helper()
	if got := m.Balance(user, cur); got.Uint64() != want {
		t.Errorf("balance of %s: expected %d, got %d", user.Hex(), want, got.Uint64())
	}
}

func TestDepositValidation(t *testing.T) {
	m := newManager(t, Fees{})

	if err := m.Deposit(usdc, u(0), alice, alice); !errors.Is(err, errs.ErrZeroAmount) {
		t.Errorf("expected ZeroAmount, got %v", err)
	}
	if err := m.Deposit(currency.Currency{}, u(1), alice, alice); !errors.Is(err, errs.ErrInvalidToken) {
		t.Errorf("expected InvalidToken, got %v", err)
	}
	if err := m.Deposit(usdc, u(1), alice, common.Address{}); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected InvalidRecipient, got %v", err)
	}
	if err := m.Deposit(usdc, u(1), common.Address{}, alice); !errors.Is(err, ErrInvalidPayer) {
		t.Errorf("expected InvalidPayer, got %v", err)
	}
}

func TestWithdrawInsufficientCarriesAmounts(t *testing.T) {
	m := newManager(t, Fees{})
	fund(t, m, alice, usdc, 5)

	err := m.Withdraw(alice, usdc, u(10))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	d := errs.Details(err)
	if d["available"] != "5" || d["required"] != "10" {
		t.Errorf("unexpected details %v", d)
	}
	expectBalance(t, m, alice, usdc, 5)

	if err := m.Withdraw(alice, usdc, u(5)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	expectBalance(t, m, alice, usdc, 0)
}

func TestLockUnlockRoundTrip(t *testing.T) {
	m := newManager(t, Fees{})
	fund(t, m, alice, usdc, 1_000)

	if err := m.Lock(pool, alice, usdc, u(400)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	expectBalance(t, m, alice, usdc, 600)
	if got := m.LockedBalance(alice, usdc, pool); got.Uint64() != 400 {
		t.Errorf("locked: expected 400, got %d", got.Uint64())
	}

	if err := m.Unlock(pool, alice, usdc, u(400)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	expectBalance(t, m, alice, usdc, 1_000)
	if got := m.LockedBalance(alice, usdc, pool); !got.IsZero() {
		t.Errorf("locked: expected 0, got %d", got.Uint64())
	}

	if err := m.Unlock(pool, alice, usdc, u(1)); !errors.Is(err, ErrInsufficientLockedBalance) {
		t.Errorf("expected InsufficientLockedBalance, got %v", err)
	}
	if err := m.Lock(pool, alice, usdc, u(1_001)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected InsufficientBalance, got %v", err)
	}
}

func TestUnauthorizedOperator(t *testing.T) {
	m := newManager(t, Fees{})
	fund(t, m, alice, usdc, 100)

	err := m.Lock(bob, alice, usdc, u(1))
	if !errors.Is(err, ErrUnauthorizedOperator) {
		t.Fatalf("expected UnauthorizedOperator, got %v", err)
	}
	if errs.KindOf(err) != errs.KindAuthorization {
		t.Errorf("expected authorization kind, got %s", errs.KindOf(err))
	}
	if _, err := m.TransferFrom(bob, Transfer{Payer: alice, Recipient: bob, Currency: usdc, Amount: u(1)}); !errors.Is(err, ErrUnauthorizedOperator) {
		t.Errorf("expected UnauthorizedOperator, got %v", err)
	}
}

func TestTransferSplitsFeeWithRebate(t *testing.T) {
	// maker 1/1000, taker 3/1000, protocol 1/1000
	m := newManager(t, Fees{Maker: 1, Taker: 3, Protocol: 1})
	fund(t, m, alice, usdc, 10_000)

	r, err := m.TransferFrom(pool, Transfer{
		Payer: alice, Recipient: bob, Currency: usdc, Amount: u(10_000),
		Fee: TakerFee, RebateTo: alice,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// fee = 30, protocol = floor(30*1/3) = 10, rebate = 20
	if r.Fee.Uint64() != 30 || r.Protocol.Uint64() != 10 || r.Rebate.Uint64() != 20 || r.Net.Uint64() != 9_970 {
		t.Errorf("unexpected receipt fee=%d protocol=%d rebate=%d net=%d",
			r.Fee.Uint64(), r.Protocol.Uint64(), r.Rebate.Uint64(), r.Net.Uint64())
	}
	expectBalance(t, m, bob, usdc, 9_970)
	expectBalance(t, m, alice, usdc, 20)
	if got := m.ProtocolFees(usdc); got.Uint64() != 10 {
		t.Errorf("protocol fees: expected 10, got %d", got.Uint64())
	}
	if !m.Totals(usdc).Balanced() {
		t.Error("ledger not balanced")
	}
}

func TestTransferWithoutMakerKeepsWholeFee(t *testing.T) {
	m := newManager(t, Fees{Maker: 2, Taker: 2, Protocol: 1})
	fund(t, m, alice, weth, 1_000)
	if err := m.Lock(pool, alice, weth, u(1_000)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	r, err := m.TransferLockedFrom(pool, Transfer{Payer: alice, Recipient: bob, Currency: weth, Amount: u(1_000), Fee: MakerFee})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if r.Protocol.Uint64() != 2 || !r.Rebate.IsZero() {
		t.Errorf("expected protocol to keep the whole fee, got protocol=%d rebate=%d", r.Protocol.Uint64(), r.Rebate.Uint64())
	}
	expectBalance(t, m, bob, weth, 998)

	if _, err := m.TransferLockedFrom(pool, Transfer{Payer: alice, Recipient: bob, Currency: weth, Amount: u(1)}); !errors.Is(err, ErrInsufficientLockedBalance) {
		t.Errorf("expected InsufficientLockedBalance, got %v", err)
	}
}

func TestAtomicRollsBackNestedWrites(t *testing.T) {
	m := newManager(t, Fees{Maker: 1, Taker: 1})
	fund(t, m, alice, usdc, 100)
	before := m.Export()

	boom := errors.New("boom")
	err := m.Atomic(func() error {
		if err := m.Lock(pool, alice, usdc, u(60)); err != nil {
			return err
		}
		if err := m.Atomic(func() error {
			_, err := m.TransferLockedFrom(pool, Transfer{Payer: alice, Recipient: bob, Currency: usdc, Amount: u(60)})
			return err
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	expectBalance(t, m, alice, usdc, 100)
	expectBalance(t, m, bob, usdc, 0)
	if got := m.LockedBalance(alice, usdc, pool); !got.IsZero() {
		t.Errorf("locked balance survived rollback: %d", got.Uint64())
	}
	if got := m.ProtocolFees(usdc); !got.IsZero() {
		t.Errorf("protocol fees survived rollback: %d", got.Uint64())
	}
	if after := m.Export(); len(after.Balances) != len(before.Balances) {
		t.Errorf("expected %d cells, got %d", len(before.Balances), len(after.Balances))
	}
}

func TestAtomicRollsBackOnPanic(t *testing.T) {
	m := newManager(t, Fees{})
	fund(t, m, alice, usdc, 100)

	func() {
		defer func() { _ = recover() }()
		_ = m.Atomic(func() error {
			_ = m.Withdraw(alice, usdc, u(100))
			panic("boom")
		})
	}()
	expectBalance(t, m, alice, usdc, 100)

	// the journal must be usable again
	if err := m.Withdraw(alice, usdc, u(1)); err != nil {
		t.Fatalf("withdraw after panic: %v", err)
	}
}

func TestConservationUnderRandomOperations(t *testing.T) {
	m := newManager(t, Fees{Maker: 1, Taker: 3, Protocol: 1})
	users := []common.Address{alice, bob, owner}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2_000; i++ {
		a := users[rng.Intn(len(users))]
		b := users[rng.Intn(len(users))]
		amt := u(uint64(rng.Intn(5_000) + 1))
		switch rng.Intn(6) {
		case 0:
			_ = m.Deposit(usdc, amt, a, a)
		case 1:
			_ = m.Withdraw(a, usdc, amt)
		case 2:
			_ = m.Lock(pool, a, usdc, amt)
		case 3:
			_ = m.Unlock(pool, a, usdc, amt)
		case 4:
			_, _ = m.TransferFrom(pool, Transfer{Payer: a, Recipient: b, Currency: usdc, Amount: amt, RebateTo: b})
		case 5:
			_, _ = m.TransferLockedFrom(pool, Transfer{Payer: a, Recipient: b, Currency: usdc, Amount: amt, Fee: MakerFee})
		}
		if tot := m.Totals(usdc); !tot.Balanced() {
			t.Fatalf("step %d: free=%d locked=%d protocol=%d deposited=%d withdrawn=%d", i,
				tot.Free.Uint64(), tot.Locked.Uint64(), tot.Protocol.Uint64(), tot.Deposited.Uint64(), tot.Withdrawn.Uint64())
		}
	}
}

func TestFeeParameters(t *testing.T) {
	m := newManager(t, Fees{Maker: 2, Taker: 5, Protocol: 2})

	if err := m.SetFeeMaker(alice, 1); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected Unauthorized, got %v", err)
	}
	if err := m.SetFeeMaker(owner, 1); err != nil {
		t.Fatalf("set maker: %v", err)
	}
	if got := m.Fees(); got.Protocol != 1 {
		t.Errorf("protocol should clamp to 1, got %d", got.Protocol)
	}
	if err := m.SetFeeProtocol(owner, 2); !errors.Is(err, ErrInvalidFeeParameters) {
		t.Errorf("expected InvalidFeeParameters, got %v", err)
	}
	if err := m.SetFeeTaker(owner, 0); err != nil {
		t.Fatalf("set taker: %v", err)
	}
	if got := m.Fees(); got.Protocol != 0 {
		t.Errorf("protocol should clamp to 0, got %d", got.Protocol)
	}
	if err := m.SetFees(owner, Fees{Maker: 1_001}); !errors.Is(err, ErrInvalidFeeParameters) {
		t.Errorf("expected InvalidFeeParameters, got %v", err)
	}
}

func TestClaimProtocolFees(t *testing.T) {
	m := newManager(t, Fees{Maker: 10, Taker: 10, Protocol: 10})
	fund(t, m, alice, usdc, 1_000)
	if _, err := m.TransferFrom(pool, Transfer{Payer: alice, Recipient: bob, Currency: usdc, Amount: u(1_000)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if _, err := m.ClaimProtocolFees(bob, usdc); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("expected Unauthorized, got %v", err)
	}
	claimed, err := m.ClaimProtocolFees(owner, usdc)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Uint64() != 10 {
		t.Errorf("expected 10 claimed, got %d", claimed.Uint64())
	}
	expectBalance(t, m, owner, usdc, 10)
	if !m.Totals(usdc).Balanced() {
		t.Error("ledger not balanced after claim")
	}
}

func TestExportImport(t *testing.T) {
	m := newManager(t, Fees{Maker: 1, Taker: 2, Protocol: 1})
	fund(t, m, alice, usdc, 500)
	if err := m.Lock(pool, alice, usdc, u(200)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	restored, err := NewManager(Config{Owner: owner})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := restored.Import(m.Export()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !restored.IsOperator(pool) {
		t.Error("operator not restored")
	}
	if restored.Fees() != m.Fees() {
		t.Errorf("fees not restored: %+v", restored.Fees())
	}
	expectBalance(t, restored, alice, usdc, 300)
	if got := restored.LockedBalance(alice, usdc, pool); got.Uint64() != 200 {
		t.Errorf("locked: expected 200, got %d", got.Uint64())
	}
	if !restored.Totals(usdc).Balanced() {
		t.Error("restored ledger not balanced")
	}
}

func TestWideAmountsRejected(t *testing.T) {
	m := newManager(t, Fees{Maker: 1, Taker: 2, Protocol: 1})
	wide := new(uint256.Int).Lsh(u(1), 128)

	if err := m.Deposit(weth, wide, alice, alice); !errors.Is(err, errs.ErrAmountTooLarge) || errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("deposit: expected AmountTooLarge, got %v", err)
	}
	if err := m.Withdraw(alice, weth, wide); !errors.Is(err, errs.ErrAmountTooLarge) {
		t.Fatalf("withdraw: expected AmountTooLarge, got %v", err)
	}
	top := new(uint256.Int).Sub(wide, u(1))
	if err := m.Deposit(weth, top, alice, alice); err != nil {
		t.Fatalf("2^128-1 must be accepted: %v", err)
	}
	if !m.Balance(alice, weth).Eq(top) {
		t.Error("deposit not credited")
	}
}

func TestCreditOverflowIsAnError(t *testing.T) {
	m := newManager(t, Fees{Maker: 1, Taker: 2, Protocol: 1})
	full := new(uint256.Int).Not(new(uint256.Int))
	m.cells[cell{user: alice, currency: weth}] = full

	err := m.Deposit(weth, u(1), alice, alice)
	if !errors.Is(err, ErrBalanceOverflow) || errs.KindOf(err) != errs.KindSolvency {
		t.Fatalf("expected BalanceOverflow, got %v", err)
	}
	if !m.Balance(alice, weth).Eq(full) {
		t.Error("balance changed")
	}
	if d := m.Totals(weth).Deposited; !d.IsZero() {
		t.Errorf("deposit total recorded: %s", d.ToBig())
	}
}
