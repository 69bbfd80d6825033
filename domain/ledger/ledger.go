// Package ledger is the custodial balance ledger.
//
// Every user holds a free balance per currency plus one locked balance per
// operator (pool). Operators lock funds for resting orders and settle fills
// by moving free or locked funds between users; the fee on each transfer is
// split between the protocol and a designated maker.
//
// The Manager is not safe for concurrent use. Its single caller serializes
// access.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/currency"
	"scalex/domain/errs"
	"scalex/domain/fee"
	"scalex/pkg/fixed"
)

var (
	ErrInsufficientBalance       = errs.New(errs.KindSolvency, "InsufficientBalance")
	ErrInsufficientLockedBalance = errs.New(errs.KindSolvency, "InsufficientLockedBalance")
	ErrInvalidRecipient          = errs.New(errs.KindValidation, "InvalidRecipient")
	ErrInvalidPayer              = errs.New(errs.KindValidation, "InvalidPayer")
	ErrUnauthorizedOperator      = errs.New(errs.KindAuthorization, "UnauthorizedOperator")
	ErrBalanceOverflow           = errs.New(errs.KindSolvency, "BalanceOverflow")
)

// CheckAmount rejects a caller supplied value wider than fixed.AmountBits.
func CheckAmount(field string, v *uint256.Int) error {
	if fixed.Fits(v) {
		return nil
	}
	return errs.ErrAmountTooLarge.With(errs.F("field", field), errs.F("value", v.ToBig()), errs.F("bits", fixed.AmountBits))
}

// cell addresses one balance; the zero operator is the free balance.
type cell struct {
	user     common.Address
	currency currency.Currency
	operator common.Address
}

type Config struct {
	Owner       common.Address
	FeeReceiver common.Address
	Fees        Fees
	// Gate defaults to an empty OperatorSet.
	Gate AuthorizationGate
}

type Manager struct {
	owner       common.Address
	feeReceiver common.Address
	fees        Fees
	gate        AuthorizationGate

	cells     map[cell]*uint256.Int
	collected map[currency.Currency]*uint256.Int
	deposited map[currency.Currency]*uint256.Int
	withdrawn map[currency.Currency]*uint256.Int

	journal []func()
	depth   int
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	gate := cfg.Gate
	if gate == nil {
		gate = NewOperatorSet()
	}
	receiver := cfg.FeeReceiver
	if receiver == (common.Address{}) {
		receiver = cfg.Owner
	}
	return &Manager{
		owner:       cfg.Owner,
		feeReceiver: receiver,
		fees:        cfg.Fees,
		gate:        gate,
		cells:       make(map[cell]*uint256.Int),
		collected:   make(map[currency.Currency]*uint256.Int),
		deposited:   make(map[currency.Currency]*uint256.Int),
		withdrawn:   make(map[currency.Currency]*uint256.Int),
	}, nil
}

// ---------- Deposits and withdrawals ----------

func (m *Manager) Deposit(cur currency.Currency, amount *uint256.Int, payer, beneficiary common.Address) error {
	if amount == nil || amount.IsZero() {
		return errs.ErrZeroAmount.With(errs.F("op", "deposit"))
	}
	if cur.IsZero() {
		return errs.ErrInvalidToken.With(errs.F("currency", cur))
	}
	if payer == (common.Address{}) {
		return ErrInvalidPayer.With(errs.F("payer", payer))
	}
	if beneficiary == (common.Address{}) {
		return ErrInvalidRecipient.With(errs.F("recipient", beneficiary))
	}
	if err := CheckAmount("amount", amount); err != nil {
		return err
	}

	return m.Atomic(func() error {
		if err := m.credit(beneficiary, cur, amount); err != nil {
			return err
		}
		return add(m, m.deposited, cur, amount)
	})
}

func (m *Manager) Withdraw(caller common.Address, cur currency.Currency, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errs.ErrZeroAmount.With(errs.F("op", "withdraw"))
	}
	if cur.IsZero() {
		return errs.ErrInvalidToken.With(errs.F("currency", cur))
	}
	if err := CheckAmount("amount", amount); err != nil {
		return err
	}

	return m.Atomic(func() error {
		if err := m.debit(cell{user: caller, currency: cur}, amount); err != nil {
			return err
		}
		return add(m, m.withdrawn, cur, amount)
	})
}

// ---------- Locks ----------

// Lock moves amount from the user's free balance to the operator's lock.
func (m *Manager) Lock(operator, user common.Address, cur currency.Currency, amount *uint256.Int) error {
	if err := m.authorize(operator); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return errs.ErrZeroAmount.With(errs.F("op", "lock"))
	}

	return m.Atomic(func() error {
		if err := m.debit(cell{user: user, currency: cur}, amount); err != nil {
			return err
		}
		return add(m, m.cells, cell{user: user, currency: cur, operator: operator}, amount)
	})
}

// Unlock reverses Lock.
func (m *Manager) Unlock(operator, user common.Address, cur currency.Currency, amount *uint256.Int) error {
	if err := m.authorize(operator); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return errs.ErrZeroAmount.With(errs.F("op", "unlock"))
	}

	return m.Atomic(func() error {
		if err := m.debit(cell{user: user, currency: cur, operator: operator}, amount); err != nil {
			return err
		}
		return m.credit(user, cur, amount)
	})
}

// ---------- Settlement ----------

type FeeRole uint8

const (
	// TakerFee charges the transfer at the taker rate.
	TakerFee FeeRole = iota
	// MakerFee charges the transfer at the maker rate.
	MakerFee
)

// Transfer is one settlement leg. The fee is deducted from what the
// recipient receives.
type Transfer struct {
	Payer     common.Address
	Recipient common.Address
	Currency  currency.Currency
	Amount    *uint256.Int
	Fee       FeeRole
	// RebateTo receives the non-protocol part of the fee. When zero the
	// whole fee goes to the protocol.
	RebateTo common.Address
}

type Receipt struct {
	Amount   *uint256.Int // gross amount debited from the payer
	Fee      *uint256.Int
	Net      *uint256.Int // credited to the recipient
	Protocol *uint256.Int
	Rebate   *uint256.Int
}

// TransferFrom settles t from the payer's free balance.
func (m *Manager) TransferFrom(operator common.Address, t Transfer) (Receipt, error) {
	return m.transfer(operator, t, cell{user: t.Payer, currency: t.Currency})
}

// TransferLockedFrom settles t from the payer's lock held by operator.
func (m *Manager) TransferLockedFrom(operator common.Address, t Transfer) (Receipt, error) {
	return m.transfer(operator, t, cell{user: t.Payer, currency: t.Currency, operator: operator})
}

func (m *Manager) transfer(operator common.Address, t Transfer, from cell) (Receipt, error) {
	if err := m.authorize(operator); err != nil {
		return Receipt{}, err
	}
	if t.Recipient == (common.Address{}) {
		return Receipt{}, ErrInvalidRecipient.With(errs.F("recipient", t.Recipient))
	}
	if t.Amount == nil || t.Amount.IsZero() {
		zero := new(uint256.Int)
		return Receipt{Amount: zero, Fee: zero, Net: zero, Protocol: zero, Rebate: zero}, nil
	}

	rate := m.rate(t.Fee)
	total := fixed.MulDiv(t.Amount, uint256.NewInt(uint64(rate)), uint256.NewInt(FeeUnit))
	protocol, rebate, err := fee.SplitFee(total, rate, m.fees.Protocol)
	if err != nil {
		return Receipt{}, err
	}
	r := Receipt{
		Amount:   t.Amount.Clone(),
		Fee:      total,
		Net:      new(uint256.Int).Sub(t.Amount, total),
		Protocol: protocol,
		Rebate:   rebate,
	}

	err = m.Atomic(func() error {
		if err := m.debit(from, t.Amount); err != nil {
			return err
		}
		if err := m.credit(t.Recipient, t.Currency, r.Net); err != nil {
			return err
		}
		if t.RebateTo == (common.Address{}) {
			r.Protocol = total
			r.Rebate = new(uint256.Int)
		} else if err := m.credit(t.RebateTo, t.Currency, rebate); err != nil {
			return err
		}
		return add(m, m.collected, t.Currency, r.Protocol)
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// NetOf returns what a recipient would be credited for amount charged at
// role's rate.
func (m *Manager) NetOf(amount *uint256.Int, role FeeRole) *uint256.Int {
	total := fixed.MulDiv(amount, uint256.NewInt(uint64(m.rate(role))), uint256.NewInt(FeeUnit))
	return new(uint256.Int).Sub(amount, total)
}

func (m *Manager) rate(role FeeRole) uint32 {
	if role == MakerFee {
		return m.fees.Maker
	}
	return m.fees.Taker
}

// ClaimProtocolFees moves collected protocol fees of cur to the fee
// receiver's free balance.
func (m *Manager) ClaimProtocolFees(caller common.Address, cur currency.Currency) (*uint256.Int, error) {
	if caller != m.owner && caller != m.feeReceiver {
		return nil, errs.ErrUnauthorized.With(errs.F("caller", caller), errs.F("op", "claimProtocolFees"))
	}
	amount := get(m.collected, cur).Clone()
	if amount.IsZero() {
		return amount, nil
	}
	err := m.Atomic(func() error {
		put(m, m.collected, cur, new(uint256.Int))
		return m.credit(m.feeReceiver, cur, amount)
	})
	return amount, err
}

// SetOperator grants or revokes operator rights. Owner only; the gate must
// be an OperatorRegistry.
func (m *Manager) SetOperator(caller, operator common.Address, allowed bool) error {
	if err := m.onlyOwner(caller, "setOperator"); err != nil {
		return err
	}
	reg, ok := m.gate.(OperatorRegistry)
	if !ok {
		return errs.ErrUnauthorized.With(errs.F("op", "setOperator"), errs.F("reason", "gate is read-only"))
	}
	if allowed {
		reg.Authorize(operator)
	} else {
		reg.Revoke(operator)
	}
	return nil
}

// ---------- Views ----------

func (m *Manager) Owner() common.Address       { return m.owner }
func (m *Manager) FeeReceiver() common.Address { return m.feeReceiver }

func (m *Manager) IsOperator(operator common.Address) bool {
	return m.gate.IsOperator(operator)
}

func (m *Manager) Balance(user common.Address, cur currency.Currency) *uint256.Int {
	return get(m.cells, cell{user: user, currency: cur}).Clone()
}

func (m *Manager) LockedBalance(user common.Address, cur currency.Currency, operator common.Address) *uint256.Int {
	if operator == (common.Address{}) {
		return new(uint256.Int)
	}
	return get(m.cells, cell{user: user, currency: cur, operator: operator}).Clone()
}

func (m *Manager) ProtocolFees(cur currency.Currency) *uint256.Int {
	return get(m.collected, cur).Clone()
}

// Totals aggregates every balance of one currency.
type Totals struct {
	Free      *uint256.Int
	Locked    *uint256.Int
	Protocol  *uint256.Int
	Deposited *uint256.Int
	Withdrawn *uint256.Int
}

// Balanced reports whether free + locked + protocol fees equal deposits
// minus withdrawals.
func (t Totals) Balanced() bool {
	held := new(uint256.Int).Add(t.Free, t.Locked)
	held.Add(held, t.Protocol)
	return held.Eq(new(uint256.Int).Sub(t.Deposited, t.Withdrawn))
}

func (m *Manager) Totals(cur currency.Currency) Totals {
	t := Totals{
		Free:      new(uint256.Int),
		Locked:    new(uint256.Int),
		Protocol:  get(m.collected, cur).Clone(),
		Deposited: get(m.deposited, cur).Clone(),
		Withdrawn: get(m.withdrawn, cur).Clone(),
	}
	for c, v := range m.cells {
		if c.currency != cur {
			continue
		}
		if c.operator == (common.Address{}) {
			t.Free.Add(t.Free, v)
		} else {
			t.Locked.Add(t.Locked, v)
		}
	}
	return t
}

// ---------- internals ----------

func (m *Manager) authorize(operator common.Address) error {
	if operator == (common.Address{}) || !m.gate.IsOperator(operator) {
		return ErrUnauthorizedOperator.With(errs.F("operator", operator))
	}
	return nil
}

func (m *Manager) debit(c cell, amount *uint256.Int) error {
	have := get(m.cells, c)
	if have.Lt(amount) {
		sentinel := ErrInsufficientBalance
		if c.operator != (common.Address{}) {
			sentinel = ErrInsufficientLockedBalance
		}
		return sentinel.With(
			errs.F("user", c.user),
			errs.F("currency", c.currency),
			errs.F("available", have.ToBig()),
			errs.F("required", amount.ToBig()),
		)
	}
	put(m, m.cells, c, new(uint256.Int).Sub(have, amount))
	return nil
}

func (m *Manager) credit(user common.Address, cur currency.Currency, amount *uint256.Int) error {
	return add(m, m.cells, cell{user: user, currency: cur}, amount)
}

// add increases one entry of table, refusing to wrap.
func add[K comparable](m *Manager, table map[K]*uint256.Int, k K, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(get(table, k), amount)
	if overflow {
		return ErrBalanceOverflow.With(errs.F("held", get(table, k).ToBig()), errs.F("amount", amount.ToBig()))
	}
	put(m, table, k, sum)
	return nil
}
