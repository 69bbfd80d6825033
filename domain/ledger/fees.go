package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"scalex/domain/errs"
)

// FeeUnit is the denominator of maker, taker and protocol rates.
const FeeUnit = 1000

var ErrInvalidFeeParameters = errs.New(errs.KindValidation, "InvalidFeeParameters")

// Fees are rates out of FeeUnit. Protocol never exceeds min(Maker, Taker).
type Fees struct {
	Maker    uint32
	Taker    uint32
	Protocol uint32
}

func (f Fees) Validate() error {
	if f.Maker > FeeUnit || f.Taker > FeeUnit {
		return ErrInvalidFeeParameters.With(
			errs.F("maker", f.Maker), errs.F("taker", f.Taker), errs.F("limit", FeeUnit))
	}
	if f.Protocol > min(f.Maker, f.Taker) {
		return ErrInvalidFeeParameters.With(
			errs.F("protocol", f.Protocol), errs.F("limit", min(f.Maker, f.Taker)))
	}
	return nil
}

// clamp lowers Protocol to min(Maker, Taker) when needed.
func (f Fees) clamp() Fees {
	if limit := min(f.Maker, f.Taker); f.Protocol > limit {
		f.Protocol = limit
	}
	return f
}

func (m *Manager) Fees() Fees { return m.fees }

func (m *Manager) SetFees(caller common.Address, f Fees) error {
	if err := m.onlyOwner(caller, "setFees"); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	m.fees = f
	return nil
}

func (m *Manager) SetFeeMaker(caller common.Address, maker uint32) error {
	if err := m.onlyOwner(caller, "setFeeMaker"); err != nil {
		return err
	}
	next := m.fees
	next.Maker = maker
	return m.applyFees(next.clamp())
}

func (m *Manager) SetFeeTaker(caller common.Address, taker uint32) error {
	if err := m.onlyOwner(caller, "setFeeTaker"); err != nil {
		return err
	}
	next := m.fees
	next.Taker = taker
	return m.applyFees(next.clamp())
}

// SetFeeProtocol rejects values above min(Maker, Taker) instead of clamping.
func (m *Manager) SetFeeProtocol(caller common.Address, protocol uint32) error {
	if err := m.onlyOwner(caller, "setFeeProtocol"); err != nil {
		return err
	}
	next := m.fees
	next.Protocol = protocol
	return m.applyFees(next)
}

func (m *Manager) applyFees(f Fees) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.fees = f
	return nil
}

func (m *Manager) onlyOwner(caller common.Address, op string) error {
	if caller != m.owner || caller == (common.Address{}) {
		return errs.ErrUnauthorized.With(errs.F("caller", caller), errs.F("op", op))
	}
	return nil
}
