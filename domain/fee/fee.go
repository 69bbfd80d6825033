// Package fee implements basis-point fee tiers and fee arithmetic.
package fee

import (
	"github.com/holiman/uint256"

	"scalex/domain/errs"
	"scalex/pkg/fixed"
)

// BasisPoints is the denominator of every tier.
const BasisPoints = 10_000

var (
	ErrInvalidFeeTier     = errs.New(errs.KindValidation, "InvalidFeeTier")
	ErrInvalidTickSpacing = errs.New(errs.KindValidation, "InvalidTickSpacing")
	ErrInvalidProtocolFee = errs.New(errs.KindValidation, "InvalidProtocolFee")
	ErrInvalidTickRange   = errs.New(errs.KindValidation, "InvalidTickRange")
)

type tier struct {
	bps     uint32
	spacing int32
}

// Supported tiers; each maps 1:1 to a tick spacing.
var tiers = [...]tier{
	{bps: 20, spacing: 50},
	{bps: 50, spacing: 200},
}

func IsValidFeeTier(bps uint32) bool {
	_, err := TickSpacingFor(bps)
	return err == nil
}

func IsValidTickSpacing(spacing int32) bool {
	_, err := FeeTierFor(spacing)
	return err == nil
}

func TickSpacingFor(bps uint32) (int32, error) {
	for _, t := range tiers {
		if t.bps == bps {
			return t.spacing, nil
		}
	}
	return 0, ErrInvalidFeeTier.With(errs.F("feeTier", bps))
}

func FeeTierFor(spacing int32) (uint32, error) {
	for _, t := range tiers {
		if t.spacing == spacing {
			return t.bps, nil
		}
	}
	return 0, ErrInvalidTickSpacing.With(errs.F("tickSpacing", spacing))
}

// SupportedTiers lists the tiers in ascending order.
func SupportedTiers() []uint32 {
	out := make([]uint32, len(tiers))
	for i, t := range tiers {
		out[i] = t.bps
	}
	return out
}

// CalculateFee returns floor(amount*bps/10000).
func CalculateFee(amount *uint256.Int, bps uint32) *uint256.Int {
	return fixed.MulDiv(amount, uint256.NewInt(uint64(bps)), uint256.NewInt(BasisPoints))
}

// SplitFee divides total into the protocol share floor(total*protocol/rate)
// and the remainder. rate is the fee rate total was charged at, in whatever
// unit protocol is expressed in. The two parts always sum to total.
func SplitFee(total *uint256.Int, rate, protocol uint32) (protocolFee, lpFee *uint256.Int, err error) {
	if protocol > rate {
		return nil, nil, ErrInvalidProtocolFee.With(errs.F("protocol", protocol), errs.F("rate", rate))
	}
	if rate == 0 || total.IsZero() {
		return new(uint256.Int), total.Clone(), nil
	}
	protocolFee = fixed.MulDiv(total, uint256.NewInt(uint64(protocol)), uint256.NewInt(uint64(rate)))
	lpFee = new(uint256.Int).Sub(total, protocolFee)
	return protocolFee, lpFee, nil
}

// TickPrices spreads count prices from lower towards upper. When the range
// is too narrow the step is clamped up to minSpacing and prices past upper
// are pinned to upper, so the tail repeats the boundary price.
func TickPrices(lower, upper *uint256.Int, count int, minSpacing *uint256.Int) ([]*uint256.Int, error) {
	if count <= 0 || !lower.Lt(upper) {
		return nil, ErrInvalidTickRange.With(
			errs.F("lower", lower.ToBig()), errs.F("upper", upper.ToBig()), errs.F("count", count))
	}
	if count == 1 {
		return []*uint256.Int{lower.Clone()}, nil
	}

	step := new(uint256.Int).Sub(upper, lower)
	step.Div(step, uint256.NewInt(uint64(count-1)))
	if step.Lt(minSpacing) {
		step.Set(minSpacing)
	}

	out := make([]*uint256.Int, count)
	for i := range out {
		p := new(uint256.Int).Mul(step, uint256.NewInt(uint64(i)))
		p.Add(p, lower)
		if p.Gt(upper) {
			p.Set(upper)
		}
		out[i] = p
	}
	return out, nil
}
