// Package fixed holds the scaled-integer helpers shared by the ledger and
// the order book. Amounts never pass through floating point; every division
// floors.
package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the scale accepted by Pow10, Parse and Format.
const MaxDecimals = 36

// AmountBits is the width of every amount, price and quantity taken from a
// caller. Products of two such values always fit 256 bits.
const AmountBits = 128

// Fits reports whether x is nil or at most AmountBits wide.
func Fits(x *uint256.Int) bool {
	return x == nil || x.BitLen() <= AmountBits
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
// Panics on division by zero or when the quotient does not fit 256 bits.
func MulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		panic("FIXED_MULDIV_BY_ZERO")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		panic("FIXED_MULDIV_OVERFLOW")
	}
	return z
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	if n > MaxDecimals {
		panic(fmt.Sprintf("FIXED_POW10_RANGE: %d", n))
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Min returns a copy of the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Sub returns a-b, panicking on underflow. Callers check balances first;
// an underflow here is a broken invariant, not a user error.
func Sub(a, b *uint256.Int) *uint256.Int {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		panic(fmt.Sprintf("FIXED_SUB_UNDERFLOW: %s - %s", a.ToBig(), b.ToBig()))
	}
	return z
}

// Add returns a+b, panicking on overflow.
func Add(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		panic("FIXED_ADD_OVERFLOW")
	}
	return z
}

// IsMultiple reports whether x is an exact multiple of step. A zero step
// accepts everything.
func IsMultiple(x, step *uint256.Int) bool {
	if step.IsZero() {
		return true
	}
	return new(uint256.Int).Mod(x, step).IsZero()
}

// Parse converts a human decimal string ("2000.5") into an integer scaled by
// 10^decimals. Fractions finer than the scale are rejected, not rounded.
func Parse(s string, decimals uint8) (*uint256.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals %d out of range", decimals)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("parse amount %q: overflows 256 bits", s)
	}
	return v, nil
}

// Format renders a scaled integer as a human decimal string.
func Format(x *uint256.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).String()
}
