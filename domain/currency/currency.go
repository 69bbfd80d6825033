// Package currency holds the value types that identify assets and pools.
package currency

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"scalex/domain/errs"
)

var ErrIdenticalCurrencies = errs.New(errs.KindValidation, "IdenticalCurrencies")

// Currency is an ERC-20 style token handle. The zero value is invalid.
type Currency common.Address

func New(addr common.Address) Currency { return Currency(addr) }

// FromHex parses a 0x-prefixed token address.
func FromHex(s string) (Currency, error) {
	if !common.IsHexAddress(s) {
		return Currency{}, errs.ErrInvalidToken.With(errs.F("address", s))
	}
	return Currency(common.HexToAddress(s)), nil
}

func (c Currency) Address() common.Address { return common.Address(c) }
func (c Currency) IsZero() bool            { return c == Currency{} }
func (c Currency) String() string          { return common.Address(c).Hex() }

// ID converts the address into a stable numeric id.
func (c Currency) ID() *uint256.Int {
	return new(uint256.Int).SetBytes(c[:])
}

func (c Currency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Currency) UnmarshalText(b []byte) error {
	v, err := FromHex(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ---------- Pool key ----------

// PoolID identifies a pool; derived from the key, never assigned.
type PoolID = common.Hash

type PoolKey struct {
	Base    Currency
	Quote   Currency
	FeeTier uint32
}

func (k PoolKey) Validate() error {
	if k.Base.IsZero() || k.Quote.IsZero() {
		return errs.ErrInvalidToken.With(errs.F("base", k.Base), errs.F("quote", k.Quote))
	}
	if k.Base == k.Quote {
		return ErrIdenticalCurrencies.With(errs.F("currency", k.Base))
	}
	return nil
}

// ID is keccak256(pad32(base) ‖ pad32(quote) ‖ pad32(feeTier)).
func (k PoolKey) ID() PoolID {
	var tier [32]byte
	binary.BigEndian.PutUint32(tier[28:], k.FeeTier)
	return crypto.Keccak256Hash(
		common.LeftPadBytes(k.Base[:], 32),
		common.LeftPadBytes(k.Quote[:], 32),
		tier[:],
	)
}

// Operator is the ledger operator address a pool acts as.
func (k PoolKey) Operator() common.Address {
	return OperatorOf(k.ID())
}

func OperatorOf(id PoolID) common.Address {
	return common.BytesToAddress(id[12:])
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Base, k.Quote, k.FeeTier)
}
