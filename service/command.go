package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"

	"scalex/domain/currency"
	"scalex/domain/ledger"
	"scalex/domain/rules"
	"scalex/infra/wal"
)

// Kind identifies a state-changing command in the log.
type Kind = wal.RecordType

const (
	KindCreatePool Kind = iota + 1
	KindDeposit
	KindWithdraw
	KindPlaceLimit
	KindPlaceMarket
	KindCancel
	KindSetFees
	KindSetOperator
	KindClaimFees
)

func kindName(k Kind) string {
	switch k {
	case KindCreatePool:
		return "create_pool"
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindPlaceLimit:
		return "place_limit"
	case KindPlaceMarket:
		return "place_market"
	case KindCancel:
		return "cancel"
	case KindSetFees:
		return "set_fees"
	case KindSetOperator:
		return "set_operator"
	case KindClaimFees:
		return "claim_fees"
	default:
		return fmt.Sprintf("kind_%d", k)
	}
}

// FeeField selects which fee parameter a KindSetFees command changes.
type FeeField uint8

const (
	FeeAll FeeField = iota
	FeeMaker
	FeeTaker
	FeeProtocol
)

// Command is every input that changes engine state. Fields a kind does not
// use stay zero and are not encoded.
type Command struct {
	Kind   Kind
	Caller common.Address

	Pool     currency.PoolID
	Currency currency.Currency
	Quote    currency.Currency
	Target   common.Address

	Side        uint8
	TimeInForce uint8
	Price       uint256.Int
	Quantity    uint256.Int
	Amount      uint256.Int
	Deposit     uint256.Int
	MinOut      uint256.Int
	Expiry      uint64
	OrderID     uint64

	FeeTier      uint32
	Rules        rules.TradingRules
	BaseDecimals uint8
	Fees         ledger.Fees
	FeeField     FeeField
	Allowed      bool
}

// checkAmounts rejects a command whose amounts are wider than the core
// accepts, before it reaches the log.
func (c *Command) checkAmounts() error {
	for _, f := range []struct {
		name  string
		value *uint256.Int
	}{
		{"price", &c.Price},
		{"quantity", &c.Quantity},
		{"amount", &c.Amount},
		{"deposit", &c.Deposit},
		{"minOut", &c.MinOut},
	} {
		if err := ledger.CheckAmount(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

const (
	fCaller protowire.Number = iota + 1
	fPool
	fCurrency
	fQuote
	fTarget
	fSide
	fTimeInForce
	fPrice
	fQuantity
	fAmount
	fDeposit
	fMinOut
	fExpiry
	fOrderID
	fFeeTier
	fMinTrade
	fLot
	fMinOrder
	fTick
	fBaseDecimals
	fMaker
	fTaker
	fProtocol
	fFeeField
	fAllowed
)

func appendBytes(b []byte, n protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendAddr(b []byte, n protowire.Number, a [20]byte) []byte {
	if a == ([20]byte{}) {
		return b
	}
	return appendBytes(b, n, a[:])
}

func appendInt(b []byte, n protowire.Number, x *uint256.Int) []byte {
	if x.IsZero() {
		return b
	}
	return appendBytes(b, n, x.Bytes())
}

func appendVarint(b []byte, n protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, n, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Encode renders the command body in protobuf wire format.
func (c *Command) Encode() []byte {
	var b []byte
	b = appendAddr(b, fCaller, c.Caller)
	if c.Pool != (currency.PoolID{}) {
		b = appendBytes(b, fPool, c.Pool[:])
	}
	b = appendAddr(b, fCurrency, c.Currency)
	b = appendAddr(b, fQuote, c.Quote)
	b = appendAddr(b, fTarget, c.Target)
	b = appendVarint(b, fSide, uint64(c.Side))
	b = appendVarint(b, fTimeInForce, uint64(c.TimeInForce))
	b = appendInt(b, fPrice, &c.Price)
	b = appendInt(b, fQuantity, &c.Quantity)
	b = appendInt(b, fAmount, &c.Amount)
	b = appendInt(b, fDeposit, &c.Deposit)
	b = appendInt(b, fMinOut, &c.MinOut)
	b = appendVarint(b, fExpiry, c.Expiry)
	b = appendVarint(b, fOrderID, c.OrderID)
	b = appendVarint(b, fFeeTier, uint64(c.FeeTier))
	b = appendInt(b, fMinTrade, &c.Rules.MinTradeAmount)
	b = appendInt(b, fLot, &c.Rules.MinAmountMovement)
	b = appendInt(b, fMinOrder, &c.Rules.MinOrderSize)
	b = appendInt(b, fTick, &c.Rules.MinPriceMovement)
	b = appendVarint(b, fBaseDecimals, uint64(c.BaseDecimals))
	b = appendVarint(b, fMaker, uint64(c.Fees.Maker))
	b = appendVarint(b, fTaker, uint64(c.Fees.Taker))
	b = appendVarint(b, fProtocol, uint64(c.Fees.Protocol))
	b = appendVarint(b, fFeeField, uint64(c.FeeField))
	if c.Allowed {
		b = appendVarint(b, fAllowed, 1)
	}
	return b
}

// DecodeCommand parses a body written by Encode. Unknown fields are skipped.
func DecodeCommand(kind Kind, b []byte) (*Command, error) {
	c := &Command{Kind: kind}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("command tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := c.setBytes(num, v); err != nil {
				return nil, err
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			c.setVarint(num, v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return c, nil
}

func (c *Command) setBytes(num protowire.Number, v []byte) error {
	addr := func(dst *[20]byte) error {
		if len(v) != len(dst) {
			return fmt.Errorf("command field %d: address of %d bytes", num, len(v))
		}
		copy(dst[:], v)
		return nil
	}
	amount := func(dst *uint256.Int) error {
		if len(v) > 32 {
			return fmt.Errorf("command field %d: amount of %d bytes", num, len(v))
		}
		dst.SetBytes(v)
		return nil
	}
	switch num {
	case fCaller:
		return addr((*[20]byte)(&c.Caller))
	case fPool:
		if len(v) != len(c.Pool) {
			return fmt.Errorf("command pool id of %d bytes", len(v))
		}
		copy(c.Pool[:], v)
	case fCurrency:
		return addr((*[20]byte)(&c.Currency))
	case fQuote:
		return addr((*[20]byte)(&c.Quote))
	case fTarget:
		return addr((*[20]byte)(&c.Target))
	case fPrice:
		return amount(&c.Price)
	case fQuantity:
		return amount(&c.Quantity)
	case fAmount:
		return amount(&c.Amount)
	case fDeposit:
		return amount(&c.Deposit)
	case fMinOut:
		return amount(&c.MinOut)
	case fMinTrade:
		return amount(&c.Rules.MinTradeAmount)
	case fLot:
		return amount(&c.Rules.MinAmountMovement)
	case fMinOrder:
		return amount(&c.Rules.MinOrderSize)
	case fTick:
		return amount(&c.Rules.MinPriceMovement)
	}
	return nil
}

func (c *Command) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fSide:
		c.Side = uint8(v)
	case fTimeInForce:
		c.TimeInForce = uint8(v)
	case fExpiry:
		c.Expiry = v
	case fOrderID:
		c.OrderID = v
	case fFeeTier:
		c.FeeTier = uint32(v)
	case fBaseDecimals:
		c.BaseDecimals = uint8(v)
	case fMaker:
		c.Fees.Maker = uint32(v)
	case fTaker:
		c.Fees.Taker = uint32(v)
	case fProtocol:
		c.Fees.Protocol = uint32(v)
	case fFeeField:
		c.FeeField = FeeField(v)
	case fAllowed:
		c.Allowed = v != 0
	}
}
