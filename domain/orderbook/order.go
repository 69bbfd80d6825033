package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side uint8
type OrderType uint8
type TimeInForce uint8
type Status uint8

// MaxOrderID is the largest pool-scoped order id (48 bits).
const MaxOrderID = 1<<48 - 1

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
)

const (
	GTC TimeInForce = iota
	IOC
	FOK
	PostOnly
)

const (
	Open Status = iota
	Filled
	Cancelled
	Expired
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (t OrderType) String() string {
	if t == Market {
		return "MARKET"
	}
	return "LIMIT"
}

func (t TimeInForce) Valid() bool { return t <= PostOnly }

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case PostOnly:
		return "POST_ONLY"
	default:
		return "UNKNOWN"
	}
}

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) Terminal() bool { return s != Open }

// Order is a pool-scoped order record. Price is quote units per whole base
// token; Quantity and Filled are base units.
type Order struct {
	ID          uint64
	Owner       common.Address
	Side        Side
	Type        OrderType
	Price       uint256.Int
	Quantity    uint256.Int
	Filled      uint256.Int
	TimeInForce TimeInForce
	Expiry      uint64 // unix seconds, 0 = never
	Status      Status
	CreatedAt   uint64

	// funds still reserved on the ledger for the unfilled part
	locked uint256.Int

	next *Order
	prev *Order
}

func (o *Order) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(&o.Quantity, &o.Filled)
}

func (o *Order) Locked() *uint256.Int { return o.locked.Clone() }

func (o *Order) expiredAt(now uint64) bool {
	return o.Expiry != 0 && now >= o.Expiry
}

// view copies the record without queue links, reporting lazy expiry.
func (o *Order) view(now uint64) Order {
	c := *o
	c.next, c.prev = nil, nil
	if c.Status == Open && o.expiredAt(now) {
		c.Status = Expired
	}
	return c
}
