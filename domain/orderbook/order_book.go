// Package orderbook is the per-pool limit order book and matching engine.
//
// A Book is single-writer and deterministic. Every placement is planned
// against the book without mutating it, settled on the ledger inside one
// atomic section, and only then applied to the queues, so a failure at any
// step leaves both the book and the ledger untouched.
package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/currency"
	"scalex/domain/errs"
	"scalex/domain/ledger"
	"scalex/domain/rules"
	"scalex/pkg/fixed"
)

// Settler is the part of the balance ledger a book drives.
type Settler interface {
	Deposit(cur currency.Currency, amount *uint256.Int, payer, beneficiary common.Address) error
	Lock(operator, user common.Address, cur currency.Currency, amount *uint256.Int) error
	Unlock(operator, user common.Address, cur currency.Currency, amount *uint256.Int) error
	TransferFrom(operator common.Address, t ledger.Transfer) (ledger.Receipt, error)
	TransferLockedFrom(operator common.Address, t ledger.Transfer) (ledger.Receipt, error)
	NetOf(amount *uint256.Int, role ledger.FeeRole) *uint256.Int
	IsOperator(operator common.Address) bool
	Atomic(fn func() error) error
}

// Clock supplies a never-decreasing unix time in seconds.
type Clock interface {
	Now() uint64
}

type Config struct {
	Key          currency.PoolKey
	Rules        rules.TradingRules
	BaseDecimals uint8
}

type Book struct {
	cfg      Config
	id       currency.PoolID
	operator common.Address
	baseUnit *uint256.Int

	bids *RBTree
	asks *RBTree

	orders map[uint64]*Order
	lastID uint64

	ledger Settler
	clock  Clock
}

func New(cfg Config, settler Settler, clock Clock) (*Book, error) {
	if err := cfg.Key.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseDecimals > fixed.MaxDecimals {
		return nil, rules.ErrInvalidTradingRules.With(
			errs.F("rule", "baseDecimals"), errs.F("value", cfg.BaseDecimals), errs.F("limit", fixed.MaxDecimals))
	}
	id := cfg.Key.ID()
	return &Book{
		cfg:      cfg,
		id:       id,
		operator: currency.OperatorOf(id),
		baseUnit: fixed.Pow10(cfg.BaseDecimals),
		bids:     NewRBTree(),
		asks:     NewRBTree(),
		orders:   make(map[uint64]*Order),
		ledger:   settler,
		clock:    clock,
	}, nil
}

// ---------- Requests and results ----------

type LimitOrder struct {
	Owner       common.Address
	Side        Side
	Price       *uint256.Int
	Quantity    *uint256.Int
	TimeInForce TimeInForce
	Expiry      uint64
	// DepositAmount is credited to the owner before the reservation.
	DepositAmount *uint256.Int
}

// MarketOrder spends Amount quote units on a buy, or sells Amount base
// units.
type MarketOrder struct {
	Owner         common.Address
	Side          Side
	Amount        *uint256.Int
	DepositAmount *uint256.Int
	MinOut        *uint256.Int
}

type Trade struct {
	TakerOrderID uint64
	MakerOrderID uint64
	Taker        common.Address
	Maker        common.Address
	TakerSide    Side
	Price        uint256.Int
	Quantity     uint256.Int // base
	QuoteAmount  uint256.Int
	TakerFee     uint256.Int // charged on what the taker received
	MakerFee     uint256.Int // charged on what the maker received
	MakerRebate  uint256.Int
	Time         uint64
}

type Execution struct {
	Order   Order
	Trades  []Trade
	Expired []Order
	// Received is the net amount credited to the taker after fees.
	Received uint256.Int
	// Volume is the quote amount traded.
	Volume uint256.Int
}

// ---------- Accessors ----------

func (b *Book) Key() currency.PoolKey     { return b.cfg.Key }
func (b *Book) ID() currency.PoolID       { return b.id }
func (b *Book) Operator() common.Address  { return b.operator }
func (b *Book) Rules() rules.TradingRules { return b.cfg.Rules }
func (b *Book) BaseDecimals() uint8       { return b.cfg.BaseDecimals }
func (b *Book) Config() Config            { return b.cfg }
func (b *Book) LastOrderID() uint64       { return b.lastID }

func (b *Book) tree(side Side) *RBTree {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// quoteFor converts a base quantity at price into quote units, flooring.
func (b *Book) quoteFor(price, qty *uint256.Int) *uint256.Int {
	return fixed.MulDiv(price, qty, b.baseUnit)
}

// payCurrency is what an order on side spends.
func (b *Book) payCurrency(side Side) currency.Currency {
	if side == Buy {
		return b.cfg.Key.Quote
	}
	return b.cfg.Key.Base
}

// eachLevel walks one side in priority order: bids high to low, asks low
// to high.
func (b *Book) eachLevel(side Side, fn func(*PriceLevel) bool) {
	if side == Buy {
		b.bids.ForEachDescending(fn)
		return
	}
	b.asks.ForEachAscending(fn)
}

// ---------- Queue mutation ----------

func (b *Book) rest(o *Order) {
	b.tree(o.Side).GetOrCreate(&o.Price).Enqueue(o)
}

// unqueue removes an open order from its level, dropping the level once
// empty.
func (b *Book) unqueue(o *Order) {
	t := b.tree(o.Side)
	lvl := t.Find(&o.Price)
	if lvl == nil {
		return
	}
	lvl.Remove(o)
	if lvl.Empty() {
		t.Delete(&o.Price)
	}
}

// finish moves an open order to a terminal status.
func (b *Book) finish(o *Order, status Status) {
	b.unqueue(o)
	o.Status = status
	o.locked.Clear()
}
