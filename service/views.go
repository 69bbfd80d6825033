package service

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/currency"
	"scalex/domain/ledger"
	"scalex/domain/orderbook"
	"scalex/domain/rules"
)

// Queries read under the same lock as commands, so they always see a
// state between two commands.

type PoolInfo struct {
	ID           currency.PoolID
	Key          currency.PoolKey
	Rules        rules.TradingRules
	BaseDecimals uint8
	Operator     common.Address
	LastOrderID  uint64
	Stats        orderbook.Stats
}

func poolInfo(b *orderbook.Book) PoolInfo {
	return PoolInfo{
		ID:           b.ID(),
		Key:          b.Key(),
		Rules:        b.Rules(),
		BaseDecimals: b.BaseDecimals(),
		Operator:     b.Operator(),
		LastOrderID:  b.LastOrderID(),
		Stats:        b.Stats(),
	}
}

func (e *Exchange) Pools() []PoolInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	books := e.registry.Books()
	out := make([]PoolInfo, 0, len(books))
	for _, b := range books {
		out = append(out, poolInfo(b))
	}
	return out
}

func (e *Exchange) Pool(id currency.PoolID) (PoolInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.registry.Get(id)
	if err != nil {
		return PoolInfo{}, err
	}
	return poolInfo(b), nil
}

// withBook runs fn on the pool's book under the lock.
func (e *Exchange) withBook(id currency.PoolID, fn func(*orderbook.Book)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	fn(b)
	return nil
}

func (e *Exchange) BestPrice(pool currency.PoolID, side orderbook.Side) (price, volume *uint256.Int, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { price, volume = b.BestPrice(side) })
	return price, volume, err
}

func (e *Exchange) OrderQueue(pool currency.PoolID, side orderbook.Side, price *uint256.Int) (count int, volume *uint256.Int, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { count, volume = b.OrderQueue(side, price) })
	return count, volume, err
}

func (e *Exchange) NextBestPrices(pool currency.PoolID, side orderbook.Side, start *uint256.Int, count int) (levels []orderbook.LevelView, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { levels = b.NextBestPrices(side, start, count) })
	return levels, err
}

func (e *Exchange) Depth(pool currency.PoolID, side orderbook.Side, n int) (levels []orderbook.LevelView, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { levels = b.Depth(side, n) })
	return levels, err
}

func (e *Exchange) Order(pool currency.PoolID, id uint64) (o orderbook.Order, found bool, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { o, found = b.Order(id) })
	return o, found, err
}

func (e *Exchange) OpenOrders(pool currency.PoolID, owner common.Address) (orders []orderbook.Order, err error) {
	err = e.withBook(pool, func(b *orderbook.Book) { orders = b.OpenOrders(owner) })
	return orders, err
}

func (e *Exchange) MinOutForMarket(pool currency.PoolID, input *uint256.Int, side orderbook.Side, slippageBps uint32) (out *uint256.Int, err error) {
	if werr := e.withBook(pool, func(b *orderbook.Book) { out, err = b.MinOutForMarket(input, side, slippageBps) }); werr != nil {
		return nil, werr
	}
	return out, err
}

func (e *Exchange) Balance(user common.Address, cur currency.Currency) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(user, cur)
}

// LockedBalance is what user has reserved on pool.
func (e *Exchange) LockedBalance(user common.Address, cur currency.Currency, pool currency.PoolID) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.LockedBalance(user, cur, currency.OperatorOf(pool))
}

func (e *Exchange) ProtocolFees(cur currency.Currency) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ProtocolFees(cur)
}

func (e *Exchange) Fees() ledger.Fees {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Fees()
}

func (e *Exchange) Totals(cur currency.Currency) ledger.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Totals(cur)
}

func (e *Exchange) Owner() common.Address {
	return e.ledger.Owner()
}

// LastSeq is the sequence of the last command accepted.
func (e *Exchange) LastSeq() uint64 {
	return e.seq.Current()
}
