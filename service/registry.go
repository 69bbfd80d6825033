package service

import (
	"bytes"
	"sort"

	"scalex/domain/currency"
	"scalex/domain/errs"
	"scalex/domain/fee"
	"scalex/domain/orderbook"
	"scalex/domain/rules"
)

var (
	ErrDuplicatePool = errs.New(errs.KindState, "PoolAlreadyExists")
	ErrPoolNotFound  = errs.New(errs.KindState, "PoolNotFound")
)

// Registry owns one book per pool id. Pools are created once and never
// removed.
type Registry struct {
	books   map[currency.PoolID]*orderbook.Book
	settler orderbook.Settler
	clock   orderbook.Clock
}

func NewRegistry(settler orderbook.Settler, clock orderbook.Clock) *Registry {
	return &Registry{books: make(map[currency.PoolID]*orderbook.Book), settler: settler, clock: clock}
}

// Create validates the fee tier and builds the book. The caller authorizes
// the pool operator on the ledger.
func (r *Registry) Create(key currency.PoolKey, tr rules.TradingRules, baseDecimals uint8) (*orderbook.Book, error) {
	if !fee.IsValidFeeTier(key.FeeTier) {
		return nil, fee.ErrInvalidFeeTier.With(errs.F("feeTier", key.FeeTier))
	}
	id := key.ID()
	if _, ok := r.books[id]; ok {
		return nil, ErrDuplicatePool.With(errs.F("pool", id.Hex()))
	}
	b, err := orderbook.New(orderbook.Config{Key: key, Rules: tr, BaseDecimals: baseDecimals}, r.settler, r.clock)
	if err != nil {
		return nil, err
	}
	r.books[id] = b
	return b, nil
}

func (r *Registry) Get(id currency.PoolID) (*orderbook.Book, error) {
	b, ok := r.books[id]
	if !ok {
		return nil, ErrPoolNotFound.With(errs.F("pool", id.Hex()))
	}
	return b, nil
}

// Books lists every pool ordered by id.
func (r *Registry) Books() []*orderbook.Book {
	out := make([]*orderbook.Book, 0, len(r.books))
	for _, b := range r.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID(), out[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out
}

func (r *Registry) restore(s orderbook.State) error {
	b, err := orderbook.Restore(s, r.settler, r.clock)
	if err != nil {
		return err
	}
	r.books[b.ID()] = b
	return nil
}

func (r *Registry) remove(id currency.PoolID) {
	delete(r.books, id)
}
