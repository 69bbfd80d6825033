package orderbook

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/errs"
	"scalex/domain/fee"
	"scalex/domain/ledger"
	"scalex/pkg/fixed"
)

// Views never fail. Empty sides and levels read as zero. Resting orders
// past their expiry stay queued until a taker or a cancel meets them, but
// views leave them out: a level holding only expired orders is not shown.

type LevelView struct {
	Price  uint256.Int
	Volume uint256.Int
	Count  int
}

// live returns the level with its expired orders left out.
func live(lvl *PriceLevel, now uint64) LevelView {
	v := LevelView{Price: lvl.Price}
	for o := lvl.head; o != nil; o = o.next {
		if o.expiredAt(now) {
			continue
		}
		v.Volume.Add(&v.Volume, o.Remaining())
		v.Count++
	}
	return v
}

// BestPrice returns the best price and its volume on side: highest bid or
// lowest ask.
func (b *Book) BestPrice(side Side) (price, volume *uint256.Int) {
	levels := b.NextBestPrices(side, nil, 1)
	if len(levels) == 0 {
		return new(uint256.Int), new(uint256.Int)
	}
	return levels[0].Price.Clone(), levels[0].Volume.Clone()
}

// OrderQueue returns the order count and volume resting at price.
func (b *Book) OrderQueue(side Side, price *uint256.Int) (int, *uint256.Int) {
	lvl := b.tree(side).Find(price)
	if lvl == nil {
		return 0, new(uint256.Int)
	}
	v := live(lvl, b.clock.Now())
	return v.Count, v.Volume.Clone()
}

// NextBestPrices returns up to count levels in priority order. A zero
// start begins at the best level; otherwise the walk begins at the first
// level strictly worse than start.
func (b *Book) NextBestPrices(side Side, start *uint256.Int, count int) []LevelView {
	if count <= 0 {
		return nil
	}
	out := make([]LevelView, 0, count)
	t := b.tree(side)

	var lvl *PriceLevel
	switch {
	case start == nil || start.IsZero():
		if side == Buy {
			lvl = t.Max()
		} else {
			lvl = t.Min()
		}
	case side == Buy:
		lvl = t.Predecessor(start)
	default:
		lvl = t.Successor(start)
	}
	now := b.clock.Now()
	for lvl != nil && len(out) < count {
		if v := live(lvl, now); v.Count > 0 {
			out = append(out, v)
		}
		if side == Buy {
			lvl = t.Predecessor(&lvl.Price)
		} else {
			lvl = t.Successor(&lvl.Price)
		}
	}
	return out
}

// Depth returns the best n levels of side.
func (b *Book) Depth(side Side, n int) []LevelView {
	return b.NextBestPrices(side, nil, n)
}

// Order returns a copy of the order with its effective status.
func (b *Book) Order(id uint64) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.view(b.clock.Now()), true
}

// OpenOrders lists owner's resting orders by id.
func (b *Book) OpenOrders(owner common.Address) []Order {
	now := b.clock.Now()
	var out []Order
	for _, o := range b.orders {
		if o.Owner == owner && o.Status == Open {
			out = append(out, o.view(now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type Stats struct {
	BidLevels int
	AskLevels int
	Resting   int
}

func (b *Book) Stats() Stats {
	s := Stats{BidLevels: b.bids.Size(), AskLevels: b.asks.Size()}
	count := func(lvl *PriceLevel) bool {
		s.Resting += lvl.Count
		return true
	}
	b.bids.ForEachAscending(count)
	b.asks.ForEachAscending(count)
	return s
}

// MinOutForMarket simulates a market order of input without self-trade
// filtering and returns its output after the taker fee, reduced by
// slippageBps. Zero input or an empty side yields zero.
func (b *Book) MinOutForMarket(input *uint256.Int, side Side, slippageBps uint32) (*uint256.Int, error) {
	if slippageBps > fee.BasisPoints {
		return nil, ErrInvalidSlippageTolerance.With(errs.F("slippageBps", slippageBps), errs.F("limit", fee.BasisPoints))
	}
	if !side.Valid() {
		return nil, ErrInvalidSide.With(errs.F("side", uint8(side)))
	}
	if err := ledger.CheckAmount("input", input); err != nil {
		return nil, err
	}
	out := new(uint256.Int)
	if input == nil || input.IsZero() {
		return out, nil
	}

	now := b.clock.Now()
	var p *plan
	if side == Buy {
		p = b.planBudget(input, common.Address{}, now)
	} else {
		p = b.planQuantity(Sell, nil, input, common.Address{}, now)
	}
	for _, f := range p.fills {
		gross := f.qty
		if side == Sell {
			gross = f.quote
		}
		out.Add(out, b.ledger.NetOf(gross, ledger.TakerFee))
	}
	return fixed.MulDiv(out, uint256.NewInt(uint64(fee.BasisPoints-slippageBps)), uint256.NewInt(fee.BasisPoints)), nil
}
