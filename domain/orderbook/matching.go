package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/errs"
	"scalex/domain/ledger"
	"scalex/pkg/fixed"
)

// ---------- Planning ----------

type fill struct {
	maker *Order
	level *PriceLevel
	qty   *uint256.Int // base
	quote *uint256.Int
}

// plan is a read-only walk of the opposite side.
type plan struct {
	fills   []fill
	expired []*Order
	filled  *uint256.Int
	quote   *uint256.Int
	// a same-owner order was skipped at a crossing price
	selfCross bool
}

func newPlan() *plan {
	return &plan{filled: new(uint256.Int), quote: new(uint256.Int)}
}

func (p *plan) add(lvl *PriceLevel, o *Order, q, c *uint256.Int) {
	p.fills = append(p.fills, fill{maker: o, level: lvl, qty: q, quote: c})
	p.filled.Add(p.filled, q)
	p.quote.Add(p.quote, c)
}

// eligible filters resting orders a taker may not match: expired ones are
// collected for removal, same-owner ones are skipped.
func (p *plan) eligible(o *Order, owner common.Address, now uint64) bool {
	if o.expiredAt(now) {
		p.expired = append(p.expired, o)
		return false
	}
	if o.Owner == owner {
		p.selfCross = true
		return false
	}
	return true
}

// crosses reports whether a taker on side with limit price may trade at
// level. A nil limit trades at any price.
func crosses(taker Side, limit, level *uint256.Int) bool {
	if limit == nil {
		return true
	}
	if taker == Buy {
		return !level.Gt(limit)
	}
	return !level.Lt(limit)
}

// planQuantity matches up to qty base units.
func (b *Book) planQuantity(taker Side, limit, qty *uint256.Int, owner common.Address, now uint64) *plan {
	p := newPlan()
	remaining := qty.Clone()
	b.eachLevel(taker.Opposite(), func(lvl *PriceLevel) bool {
		if !crosses(taker, limit, &lvl.Price) {
			return false
		}
		for o := lvl.head; o != nil && !remaining.IsZero(); o = o.next {
			if !p.eligible(o, owner, now) {
				continue
			}
			q := fixed.Min(remaining, o.Remaining())
			p.add(lvl, o, q, b.quoteFor(&lvl.Price, q))
			remaining.Sub(remaining, q)
		}
		return !remaining.IsZero()
	})
	return p
}

// planBudget buys base with up to budget quote units, in whole lots.
func (b *Book) planBudget(budget *uint256.Int, owner common.Address, now uint64) *plan {
	p := newPlan()
	left := budget.Clone()
	lot := &b.cfg.Rules.MinAmountMovement
	b.eachLevel(Sell, func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; o = o.next {
			afford := fixed.MulDiv(left, b.baseUnit, &lvl.Price)
			afford.Sub(afford, new(uint256.Int).Mod(afford, lot))
			if afford.IsZero() {
				// deeper levels only cost more
				return false
			}
			if !p.eligible(o, owner, now) {
				continue
			}
			q := fixed.Min(afford, o.Remaining())
			c := b.quoteFor(&lvl.Price, q)
			p.add(lvl, o, q, c)
			left.Sub(left, c)
		}
		return true
	})
	return p
}

// ---------- Settlement ----------

// settleAll settles every fill of p for taker and returns the reservation
// each maker keeps afterwards. Taker funds come from the taker's lock when
// fromLock is set, from the free balance otherwise.
func (b *Book) settleAll(p *plan, taker *Order, exec *Execution, fromLock bool, now uint64) ([]*uint256.Int, error) {
	kept := make([]*uint256.Int, len(p.fills))
	for i, f := range p.fills {
		trade, left, err := b.settle(f, taker, fromLock, now)
		if err != nil {
			return nil, err
		}
		kept[i] = left
		exec.Trades = append(exec.Trades, trade)
		exec.Volume.Add(&exec.Volume, f.quote)
	}
	return kept, nil
}

func (b *Book) settle(f fill, taker *Order, fromLock bool, now uint64) (Trade, *uint256.Int, error) {
	maker := f.maker
	base, quote := b.cfg.Key.Base, b.cfg.Key.Quote

	// The fee on each leg is charged to its recipient: the taker pays the
	// taker rate on what it receives and the maker collects the rebate.
	makerLeg := ledger.Transfer{Payer: maker.Owner, Recipient: taker.Owner, Fee: ledger.TakerFee, RebateTo: maker.Owner}
	takerLeg := ledger.Transfer{Payer: taker.Owner, Recipient: maker.Owner, Fee: ledger.MakerFee}
	makerPays := f.qty
	if taker.Side == Buy {
		makerLeg.Currency, makerLeg.Amount = base, f.qty
		takerLeg.Currency, takerLeg.Amount = quote, f.quote
	} else {
		makerLeg.Currency, makerLeg.Amount = quote, f.quote
		takerLeg.Currency, takerLeg.Amount = base, f.qty
		makerPays = f.quote
	}

	got, err := b.ledger.TransferLockedFrom(b.operator, makerLeg)
	if err != nil {
		return Trade{}, nil, err
	}
	var paid ledger.Receipt
	if fromLock {
		paid, err = b.ledger.TransferLockedFrom(b.operator, takerLeg)
	} else {
		paid, err = b.ledger.TransferFrom(b.operator, takerLeg)
	}
	if err != nil {
		return Trade{}, nil, err
	}

	left := fixed.Sub(&maker.locked, makerPays)
	if maker.Remaining().Eq(f.qty) && !left.IsZero() {
		// rounding dust of a fully filled buy
		if err := b.ledger.Unlock(b.operator, maker.Owner, b.payCurrency(maker.Side), left); err != nil {
			return Trade{}, nil, err
		}
		left = new(uint256.Int)
	}

	t := Trade{
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		Taker:        taker.Owner,
		Maker:        maker.Owner,
		TakerSide:    taker.Side,
		Price:        f.level.Price,
		Quantity:     *f.qty,
		QuoteAmount:  *f.quote,
		TakerFee:     *got.Fee,
		MakerFee:     *paid.Fee,
		MakerRebate:  *got.Rebate,
		Time:         now,
	}
	return t, left, nil
}

// releaseExpired returns the reservations of expired resting orders.
func (b *Book) releaseExpired(expired []*Order) error {
	for _, o := range expired {
		if o.locked.IsZero() {
			continue
		}
		if err := b.ledger.Unlock(b.operator, o.Owner, b.payCurrency(o.Side), &o.locked); err != nil {
			return err
		}
	}
	return nil
}

// apply mutates the queues after the ledger committed. It cannot fail.
func (b *Book) apply(p *plan, kept []*uint256.Int, exec *Execution, now uint64) {
	for _, o := range p.expired {
		b.finish(o, Expired)
		exec.Expired = append(exec.Expired, o.view(now))
	}
	for i, f := range p.fills {
		m := f.maker
		m.Filled.Add(&m.Filled, f.qty)
		f.level.fill(f.qty)
		m.locked = *kept[i]
		if m.Remaining().IsZero() {
			b.finish(m, Filled)
		}
	}
}

// ---------- Placement ----------

func (b *Book) checkTaker(owner common.Address, side Side) error {
	if owner == (common.Address{}) {
		return ErrInvalidOwner.With(errs.F("owner", owner))
	}
	if !side.Valid() {
		return ErrInvalidSide.With(errs.F("side", uint8(side)))
	}
	return nil
}

// nextID returns the id the next placement takes.
func (b *Book) nextID() (uint64, error) {
	if b.lastID >= MaxOrderID {
		return 0, ErrOrderIDExhausted.With(errs.F("lastOrderId", b.lastID), errs.F("limit", uint64(MaxOrderID)))
	}
	return b.lastID + 1, nil
}

type amountField struct {
	name  string
	value *uint256.Int
}

func checkAmounts(fields ...amountField) error {
	for _, f := range fields {
		if err := ledger.CheckAmount(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// PlaceLimitOrder validates, reserves, matches and rests a limit order.
func (b *Book) PlaceLimitOrder(req LimitOrder) (*Execution, error) {
	now := b.clock.Now()
	price, qty := orZero(req.Price), orZero(req.Quantity)

	if err := b.checkTaker(req.Owner, req.Side); err != nil {
		return nil, err
	}
	if !req.TimeInForce.Valid() {
		return nil, ErrInvalidTimeInForce.With(errs.F("timeInForce", uint8(req.TimeInForce)))
	}
	if qty.IsZero() {
		return nil, errs.ErrZeroAmount.With(errs.F("op", "placeLimitOrder"))
	}
	if err := checkAmounts(
		amountField{"price", price},
		amountField{"quantity", qty},
		amountField{"depositAmount", req.DepositAmount},
	); err != nil {
		return nil, err
	}
	id, err := b.nextID()
	if err != nil {
		return nil, err
	}
	if req.Expiry != 0 && req.Expiry <= now {
		return nil, ErrInvalidExpiry.With(errs.F("expiry", req.Expiry), errs.F("now", now))
	}
	notional := b.quoteFor(price, qty)
	if err := b.cfg.Rules.CheckLimit(price, qty, notional); err != nil {
		return nil, err
	}

	p := b.planQuantity(req.Side, price, qty, req.Owner, now)
	remaining := fixed.Sub(qty, p.filled)
	switch req.TimeInForce {
	case PostOnly:
		if len(p.fills) > 0 || p.selfCross {
			return nil, ErrPostOnlyWouldCross.With(errs.F("price", price.ToBig()), errs.F("side", req.Side))
		}
	case FOK:
		if !remaining.IsZero() {
			return nil, ErrOrderNotFillable.With(errs.F("quantity", qty.ToBig()), errs.F("fillable", p.filled.ToBig()))
		}
	}
	// A remainder still crossing one of the owner's own orders is not
	// rested, so the book never stays crossed.
	rests := !remaining.IsZero() && !p.selfCross && (req.TimeInForce == GTC || req.TimeInForce == PostOnly)

	order := &Order{
		ID:          id,
		Owner:       req.Owner,
		Side:        req.Side,
		Type:        Limit,
		Price:       *price,
		Quantity:    *qty,
		TimeInForce: req.TimeInForce,
		Expiry:      req.Expiry,
		CreatedAt:   now,
	}
	payCur := b.payCurrency(req.Side)
	reserve, paid, keep := qty, p.filled, new(uint256.Int)
	if req.Side == Buy {
		reserve, paid = notional, p.quote
	}
	if rests {
		keep = remaining
		if req.Side == Buy {
			keep = b.quoteFor(price, remaining)
		}
	}

	exec := &Execution{}
	var kept []*uint256.Int
	err = b.ledger.Atomic(func() error {
		if d := orZero(req.DepositAmount); !d.IsZero() {
			if err := b.ledger.Deposit(payCur, d, req.Owner, req.Owner); err != nil {
				return err
			}
		}
		if !reserve.IsZero() {
			if err := b.ledger.Lock(b.operator, req.Owner, payCur, reserve); err != nil {
				return err
			}
		}
		if err := b.releaseExpired(p.expired); err != nil {
			return err
		}
		var err error
		if kept, err = b.settleAll(p, order, exec, true, now); err != nil {
			return err
		}
		if excess := fixed.Sub(fixed.Sub(reserve, paid), keep); !excess.IsZero() {
			return b.ledger.Unlock(b.operator, req.Owner, payCur, excess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.lastID = order.ID
	b.orders[order.ID] = order
	b.apply(p, kept, exec, now)
	order.Filled = *p.filled
	switch {
	case rests:
		order.locked = *keep
		b.rest(order)
	case remaining.IsZero():
		order.Status = Filled
	default:
		order.Status = Cancelled
	}
	b.sumReceived(exec)
	exec.Order = order.view(now)
	return exec, nil
}

// PlaceMarketOrder walks the opposite side settling from free balances.
// Unfilled remainder never rests.
func (b *Book) PlaceMarketOrder(req MarketOrder) (*Execution, error) {
	now := b.clock.Now()
	amount := orZero(req.Amount)

	if err := b.checkTaker(req.Owner, req.Side); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, errs.ErrZeroAmount.With(errs.F("op", "placeMarketOrder"))
	}
	if err := checkAmounts(
		amountField{"amount", amount},
		amountField{"depositAmount", req.DepositAmount},
		amountField{"minOut", req.MinOut},
	); err != nil {
		return nil, err
	}
	id, err := b.nextID()
	if err != nil {
		return nil, err
	}
	var p *plan
	if req.Side == Buy {
		if err := b.cfg.Rules.CheckMarketBuy(amount); err != nil {
			return nil, err
		}
		p = b.planBudget(amount, req.Owner, now)
	} else {
		if err := b.cfg.Rules.CheckMarketSell(amount); err != nil {
			return nil, err
		}
		p = b.planQuantity(Sell, nil, amount, req.Owner, now)
	}
	if len(p.fills) == 0 {
		return nil, ErrOrderHasNoLiquidity.With(errs.F("side", req.Side), errs.F("amount", amount.ToBig()))
	}

	order := &Order{
		ID:        id,
		Owner:     req.Owner,
		Side:      req.Side,
		Type:      Market,
		Quantity:  *amount,
		CreatedAt: now,
	}
	minOut := orZero(req.MinOut)

	exec := &Execution{}
	var kept []*uint256.Int
	err = b.ledger.Atomic(func() error {
		if d := orZero(req.DepositAmount); !d.IsZero() {
			if err := b.ledger.Deposit(b.payCurrency(req.Side), d, req.Owner, req.Owner); err != nil {
				return err
			}
		}
		if err := b.releaseExpired(p.expired); err != nil {
			return err
		}
		var err error
		if kept, err = b.settleAll(p, order, exec, false, now); err != nil {
			return err
		}
		b.sumReceived(exec)
		if exec.Received.Lt(minOut) {
			return ErrSlippageTooHigh.With(errs.F("minOut", minOut.ToBig()), errs.F("received", exec.Received.ToBig()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.lastID = order.ID
	b.orders[order.ID] = order
	b.apply(p, kept, exec, now)
	order.Filled = *p.filled
	if req.Side == Buy {
		// a quote budget has no base size; record what was bought
		order.Quantity = *p.filled
	}
	order.Status = Filled
	if !order.Remaining().IsZero() {
		order.Status = Cancelled
	}
	exec.Order = order.view(now)
	return exec, nil
}

// sumReceived totals what the taker was credited across trades.
func (b *Book) sumReceived(exec *Execution) {
	exec.Received.Clear()
	for i := range exec.Trades {
		t := &exec.Trades[i]
		gross := &t.Quantity
		if t.TakerSide == Sell {
			gross = &t.QuoteAmount
		}
		exec.Received.Add(&exec.Received, gross)
		exec.Received.Sub(&exec.Received, &t.TakerFee)
	}
}

// Cancel closes an open order and returns its reservation. Only the owner
// or an authorized operator may cancel.
func (b *Book) Cancel(caller common.Address, id uint64) (Order, error) {
	now := b.clock.Now()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound.With(errs.F("orderId", id))
	}
	if caller != o.Owner && !b.ledger.IsOperator(caller) {
		return Order{}, errs.ErrUnauthorized.With(errs.F("caller", caller), errs.F("orderId", id))
	}
	if o.Status != Open {
		return Order{}, ErrOrderNotOpen.With(errs.F("orderId", id), errs.F("status", o.Status))
	}

	status := Cancelled
	if o.expiredAt(now) {
		status = Expired
	}
	if !o.locked.IsZero() {
		if err := b.ledger.Unlock(b.operator, o.Owner, b.payCurrency(o.Side), &o.locked); err != nil {
			return Order{}, err
		}
	}
	b.finish(o, status)
	return o.view(now), nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
