package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"scalex/domain/currency"
	"scalex/domain/errs"
	"scalex/domain/event"
	"scalex/domain/ledger"
	"scalex/domain/orderbook"
	"scalex/domain/rules"
	"scalex/infra/metrics"
	"scalex/infra/outbox"
	"scalex/infra/sequence"
	"scalex/infra/wal"
)

type Config struct {
	Ledger ledger.Config
	// WAL and Outbox are optional. Without a log the engine is memory only.
	WAL     *wal.WAL
	Outbox  *outbox.Outbox
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Now returns unix seconds; defaults to the wall clock.
	Now func() uint64
}

// Exchange is the only write entry point. Commands run one at a time: each
// is logged, executed against the ledger and the books, and its events are
// queued in the outbox.
type Exchange struct {
	mu sync.Mutex

	ledger   *ledger.Manager
	registry *Registry
	clock    *commandClock
	seq      *sequence.Sequencer

	wal     *wal.WAL
	outbox  *outbox.Outbox
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() uint64

	// commands up to this sequence already have their events stored
	emitted uint64
	running bool
}

func New(cfg Config) (*Exchange, error) {
	if cfg.Ledger.Gate == nil {
		cfg.Ledger.Gate = ledger.NewOperatorSet()
	}
	m, err := ledger.NewManager(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = wallClock
	}
	clock := &commandClock{}
	var last uint64
	if cfg.WAL != nil {
		last = cfg.WAL.LastSeq()
	}
	return &Exchange{
		ledger:   m,
		registry: NewRegistry(m, clock),
		clock:    clock,
		seq:      sequence.New(last),
		wal:      cfg.WAL,
		outbox:   cfg.Outbox,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		now:      cfg.Now,
	}, nil
}

type outcome struct {
	exec   *orderbook.Execution
	order  orderbook.Order
	pool   currency.PoolID
	amount *uint256.Int
}

func (e *Exchange) submit(cmd *Command) (out outcome, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.Command(kindName(cmd.Kind), err, time.Since(start)) }()

	if err := cmd.checkAmounts(); err != nil {
		return outcome{}, err
	}
	e.running = true
	now := e.clock.advance(e.now())
	seq := e.seq.Next()
	if e.wal != nil {
		rec := &wal.Record{Type: cmd.Kind, Seq: seq, Time: int64(now), Data: cmd.Encode()}
		if err := e.wal.Append(rec); err != nil {
			e.seq.Reset(seq - 1)
			e.log.Error("command log append failed", zap.String("kind", kindName(cmd.Kind)), zap.Uint64("seq", seq), zap.Error(err))
			return outcome{}, fmt.Errorf("log command %d: %w", seq, err)
		}
		e.metrics.WALSeq(seq)
	}

	out, events, err := e.execute(cmd, seq, now)
	if err != nil {
		e.log.Debug("command rejected",
			zap.String("kind", kindName(cmd.Kind)),
			zap.Uint64("seq", seq),
			zap.String("code", errs.CodeOf(err)),
			zap.Error(err))
		return outcome{}, err
	}
	e.store(seq, events)
	return out, nil
}

// execute applies one command. It is deterministic given the ledger, the
// books and the clock, which is what makes log replay exact.
func (e *Exchange) execute(cmd *Command, seq, now uint64) (outcome, []event.Event, error) {
	var (
		out    outcome
		events []event.Event
	)
	emit := func(t event.Type, pool string) *event.Event {
		events = append(events, event.New(seq, uint16(len(events)), t, now))
		ev := &events[len(events)-1]
		ev.Pool = pool
		return ev
	}

	switch cmd.Kind {
	case KindCreatePool:
		book, err := e.createPool(cmd)
		if err != nil {
			return out, nil, err
		}
		out.pool = book.ID()
		k := book.Key()
		emit(event.PoolCreated, book.ID().Hex()).PoolInfo = &event.Pool{
			Base:         k.Base.String(),
			Quote:        k.Quote.String(),
			FeeTier:      k.FeeTier,
			BaseDecimals: book.BaseDecimals(),
			Operator:     book.Operator().Hex(),
		}

	case KindDeposit:
		if err := e.ledger.Deposit(cmd.Currency, &cmd.Amount, cmd.Caller, cmd.Target); err != nil {
			return out, nil, err
		}
		emit(event.BalanceDeposited, "").Balance = event.NewBalance(cmd.Target, cmd.Currency.String(), cmd.Amount.Dec())

	case KindWithdraw:
		if err := e.ledger.Withdraw(cmd.Caller, cmd.Currency, &cmd.Amount); err != nil {
			return out, nil, err
		}
		emit(event.BalanceWithdrawn, "").Balance = event.NewBalance(cmd.Caller, cmd.Currency.String(), cmd.Amount.Dec())

	case KindPlaceLimit, KindPlaceMarket:
		book, err := e.registry.Get(cmd.Pool)
		if err != nil {
			return out, nil, err
		}
		var exec *orderbook.Execution
		if cmd.Kind == KindPlaceLimit {
			exec, err = book.PlaceLimitOrder(orderbook.LimitOrder{
				Owner:         cmd.Caller,
				Side:          orderbook.Side(cmd.Side),
				Price:         &cmd.Price,
				Quantity:      &cmd.Quantity,
				TimeInForce:   orderbook.TimeInForce(cmd.TimeInForce),
				Expiry:        cmd.Expiry,
				DepositAmount: &cmd.Deposit,
			})
		} else {
			exec, err = book.PlaceMarketOrder(orderbook.MarketOrder{
				Owner:         cmd.Caller,
				Side:          orderbook.Side(cmd.Side),
				Amount:        &cmd.Amount,
				DepositAmount: &cmd.Deposit,
				MinOut:        &cmd.MinOut,
			})
		}
		if err != nil {
			return out, nil, err
		}
		out.exec, out.pool = exec, book.ID()
		pool := book.ID().Hex()
		for _, o := range exec.Expired {
			emit(event.OrderExpired, pool).Order = event.FromOrder(o)
		}
		for _, t := range exec.Trades {
			emit(event.TradeExecuted, pool).Trade = event.FromTrade(t)
		}
		emit(event.OrderPlaced, pool).Order = event.FromOrder(exec.Order)
		e.metrics.Trades(pool, len(exec.Trades))
		e.metrics.Resting(pool, book.Stats().Resting)

	case KindCancel:
		book, err := e.registry.Get(cmd.Pool)
		if err != nil {
			return out, nil, err
		}
		o, err := book.Cancel(cmd.Caller, cmd.OrderID)
		if err != nil {
			return out, nil, err
		}
		out.order, out.pool = o, book.ID()
		t := event.OrderCancelled
		if o.Status == orderbook.Expired {
			t = event.OrderExpired
		}
		emit(t, book.ID().Hex()).Order = event.FromOrder(o)
		e.metrics.Resting(book.ID().Hex(), book.Stats().Resting)

	case KindSetFees:
		var err error
		switch cmd.FeeField {
		case FeeMaker:
			err = e.ledger.SetFeeMaker(cmd.Caller, cmd.Fees.Maker)
		case FeeTaker:
			err = e.ledger.SetFeeTaker(cmd.Caller, cmd.Fees.Taker)
		case FeeProtocol:
			err = e.ledger.SetFeeProtocol(cmd.Caller, cmd.Fees.Protocol)
		default:
			err = e.ledger.SetFees(cmd.Caller, cmd.Fees)
		}
		if err != nil {
			return out, nil, err
		}
		f := e.ledger.Fees()
		emit(event.FeesUpdated, "").Fees = &event.Fees{Maker: f.Maker, Taker: f.Taker, Protocol: f.Protocol}

	case KindSetOperator:
		if err := e.ledger.SetOperator(cmd.Caller, cmd.Target, cmd.Allowed); err != nil {
			return out, nil, err
		}
		emit(event.OperatorUpdated, "").Operator = &event.Operator{Address: cmd.Target.Hex(), Allowed: cmd.Allowed}

	case KindClaimFees:
		amount, err := e.ledger.ClaimProtocolFees(cmd.Caller, cmd.Currency)
		if err != nil {
			return out, nil, err
		}
		out.amount = amount
		emit(event.ProtocolFeesClaimed, "").Balance = event.NewBalance(e.ledger.FeeReceiver(), cmd.Currency.String(), amount.Dec())

	default:
		return out, nil, fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
	return out, events, nil
}

func (e *Exchange) createPool(cmd *Command) (*orderbook.Book, error) {
	if cmd.Caller == (common.Address{}) || cmd.Caller != e.ledger.Owner() {
		return nil, errs.ErrUnauthorized.With(errs.F("op", "createPool"), errs.F("caller", cmd.Caller.Hex()))
	}
	key := currency.PoolKey{Base: cmd.Currency, Quote: cmd.Quote, FeeTier: cmd.FeeTier}
	book, err := e.registry.Create(key, cmd.Rules, cmd.BaseDecimals)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.SetOperator(cmd.Caller, book.Operator(), true); err != nil {
		e.registry.remove(book.ID())
		return nil, err
	}
	e.log.Info("pool created",
		zap.String("pool", book.ID().Hex()),
		zap.String("base", key.Base.String()),
		zap.String("quote", key.Quote.String()),
		zap.Uint32("feeTier", key.FeeTier))
	return book, nil
}

// store queues events in the outbox. State is already committed, so a
// failure here is logged and the command still succeeds.
func (e *Exchange) store(seq uint64, events []event.Event) {
	if e.outbox == nil || len(events) == 0 || seq <= e.emitted {
		return
	}
	entries := make([]outbox.Entry, 0, len(events))
	for _, ev := range events {
		b, err := ev.Marshal()
		if err != nil {
			e.log.Error("encode event", zap.Uint64("seq", seq), zap.Error(err))
			return
		}
		entries = append(entries, outbox.Entry{Seq: seq, Index: ev.Index, Key: ev.Key(), Payload: b})
	}
	if err := e.outbox.PutBatch(entries); err != nil {
		e.log.Error("outbox write failed, events lost", zap.Uint64("seq", seq), zap.Int("events", len(entries)), zap.Error(err))
		return
	}
	e.emitted = seq
}

// ---------- Commands ----------

func (e *Exchange) CreatePool(caller common.Address, key currency.PoolKey, tr rules.TradingRules, baseDecimals uint8) (currency.PoolID, error) {
	out, err := e.submit(&Command{
		Kind:         KindCreatePool,
		Caller:       caller,
		Currency:     key.Base,
		Quote:        key.Quote,
		FeeTier:      key.FeeTier,
		Rules:        tr,
		BaseDecimals: baseDecimals,
	})
	return out.pool, err
}

func (e *Exchange) Deposit(cur currency.Currency, amount *uint256.Int, payer, beneficiary common.Address) error {
	cmd := &Command{Kind: KindDeposit, Caller: payer, Currency: cur, Target: beneficiary}
	setAmount(&cmd.Amount, amount)
	_, err := e.submit(cmd)
	return err
}

func (e *Exchange) Withdraw(caller common.Address, cur currency.Currency, amount *uint256.Int) error {
	cmd := &Command{Kind: KindWithdraw, Caller: caller, Currency: cur}
	setAmount(&cmd.Amount, amount)
	_, err := e.submit(cmd)
	return err
}

func (e *Exchange) PlaceLimitOrder(pool currency.PoolID, req orderbook.LimitOrder) (*orderbook.Execution, error) {
	cmd := &Command{
		Kind:        KindPlaceLimit,
		Caller:      req.Owner,
		Pool:        pool,
		Side:        uint8(req.Side),
		TimeInForce: uint8(req.TimeInForce),
		Expiry:      req.Expiry,
	}
	setAmount(&cmd.Price, req.Price)
	setAmount(&cmd.Quantity, req.Quantity)
	setAmount(&cmd.Deposit, req.DepositAmount)
	out, err := e.submit(cmd)
	return out.exec, err
}

func (e *Exchange) PlaceMarketOrder(pool currency.PoolID, req orderbook.MarketOrder) (*orderbook.Execution, error) {
	cmd := &Command{Kind: KindPlaceMarket, Caller: req.Owner, Pool: pool, Side: uint8(req.Side)}
	setAmount(&cmd.Amount, req.Amount)
	setAmount(&cmd.Deposit, req.DepositAmount)
	setAmount(&cmd.MinOut, req.MinOut)
	out, err := e.submit(cmd)
	return out.exec, err
}

func (e *Exchange) Cancel(pool currency.PoolID, caller common.Address, orderID uint64) (orderbook.Order, error) {
	out, err := e.submit(&Command{Kind: KindCancel, Caller: caller, Pool: pool, OrderID: orderID})
	return out.order, err
}

func (e *Exchange) SetFees(caller common.Address, f ledger.Fees) error {
	_, err := e.submit(&Command{Kind: KindSetFees, Caller: caller, Fees: f, FeeField: FeeAll})
	return err
}

func (e *Exchange) SetFeeMaker(caller common.Address, maker uint32) error {
	_, err := e.submit(&Command{Kind: KindSetFees, Caller: caller, Fees: ledger.Fees{Maker: maker}, FeeField: FeeMaker})
	return err
}

func (e *Exchange) SetFeeTaker(caller common.Address, taker uint32) error {
	_, err := e.submit(&Command{Kind: KindSetFees, Caller: caller, Fees: ledger.Fees{Taker: taker}, FeeField: FeeTaker})
	return err
}

func (e *Exchange) SetFeeProtocol(caller common.Address, protocol uint32) error {
	_, err := e.submit(&Command{Kind: KindSetFees, Caller: caller, Fees: ledger.Fees{Protocol: protocol}, FeeField: FeeProtocol})
	return err
}

func (e *Exchange) SetOperator(caller, operator common.Address, allowed bool) error {
	_, err := e.submit(&Command{Kind: KindSetOperator, Caller: caller, Target: operator, Allowed: allowed})
	return err
}

func (e *Exchange) ClaimProtocolFees(caller common.Address, cur currency.Currency) (*uint256.Int, error) {
	out, err := e.submit(&Command{Kind: KindClaimFees, Caller: caller, Currency: cur})
	return out.amount, err
}

func setAmount(dst *uint256.Int, v *uint256.Int) {
	if v != nil {
		dst.Set(v)
	}
}
