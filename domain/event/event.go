// Package event defines the records the engine publishes after each
// command. Events are JSON on the wire with amounts as decimal strings.
package event

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"scalex/domain/orderbook"
)

type Type string

const (
	PoolCreated         Type = "pool.created"
	OrderPlaced         Type = "order.placed"
	TradeExecuted       Type = "trade.executed"
	OrderCancelled      Type = "order.cancelled"
	OrderExpired        Type = "order.expired"
	BalanceDeposited    Type = "balance.deposited"
	BalanceWithdrawn    Type = "balance.withdrawn"
	FeesUpdated         Type = "fees.updated"
	ProtocolFeesClaimed Type = "fees.claimed"
	OperatorUpdated     Type = "operator.updated"
)

type Event struct {
	ID    uuid.UUID `json:"id"`
	Seq   uint64    `json:"seq"`
	Index uint16    `json:"index"`
	Type  Type      `json:"type"`
	Time  uint64    `json:"time"`
	Pool  string    `json:"pool,omitempty"`

	Order    *Order    `json:"order,omitempty"`
	Trade    *Trade    `json:"trade,omitempty"`
	Balance  *Balance  `json:"balance,omitempty"`
	Fees     *Fees     `json:"fees,omitempty"`
	PoolInfo *Pool     `json:"poolInfo,omitempty"`
	Operator *Operator `json:"operator,omitempty"`
}

type Order struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Filled      string `json:"filled"`
	TimeInForce string `json:"timeInForce"`
	Expiry      uint64 `json:"expiry,omitempty"`
	Status      string `json:"status"`
}

type Trade struct {
	TakerOrderID uint64 `json:"takerOrderId"`
	MakerOrderID uint64 `json:"makerOrderId"`
	Taker        string `json:"taker"`
	Maker        string `json:"maker"`
	TakerSide    string `json:"takerSide"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	QuoteAmount  string `json:"quoteAmount"`
	TakerFee     string `json:"takerFee"`
	MakerFee     string `json:"makerFee"`
	MakerRebate  string `json:"makerRebate"`
}

type Balance struct {
	User     string `json:"user"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type Fees struct {
	Maker    uint32 `json:"maker"`
	Taker    uint32 `json:"taker"`
	Protocol uint32 `json:"protocol"`
}

type Pool struct {
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	FeeTier      uint32 `json:"feeTier"`
	BaseDecimals uint8  `json:"baseDecimals"`
	Operator     string `json:"operator"`
}

type Operator struct {
	Address string `json:"address"`
	Allowed bool   `json:"allowed"`
}

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("scalex/events"))

// New stamps an event with an id derived from its position in the command
// log, so a replayed command yields the same ids.
func New(seq uint64, index uint16, t Type, time uint64) Event {
	var b [10]byte
	binary.BigEndian.PutUint64(b[:8], seq)
	binary.BigEndian.PutUint16(b[8:], index)
	return Event{ID: uuid.NewSHA1(namespace, b[:]), Seq: seq, Index: index, Type: t, Time: time}
}

// Key is the partition key: the pool when there is one, else the user.
func (e Event) Key() string {
	switch {
	case e.Pool != "":
		return e.Pool
	case e.Balance != nil:
		return e.Balance.User
	default:
		return string(e.Type)
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

func FromOrder(o orderbook.Order) *Order {
	return &Order{
		ID:          o.ID,
		Owner:       o.Owner.Hex(),
		Side:        o.Side.String(),
		Type:        o.Type.String(),
		Price:       o.Price.Dec(),
		Quantity:    o.Quantity.Dec(),
		Filled:      o.Filled.Dec(),
		TimeInForce: o.TimeInForce.String(),
		Expiry:      o.Expiry,
		Status:      o.Status.String(),
	}
}

func FromTrade(t orderbook.Trade) *Trade {
	return &Trade{
		TakerOrderID: t.TakerOrderID,
		MakerOrderID: t.MakerOrderID,
		Taker:        t.Taker.Hex(),
		Maker:        t.Maker.Hex(),
		TakerSide:    t.TakerSide.String(),
		Price:        t.Price.Dec(),
		Quantity:     t.Quantity.Dec(),
		QuoteAmount:  t.QuoteAmount.Dec(),
		TakerFee:     t.TakerFee.Dec(),
		MakerFee:     t.MakerFee.Dec(),
		MakerRebate:  t.MakerRebate.Dec(),
	}
}

func NewBalance(user common.Address, cur string, amount string) *Balance {
	return &Balance{User: user.Hex(), Currency: cur, Amount: amount}
}
