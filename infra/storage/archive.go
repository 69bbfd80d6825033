// Package storage archives published events into a SQL database so trade
// history and order states can be queried without touching the engine.
package storage

import (
	"fmt"

	"scalex/domain/event"
	"scalex/infra/outbox"
)

// EventRow is one archived event, keyed by its position in the command log.
type EventRow struct {
	Seq     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Index   uint16 `gorm:"column:idx;primaryKey;autoIncrement:false"`
	ID      string `gorm:"uniqueIndex;size:36"`
	Type    string `gorm:"index;size:32"`
	Pool    string `gorm:"index;size:66"`
	Time    uint64
	Payload string
}

func (EventRow) TableName() string { return "events" }

type TradeRow struct {
	EventID      string `gorm:"primaryKey;size:36"`
	Seq          uint64 `gorm:"index"`
	Index        uint16 `gorm:"column:idx"`
	Pool         string `gorm:"index:idx_trades_pool_time;size:66"`
	Time         uint64 `gorm:"index:idx_trades_pool_time"`
	TakerOrderID uint64
	MakerOrderID uint64
	Taker        string `gorm:"index;size:42"`
	Maker        string `gorm:"index;size:42"`
	TakerSide    string `gorm:"size:4"`
	Price        string
	Quantity     string
	QuoteAmount  string
	TakerFee     string
	MakerFee     string
	MakerRebate  string
}

func (TradeRow) TableName() string { return "trades" }

// OrderRow holds the latest known state of an order.
type OrderRow struct {
	Pool        string `gorm:"primaryKey;size:66"`
	OrderID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Owner       string `gorm:"index;size:42"`
	Side        string `gorm:"size:4"`
	Type        string `gorm:"size:8"`
	Price       string
	Quantity    string
	Filled      string
	TimeInForce string `gorm:"size:16"`
	Expiry      uint64
	Status      string `gorm:"index;size:16"`
	UpdatedSeq  uint64
}

func (OrderRow) TableName() string { return "orders" }

// Rows is what one outbox entry turns into.
type Rows struct {
	Event EventRow
	Trade *TradeRow
	Order *OrderRow
}

// Decode maps an outbox entry to archive rows.
func Decode(e outbox.Entry) (Rows, error) {
	ev, err := event.Unmarshal(e.Payload)
	if err != nil {
		return Rows{}, fmt.Errorf("storage: decode event %d/%d: %w", e.Seq, e.Index, err)
	}
	r := Rows{Event: EventRow{
		Seq:     e.Seq,
		Index:   e.Index,
		ID:      ev.ID.String(),
		Type:    string(ev.Type),
		Pool:    ev.Pool,
		Time:    ev.Time,
		Payload: string(e.Payload),
	}}
	if t := ev.Trade; t != nil {
		r.Trade = &TradeRow{
			EventID:      r.Event.ID,
			Seq:          ev.Seq,
			Index:        ev.Index,
			Pool:         ev.Pool,
			Time:         ev.Time,
			TakerOrderID: t.TakerOrderID,
			MakerOrderID: t.MakerOrderID,
			Taker:        t.Taker,
			Maker:        t.Maker,
			TakerSide:    t.TakerSide,
			Price:        t.Price,
			Quantity:     t.Quantity,
			QuoteAmount:  t.QuoteAmount,
			TakerFee:     t.TakerFee,
			MakerFee:     t.MakerFee,
			MakerRebate:  t.MakerRebate,
		}
	}
	if o := ev.Order; o != nil {
		r.Order = &OrderRow{
			Pool:        ev.Pool,
			OrderID:     o.ID,
			Owner:       o.Owner,
			Side:        o.Side,
			Type:        o.Type,
			Price:       o.Price,
			Quantity:    o.Quantity,
			Filled:      o.Filled,
			TimeInForce: o.TimeInForce,
			Expiry:      o.Expiry,
			Status:      o.Status,
			UpdatedSeq:  ev.Seq,
		}
	}
	return r, nil
}
