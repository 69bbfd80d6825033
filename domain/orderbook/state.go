package orderbook

import (
	"sort"

	"github.com/holiman/uint256"
)

// State is a plain copy of a book for snapshots.
type State struct {
	Config Config
	LastID uint64
	Orders []OrderState
}

type OrderState struct {
	Order
	Locked uint256.Int
}

// Export copies every indexed order, open or terminal, in id order.
func (b *Book) Export() State {
	s := State{Config: b.cfg, LastID: b.lastID, Orders: make([]OrderState, 0, len(b.orders))}
	for _, o := range b.orders {
		c := *o
		c.next, c.prev = nil, nil
		s.Orders = append(s.Orders, OrderState{Order: c, Locked: o.locked})
	}
	sort.Slice(s.Orders, func(i, j int) bool { return s.Orders[i].ID < s.Orders[j].ID })
	return s
}

// Restore builds a book from s. Open orders are queued in id order, which
// is their original arrival order.
func Restore(s State, settler Settler, clock Clock) (*Book, error) {
	b, err := New(s.Config, settler, clock)
	if err != nil {
		return nil, err
	}
	b.lastID = s.LastID
	sort.Slice(s.Orders, func(i, j int) bool { return s.Orders[i].ID < s.Orders[j].ID })
	for _, st := range s.Orders {
		o := st.Order
		o.locked = st.Locked
		o.next, o.prev = nil, nil
		b.orders[o.ID] = &o
		if o.Status == Open {
			b.rest(&o)
		}
	}
	return b, nil
}
