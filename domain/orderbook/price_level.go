package orderbook

import "github.com/holiman/uint256"

// PriceLevel is a FIFO queue at a single price. Volume is the sum of the
// remaining quantities of the queued orders.
type PriceLevel struct {
	Price uint256.Int

	head *Order
	tail *Order

	Volume uint256.Int
	Count  int
}

func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.Volume.Add(&p.Volume, o.Remaining())
	p.Count++
}

// Remove unlinks o from anywhere in the queue.
func (p *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	p.Volume.Sub(&p.Volume, o.Remaining())
	p.Count--
}

// fill records q of a queued order as traded.
func (p *PriceLevel) fill(q *uint256.Int) {
	p.Volume.Sub(&p.Volume, q)
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

func (p *PriceLevel) Head() *Order {
	return p.head
}
