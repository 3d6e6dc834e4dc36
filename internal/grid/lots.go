package grid

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// LotQueue is a FIFO of inventory lots: buys are pushed at the back, sells
// consume from the front. The zero value is an empty queue.
type LotQueue struct {
	lots []domain.InventoryLot
	head int
}

// NewLotQueue returns a queue holding lots in the given order, oldest first.
func NewLotQueue(lots ...domain.InventoryLot) *LotQueue {
	q := &LotQueue{}
	for _, l := range lots {
		q.PushBack(l)
	}
	return q
}

// PushBack appends a lot as the newest entry.
func (q *LotQueue) PushBack(lot domain.InventoryLot) {
	q.lots = append(q.lots, lot)
}

// Front returns the oldest lot without removing it.
func (q *LotQueue) Front() (domain.InventoryLot, bool) {
	if q.Len() == 0 {
		return domain.InventoryLot{}, false
	}
	return q.lots[q.head], true
}

// PopFront removes and returns the oldest lot.
func (q *LotQueue) PopFront() (domain.InventoryLot, bool) {
	lot, ok := q.Front()
	if !ok {
		return lot, false
	}
	q.lots[q.head] = domain.InventoryLot{}
	q.head++
	if q.head == len(q.lots) {
		q.lots = q.lots[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 >= len(q.lots) {
		n := copy(q.lots, q.lots[q.head:])
		q.lots = q.lots[:n]
		q.head = 0
	}
	return lot, true
}

// reduceFront decrements the oldest lot's quantity in place.
func (q *LotQueue) reduceFront(qty decimal.Decimal) {
	q.lots[q.head].Quantity = q.lots[q.head].Quantity.Sub(qty)
}

// Len returns the number of lots held.
func (q *LotQueue) Len() int {
	return len(q.lots) - q.head
}

// Total returns the summed quantity of all lots.
func (q *LotQueue) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range q.lots[q.head:] {
		total = total.Add(l.Quantity)
	}
	return total
}

// Lots returns a copy of the held lots, oldest first.
func (q *LotQueue) Lots() []domain.InventoryLot {
	out := make([]domain.InventoryLot, q.Len())
	copy(out, q.lots[q.head:])
	return out
}

// Clone returns an independent copy of the queue.
func (q *LotQueue) Clone() *LotQueue {
	return NewLotQueue(q.Lots()...)
}

// MatchLeg is one lot's contribution to a sell match.
type MatchLeg struct {
	BuyPrice decimal.Decimal
	BoughtAt time.Time
	Quantity decimal.Decimal
	Profit   decimal.Decimal
}

// Match is the outcome of matching one sell against the lot queue.
type Match struct {
	Profit decimal.Decimal
	// Matched is the sell quantity covered by lots.
	Matched decimal.Decimal
	// Unmatched is the sell quantity left over after the queue ran dry.
	Unmatched decimal.Decimal
	Legs      []MatchLeg
}

// Oversold reports whether the sell exceeded the held lots.
func (m Match) Oversold() bool {
	return m.Unmatched.IsPositive()
}

// MatchSell consumes lots from the front of q against a sell of qty at
// price and returns the realised profit. Fully consumed lots are removed;
// a partially consumed lot keeps its remainder at the front. If q runs out
// before qty is covered, matching stops and the remainder is reported in
// Unmatched.
func MatchSell(q *LotQueue, price, qty decimal.Decimal) Match {
	m := Match{
		Profit:    decimal.Zero,
		Matched:   decimal.Zero,
		Unmatched: qty,
	}

	for m.Unmatched.IsPositive() {
		lot, ok := q.Front()
		if !ok {
			break
		}

		matched := decimal.Min(m.Unmatched, lot.Quantity)
		profit := price.Sub(lot.Price).Mul(matched)

		m.Legs = append(m.Legs, MatchLeg{
			BuyPrice: lot.Price,
			BoughtAt: lot.Timestamp,
			Quantity: matched,
			Profit:   profit,
		})
		m.Profit = m.Profit.Add(profit)
		m.Matched = m.Matched.Add(matched)
		m.Unmatched = m.Unmatched.Sub(matched)

		if matched.Equal(lot.Quantity) {
			q.PopFront()
		} else {
			q.reduceFront(matched)
		}
	}

	return m
}
