package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side a counter-order is placed on.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus is the broker-reported lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusDoneForDay      OrderStatus = "done_for_day"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusReplaced        OrderStatus = "replaced"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsFilled reports whether the order executed completely.
func (s OrderStatus) IsFilled() bool {
	return s == OrderStatusFilled
}

// IsDead reports whether the order reached a terminal state without
// filling. Such orders can never produce a fill.
func (s OrderStatus) IsDead() bool {
	switch s {
	case OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected, OrderStatusReplaced:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the order is still working on the book.
func (s OrderStatus) IsOpen() bool {
	return !s.IsFilled() && !s.IsDead()
}

// Order is an order the bot has placed and not yet seen resolved. It is
// created once the broker returns an id and is never mutated afterwards.
type Order struct {
	ID            string
	ClientOrderID string
	Side          OrderSide
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	// Level is the grid level index for initial grid orders. Counter-orders
	// carry no level.
	Level    *int
	PlacedAt time.Time
}

// HasLevel reports whether the order belongs to a grid level.
func (o Order) HasLevel() bool {
	return o.Level != nil
}

// OrderRequest describes a limit order to submit to the broker.
type OrderRequest struct {
	Pair          string
	Side          OrderSide
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	ClientOrderID string
}

// BrokerOrder is the broker's view of an order, as returned by order
// placement and status queries.
type BrokerOrder struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Status         OrderStatus
	Quantity       decimal.Decimal
	LimitPrice     decimal.Decimal
	FilledQuantity decimal.Decimal
	FilledAvgPrice decimal.Decimal
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// Fill is a terminal fill observed for a tracked order.
type Fill struct {
	OrderID  string
	Side     OrderSide
	Price    decimal.Decimal
	Quantity decimal.Decimal
	// Order is the tracked metadata the fill was matched against.
	Order    Order
	FilledAt time.Time
}

// Notional returns price * quantity.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}
