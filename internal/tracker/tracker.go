// Package tracker keeps the set of orders the bot has placed and not yet
// seen resolved, and turns broker status queries into fill events.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// StatusSource answers single-order status queries.
type StatusSource interface {
	GetOrder(ctx context.Context, id string) (domain.BrokerOrder, error)
}

// Closed is a tracked order that ended without filling.
type Closed struct {
	Order  domain.Order
	Status domain.OrderStatus
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Fills  []domain.Fill
	Closed []Closed
	// Failed counts orders whose status could not be fetched. They stay
	// tracked and are retried on the next pass.
	Failed int
}

// Tracker maps broker order ids to the metadata recorded at placement.
// Mutations are expected from a single goroutine; reads are safe from any.
type Tracker struct {
	mu          sync.RWMutex
	orders      map[string]domain.Order
	callTimeout time.Duration
	logger      *slog.Logger
}

// New creates an empty Tracker. When callTimeout is positive every status
// query runs under its own deadline.
func New(logger *slog.Logger, callTimeout time.Duration) *Tracker {
	return &Tracker{
		orders:      make(map[string]domain.Order),
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "tracker")),
	}
}

// Register starts tracking o. Ids are unique; registering one twice
// returns domain.ErrAlreadyExists.
func (t *Tracker) Register(o domain.Order) error {
	if o.ID == "" {
		return fmt.Errorf("tracker: register: empty order id: %w", domain.ErrInvalidOrder)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[o.ID]; ok {
		return fmt.Errorf("tracker: register %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	if o.PlacedAt.IsZero() {
		o.PlacedAt = time.Now().UTC()
	}
	t.orders[o.ID] = o
	return nil
}

// Remove stops tracking id and reports whether it was tracked.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.orders[id]
	delete(t.orders, id)
	return ok
}

// Get returns the tracked order for id.
func (t *Tracker) Get(id string) (domain.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	o, ok := t.orders[id]
	return o, ok
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}

// Count returns the number of tracked orders on side.
func (t *Tracker) Count(side domain.OrderSide) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, o := range t.orders {
		if o.Side == side {
			n++
		}
	}
	return n
}

// Snapshot returns the tracked orders in placement order.
func (t *Tracker) Snapshot() []domain.Order {
	t.mu.RLock()
	out := make([]domain.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// Reconcile queries src for every tracked order. Filled orders are removed
// and returned as fills; canceled, expired or rejected orders are removed
// and returned in Closed; everything else stays tracked. A failed lookup is
// logged and skipped without affecting the remaining orders. Every tracked
// order is queried; callers that must not be interrupted pass a context
// without cancellation.
func (t *Tracker) Reconcile(ctx context.Context, src StatusSource) Result {
	var res Result

	for _, o := range t.Snapshot() {
		bo, err := t.query(ctx, src, o.ID)
		if err != nil {
			res.Failed++
			t.logger.ErrorContext(ctx, "error checking order",
				slog.String("order_id", o.ID),
				slog.String("side", string(o.Side)),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch {
		case bo.Status.IsFilled():
			if !t.Remove(o.ID) {
				continue
			}
			res.Fills = append(res.Fills, t.toFill(ctx, o, bo))

		case bo.Status.IsDead():
			if !t.Remove(o.ID) {
				continue
			}
			t.logger.WarnContext(ctx, "tracked order closed without fill",
				slog.String("order_id", o.ID),
				slog.String("status", string(bo.Status)),
			)
			res.Closed = append(res.Closed, Closed{Order: o, Status: bo.Status})
		}
	}

	sort.SliceStable(res.Fills, func(i, j int) bool {
		return res.Fills[i].FilledAt.Before(res.Fills[j].FilledAt)
	})
	return res
}

func (t *Tracker) query(ctx context.Context, src StatusSource, id string) (domain.BrokerOrder, error) {
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}
	return src.GetOrder(ctx, id)
}

// toFill builds the fill event, falling back to the tracked price and
// quantity when the broker omits them.
func (t *Tracker) toFill(ctx context.Context, o domain.Order, bo domain.BrokerOrder) domain.Fill {
	f := domain.Fill{
		OrderID:  o.ID,
		Side:     o.Side,
		Price:    bo.FilledAvgPrice,
		Quantity: bo.FilledQuantity,
		Order:    o,
		FilledAt: time.Now().UTC(),
	}
	if bo.Side.Valid() {
		f.Side = bo.Side
	}
	if bo.FilledAt != nil {
		f.FilledAt = *bo.FilledAt
	}
	if !f.Price.IsPositive() {
		t.logger.WarnContext(ctx, "fill missing average price, using limit price",
			slog.String("order_id", o.ID),
		)
		f.Price = o.Price
	}
	if !f.Quantity.IsPositive() {
		f.Quantity = o.Quantity
	}
	return f
}
