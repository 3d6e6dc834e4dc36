// Package events fans bot activity out to optional side channels: the Redis
// signal bus and the Postgres audit journal. Nothing here is read back by the
// bot.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// Kind names an event type.
type Kind string

const (
	KindGridInitialized Kind = "grid_initialized"
	KindOrderPlaced     Kind = "order_placed"
	KindOrderFailed     Kind = "order_failed"
	KindOrderFilled     Kind = "order_filled"
	KindOrderClosed     Kind = "order_closed"
	KindCycleCompleted  Kind = "cycle_completed"
	KindBotStopped      Kind = "bot_stopped"
)

const (
	// Channel is the pub/sub channel live events are published on.
	Channel = "ch:grid"
	// Stream is the durable stream every event is appended to.
	Stream = "stream:grid"
)

// Event is a single bot activity record.
type Event struct {
	Kind     Kind                   `json:"kind"`
	Pair     string                 `json:"pair"`
	Time     time.Time              `json:"time"`
	OrderID  string                 `json:"order_id,omitempty"`
	Side     domain.OrderSide       `json:"side,omitempty"`
	Price    decimal.Decimal        `json:"price"`
	Quantity decimal.Decimal        `json:"quantity"`
	Status   string                 `json:"status,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Cycle    *domain.CompletedCycle `json:"cycle,omitempty"`
}

// Fields flattens e into an audit detail map.
func (e Event) Fields() map[string]any {
	m := map[string]any{
		"pair": e.Pair,
		"time": e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.OrderID != "" {
		m["order_id"] = e.OrderID
	}
	if e.Side != "" {
		m["side"] = string(e.Side)
	}
	if !e.Price.IsZero() {
		m["price"] = e.Price.String()
	}
	if !e.Quantity.IsZero() {
		m["quantity"] = e.Quantity.String()
	}
	if e.Status != "" {
		m["status"] = e.Status
	}
	if e.Message != "" {
		m["message"] = e.Message
	}
	if e.Cycle != nil {
		m["profit"] = e.Cycle.Profit.String()
		m["cycle_id"] = e.Cycle.ID
	}
	return m
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Sink

// Publish implements Sink. A failing sink does not stop delivery to the
// remaining ones.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BusSink publishes events as JSON on a signal bus channel and appends them
// to a stream.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewBusSink creates a BusSink on the default channel and stream.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus, channel: Channel, stream: Stream}
}

// Publish implements Sink.
func (b *BusSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", e.Kind, err)
	}
	if err := b.bus.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Kind, err)
	}
	if err := b.bus.StreamAppend(ctx, b.stream, payload); err != nil {
		return fmt.Errorf("events: stream %s: %w", e.Kind, err)
	}
	return nil
}

// AuditSink journals every event to the audit log and completed cycles to the
// cycle store. Either store may be nil.
type AuditSink struct {
	audit  domain.AuditStore
	cycles domain.CycleStore
}

// NewAuditSink creates an AuditSink.
func NewAuditSink(audit domain.AuditStore, cycles domain.CycleStore) *AuditSink {
	return &AuditSink{audit: audit, cycles: cycles}
}

// Publish implements Sink.
func (a *AuditSink) Publish(ctx context.Context, e Event) error {
	var errs []error
	if a.audit != nil {
		if err := a.audit.Log(ctx, string(e.Kind), e.Fields()); err != nil {
			errs = append(errs, fmt.Errorf("events: audit %s: %w", e.Kind, err))
		}
	}
	if a.cycles != nil && e.Kind == KindCycleCompleted && e.Cycle != nil {
		if err := a.cycles.Insert(ctx, *e.Cycle); err != nil {
			errs = append(errs, fmt.Errorf("events: insert cycle: %w", err))
		}
	}
	return errors.Join(errs...)
}
