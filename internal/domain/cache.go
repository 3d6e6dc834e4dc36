package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache stores the latest quote per pair.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	// Hold acquires key and keeps it alive until ctx ends or release is
	// called.
	Hold(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	// Tail returns the newest count stream entries, oldest first.
	Tail(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
