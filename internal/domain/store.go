package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// CycleStore journals completed cycles. It is write-mostly; the bot never
// reads it back to restore state.
type CycleStore interface {
	Insert(ctx context.Context, c CompletedCycle) error
	ListRecent(ctx context.Context, pair string, opts ListOpts) ([]CompletedCycle, error)
}
