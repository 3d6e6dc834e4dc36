package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SessionReport summarises one bot run. It is written once at shutdown and
// never read back by the bot.
type SessionReport struct {
	ID          string            `json:"id"`
	Pair        string            `json:"pair"`
	StartedAt   time.Time         `json:"started_at"`
	StoppedAt   time.Time         `json:"stopped_at"`
	Settings    map[string]string `json:"settings"`
	Inventory   decimal.Decimal   `json:"inventory"`
	TotalProfit decimal.Decimal   `json:"total_profit"`
	Lots        []InventoryLot    `json:"lots"`
	Cycles      []CompletedCycle  `json:"cycles"`
	OpenOrders  []Order           `json:"open_orders"`
}

// SessionArchiver persists session reports and returns the object key.
type SessionArchiver interface {
	Archive(ctx context.Context, r SessionReport) (string, error)
}
