package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryLot is a quantity of base asset bought at a specific price and
// held until matched against a later sell.
type InventoryLot struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

// CompletedCycle records a sell fill matched against one or more lots.
type CompletedCycle struct {
	ID        string          `json:"id"`
	Pair      string          `json:"pair"`
	Profit    decimal.Decimal `json:"profit"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

// Result classifies the cycle outcome for metrics and reporting.
func (c CompletedCycle) Result() string {
	switch c.Profit.Sign() {
	case 1:
		return "win"
	case -1:
		return "loss"
	default:
		return "flat"
	}
}
