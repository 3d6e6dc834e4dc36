package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Broker is the brokerage the bot trades against. Every call is a single
// remote round trip; implementations must honour ctx deadlines.
type Broker interface {
	GetQuote(ctx context.Context, pair string) (decimal.Decimal, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (BrokerOrder, error)
	GetOrder(ctx context.Context, id string) (BrokerOrder, error)
	ListOrders(ctx context.Context, status string, limit int) ([]BrokerOrder, error)
	CancelOrder(ctx context.Context, id string) error
	CancelAllOrders(ctx context.Context) error
}
