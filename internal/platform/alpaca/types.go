package alpaca

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// Order is an order as returned by the Alpaca trading API. Numeric fields
// arrive as decimal strings and may be null before the order fills.
type Order struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	Qty            string     `json:"qty"`
	LimitPrice     string     `json:"limit_price"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice string     `json:"filled_avg_price"`
	CreatedAt      time.Time  `json:"created_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

// orderRequest is the body of POST /v2/orders.
type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	LimitPrice    string `json:"limit_price"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// account is the subset of GET /v2/account the bot reads.
type account struct {
	Cash        string `json:"cash"`
	BuyingPower string `json:"buying_power"`
	Status      string `json:"status"`
}

type quote struct {
	BidPrice decimal.Decimal `json:"bp"`
	AskPrice decimal.Decimal `json:"ap"`
	BidSize  decimal.Decimal `json:"bs"`
	AskSize  decimal.Decimal `json:"as"`
	Time     time.Time       `json:"t"`
}

type latestQuotes struct {
	Quotes map[string]quote `json:"quotes"`
}

// ToDomain converts o into the broker-neutral representation.
func (o Order) ToDomain() (domain.BrokerOrder, error) {
	out := domain.BrokerOrder{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(strings.ToLower(o.Side)),
		Status:        domain.OrderStatus(strings.ToLower(o.Status)),
		CreatedAt:     o.CreatedAt,
		FilledAt:      o.FilledAt,
	}

	var err error
	if out.Quantity, err = parseDecimal("qty", o.Qty); err != nil {
		return domain.BrokerOrder{}, err
	}
	if out.LimitPrice, err = parseDecimal("limit_price", o.LimitPrice); err != nil {
		return domain.BrokerOrder{}, err
	}
	if out.FilledQuantity, err = parseDecimal("filled_qty", o.FilledQty); err != nil {
		return domain.BrokerOrder{}, err
	}
	if out.FilledAvgPrice, err = parseDecimal("filled_avg_price", o.FilledAvgPrice); err != nil {
		return domain.BrokerOrder{}, err
	}
	return out, nil
}

// parseDecimal treats an empty string as zero.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: parse %s %q: %w", field, s, err)
	}
	return d, nil
}

// NormalizePair converts a six-letter pair such as "BTCUSD" into the
// slashed form "BTC/USD" used by the crypto endpoints. Pairs that already
// contain a slash, or have any other length, are returned unchanged.
func NormalizePair(pair string) string {
	if len(pair) == 6 && !strings.Contains(pair, "/") {
		return pair[:3] + "/" + pair[3:]
	}
	return pair
}
