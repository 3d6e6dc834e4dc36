package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/bot"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/grid"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeSource struct {
	price   decimal.Decimal
	balance decimal.Decimal
	orders  map[string][]domain.BrokerOrder
	err     error
}

func (f *fakeSource) GetQuote(context.Context, string) (decimal.Decimal, error) {
	return f.price, f.err
}

func (f *fakeSource) GetBalance(context.Context) (decimal.Decimal, error) {
	return f.balance, f.err
}

func (f *fakeSource) ListOrders(_ context.Context, status string, _ int) ([]domain.BrokerOrder, error) {
	return f.orders[status], f.err
}

type captureNotifier struct {
	event string
	msg   string
	err   error
}

func (c *captureNotifier) Notify(_ context.Context, event, _, msg string) error {
	c.event, c.msg = event, msg
	return c.err
}

var base = time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)

func filledOrder(id string, side domain.OrderSide, price, qty string, minute int) domain.BrokerOrder {
	at := base.Add(time.Duration(minute) * time.Minute)
	return domain.BrokerOrder{
		ID:             id,
		Side:           side,
		Status:         domain.OrderStatusFilled,
		Quantity:       dec(qty),
		LimitPrice:     dec(price),
		FilledQuantity: dec(qty),
		FilledAvgPrice: dec(price),
		CreatedAt:      at.Add(-time.Minute),
		FilledAt:       &at,
	}
}

func openOrder(id string, side domain.OrderSide, price string) domain.BrokerOrder {
	return domain.BrokerOrder{
		ID:         id,
		Side:       side,
		Status:     domain.OrderStatusNew,
		Quantity:   dec("0.004"),
		LimitPrice: dec(price),
		CreatedAt:  base,
	}
}

func TestAnalyzeProfitsFIFO(t *testing.T) {
	orders := []domain.BrokerOrder{
		filledOrder("s1", domain.OrderSideSell, "105", "2", 10),
		filledOrder("b2", domain.OrderSideBuy, "102", "2", 2),
		filledOrder("b1", domain.OrderSideBuy, "100", "1", 1),
		{ID: "c1", Side: domain.OrderSideBuy, Status: domain.OrderStatusCanceled},
	}

	a := AnalyzeProfits(orders)
	assert.Len(t, a.Buys, 2)
	assert.Len(t, a.Sells, 1)
	require.Len(t, a.Cycles, 2)
	assert.True(t, a.Cycles[0].BuyPrice.Equal(dec("100")))
	assert.True(t, a.Cycles[0].Profit.Equal(dec("5")))
	assert.True(t, a.Cycles[1].BuyPrice.Equal(dec("102")))
	assert.True(t, a.Cycles[1].Quantity.Equal(dec("1")))
	assert.True(t, a.Total.Equal(dec("8")))
	assert.True(t, a.Unmatched.IsZero())
	assert.Equal(t, "5.00", a.Cycles[0].Pct.StringFixed(2))
}

func TestAnalyzeProfitsMatchesMatcher(t *testing.T) {
	orders := []domain.BrokerOrder{
		filledOrder("b1", domain.OrderSideBuy, "49750", "0.004", 1),
		filledOrder("s1", domain.OrderSideSell, "50250", "0.004", 2),
	}
	a := AnalyzeProfits(orders)

	q := grid.NewLotQueue(domain.InventoryLot{Price: dec("49750"), Quantity: dec("0.004")})
	m := grid.MatchSell(q, dec("50250"), dec("0.004"))
	assert.True(t, a.Total.Equal(m.Profit))
}

func TestProfitsReport(t *testing.T) {
	src := &fakeSource{orders: map[string][]domain.BrokerOrder{
		StatusClosed: {
			filledOrder("b1", domain.OrderSideBuy, "100", "1", 1),
			filledOrder("s1", domain.OrderSideSell, "105", "1", 2),
		},
	}}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Profits(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "FILLED ORDERS ANALYSIS")
	assert.Contains(t, out, "Total filled orders: 2")
	assert.Contains(t, out, "Cycle #1:")
	assert.Contains(t, out, "Profit: $5.00 (+5.00%)")
	assert.Contains(t, out, "TOTAL REALIZED PROFIT: $5.00")
}

func TestProfitsReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&fakeSource{}, "BTCUSD", &buf).Profits(context.Background()))
	assert.Contains(t, buf.String(), "No filled orders yet.")
}

func TestProfitsReportNoCycles(t *testing.T) {
	src := &fakeSource{orders: map[string][]domain.BrokerOrder{
		StatusClosed: {filledOrder("b1", domain.OrderSideBuy, "100", "1", 1)},
	}}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Profits(context.Background()))
	assert.Contains(t, buf.String(), "No completed buy->sell cycles yet.")
}

func TestOrdersReport(t *testing.T) {
	src := &fakeSource{orders: map[string][]domain.BrokerOrder{
		StatusOpen: {openOrder("abcdef123456", domain.OrderSideBuy, "49750")},
	}}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Orders(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "Open orders: 1")
	assert.Contains(t, out, "$49,750.00")
	assert.Contains(t, out, "(ID: abcdef12...)")
}

func TestPriceReport(t *testing.T) {
	src := &fakeSource{
		price: dec("50000"),
		orders: map[string][]domain.BrokerOrder{
			StatusOpen: {
				openOrder("s2", domain.OrderSideSell, "50500"),
				openOrder("b1", domain.OrderSideBuy, "49750"),
				openOrder("s1", domain.OrderSideSell, "50250"),
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Price(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "Current BTCUSD Price: $50,000.00")
	assert.Contains(t, out, "Open SELL orders: 2")
	assert.Contains(t, out, "(needs +0.50%)")
	assert.Contains(t, out, "(needs +1.00%)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("50,250.00")), bytes.Index(buf.Bytes(), []byte("50,500.00")))
}

func TestActivityReport(t *testing.T) {
	src := &fakeSource{
		price:   dec("50000"),
		balance: dec("9800"),
		orders: map[string][]domain.BrokerOrder{
			StatusAll: {
				filledOrder("b1", domain.OrderSideBuy, "49750", "0.004", 5),
				openOrder("s1", domain.OrderSideSell, "50250"),
				{ID: "c1", Side: domain.OrderSideBuy, Status: domain.OrderStatusCanceled, Quantity: dec("0.004"), LimitPrice: dec("49500"), CreatedAt: base},
			},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Activity(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "Total orders created: 3")
	assert.Contains(t, out, "canceled       :   1")
	assert.Contains(t, out, "[X] [2025-01-02 03:04] BUY")
	assert.Contains(t, out, "-> Filled: 2025-01-02 03:05")
	assert.Contains(t, out, "Account Balance:   $9,800.00")
	assert.Contains(t, out, "Open Orders: 1 (0 buys, 1 sells)")
	assert.Contains(t, out, "Filled Orders: 1 (1 buys, 0 sells)")
	assert.Contains(t, out, "Accumulated Position: 0.004000 BTCUSD ($199.00 invested)")
}

func TestStatusSendsMessage(t *testing.T) {
	src := &fakeSource{
		price:   dec("50000"),
		balance: dec("10000"),
		orders:  map[string][]domain.BrokerOrder{StatusOpen: {openOrder("b1", domain.OrderSideBuy, "49750")}},
	}
	n := &captureNotifier{}
	var buf bytes.Buffer
	require.NoError(t, New(src, "BTCUSD", &buf).Status(context.Background(), n))

	assert.Equal(t, "status", n.event)
	assert.Contains(t, n.msg, "💰 BTCUSD: $50,000.00")
	assert.Contains(t, n.msg, "📋 Open orders: 1")
	assert.Contains(t, buf.String(), "[OK] Status report sent")
}

func TestStatusNotifyFailure(t *testing.T) {
	src := &fakeSource{price: dec("1"), balance: dec("1")}
	n := &captureNotifier{err: errors.New("down")}
	var buf bytes.Buffer
	err := New(src, "BTCUSD", &buf).Status(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestReportsPropagateSourceErrors(t *testing.T) {
	src := &fakeSource{err: domain.ErrUnauthorized}
	r := New(src, "BTCUSD", &bytes.Buffer{})
	ctx := context.Background()

	assert.ErrorIs(t, r.Orders(ctx), domain.ErrUnauthorized)
	assert.ErrorIs(t, r.Price(ctx), domain.ErrUnauthorized)
	assert.ErrorIs(t, r.Profits(ctx), domain.ErrUnauthorized)
	assert.ErrorIs(t, r.Activity(ctx), domain.ErrUnauthorized)
}

func TestGrid(t *testing.T) {
	lvl := -1
	snap := bot.Snapshot{Levels: grid.NewPlanner(dec("0.005"), 4, dec("0.02")).ComputeLevels(dec("50000"))}
	orders := []domain.Order{{ID: "a", Side: domain.OrderSideBuy, Price: dec("49750"), Level: &lvl}}

	var buf bytes.Buffer
	require.NoError(t, Grid(&buf, snap, orders))
	out := buf.String()
	assert.Contains(t, out, "Active orders: 1")
	assert.Contains(t, out, "Grid center: $50,000.00")
	assert.Contains(t, out, "(level -1)")
}

func TestDistance(t *testing.T) {
	assert.True(t, Distance(dec("100"), dec("110")).Equal(dec("10")))
	assert.True(t, Distance(decimal.Zero, dec("110")).IsZero())
	assert.Equal(t, "-1.50", signedPct(dec("-1.5")))
	assert.Equal(t, "+0.00", signedPct(decimal.Zero))
}
