package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

type fakeSource struct {
	orders map[string]domain.BrokerOrder
	errs   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		orders: map[string]domain.BrokerOrder{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeSource) GetOrder(_ context.Context, id string) (domain.BrokerOrder, error) {
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return domain.BrokerOrder{}, err
	}
	o, ok := f.orders[id]
	if !ok {
		return domain.BrokerOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func level(i int) *int { return &i }

func order(id string, side domain.OrderSide, price, qty string, placed time.Time) domain.Order {
	return domain.Order{ID: id, Side: side, Price: d(price), Quantity: d(qty), PlacedAt: placed}
}

func TestRegister_Duplicate(t *testing.T) {
	tr := New(testLogger(), 0)
	o := order("a", domain.OrderSideBuy, "100", "1", time.Now())

	require.NoError(t, tr.Register(o))
	err := tr.Register(o)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	require.Equal(t, 1, tr.Len())
}

func TestRegister_EmptyID(t *testing.T) {
	tr := New(testLogger(), 0)
	err := tr.Register(domain.Order{Side: domain.OrderSideBuy})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestReconcile_FilledRemovedOpenKept(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(testLogger(), time.Second)

	buy := order("buy-1", domain.OrderSideBuy, "49750", "0.004", t0)
	buy.Level = level(-1)
	require.NoError(t, tr.Register(buy))
	require.NoError(t, tr.Register(order("buy-2", domain.OrderSideBuy, "49500", "0.004", t0.Add(time.Second))))

	filledAt := t0.Add(time.Hour)
	src := newFakeSource()
	src.orders["buy-1"] = domain.BrokerOrder{
		ID: "buy-1", Side: domain.OrderSideBuy, Status: domain.OrderStatusFilled,
		FilledAvgPrice: d("49750"), FilledQuantity: d("0.004"), FilledAt: &filledAt,
	}
	src.orders["buy-2"] = domain.BrokerOrder{ID: "buy-2", Side: domain.OrderSideBuy, Status: domain.OrderStatusNew}

	res := tr.Reconcile(context.Background(), src)

	require.Len(t, res.Fills, 1)
	f := res.Fills[0]
	assert.Equal(t, "buy-1", f.OrderID)
	assert.Equal(t, domain.OrderSideBuy, f.Side)
	assert.True(t, f.Price.Equal(d("49750")))
	assert.True(t, f.Quantity.Equal(d("0.004")))
	assert.Equal(t, filledAt, f.FilledAt)
	require.NotNil(t, f.Order.Level)
	assert.Equal(t, -1, *f.Order.Level)

	assert.Empty(t, res.Closed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, tr.Len())
	_, ok := tr.Get("buy-2")
	assert.True(t, ok)
}

func TestReconcile_Idempotent(t *testing.T) {
	tr := New(testLogger(), 0)
	require.NoError(t, tr.Register(order("x", domain.OrderSideSell, "50250", "0.004", time.Now())))

	src := newFakeSource()
	src.orders["x"] = domain.BrokerOrder{ID: "x", Status: domain.OrderStatusFilled, FilledAvgPrice: d("50250"), FilledQuantity: d("0.004")}

	first := tr.Reconcile(context.Background(), src)
	second := tr.Reconcile(context.Background(), src)

	require.Len(t, first.Fills, 1)
	require.Empty(t, second.Fills)
	require.Equal(t, 1, src.calls["x"])
}

func TestReconcile_LookupFailureIsolated(t *testing.T) {
	t0 := time.Now()
	tr := New(testLogger(), 0)
	require.NoError(t, tr.Register(order("bad", domain.OrderSideBuy, "100", "1", t0)))
	require.NoError(t, tr.Register(order("good", domain.OrderSideBuy, "99", "1", t0.Add(time.Millisecond))))

	src := newFakeSource()
	src.errs["bad"] = errors.New("connection reset")
	src.orders["good"] = domain.BrokerOrder{ID: "good", Status: domain.OrderStatusFilled, FilledAvgPrice: d("99"), FilledQuantity: d("1")}

	res := tr.Reconcile(context.Background(), src)

	require.Equal(t, 1, res.Failed)
	require.Len(t, res.Fills, 1)
	require.Equal(t, "good", res.Fills[0].OrderID)
	_, stillTracked := tr.Get("bad")
	require.True(t, stillTracked)
}

func TestReconcile_DeadOrdersClosed(t *testing.T) {
	tr := New(testLogger(), 0)
	for _, id := range []string{"c", "e", "r", "p"} {
		require.NoError(t, tr.Register(order(id, domain.OrderSideBuy, "100", "1", time.Now())))
	}

	src := newFakeSource()
	src.orders["c"] = domain.BrokerOrder{ID: "c", Status: domain.OrderStatusCanceled}
	src.orders["e"] = domain.BrokerOrder{ID: "e", Status: domain.OrderStatusExpired}
	src.orders["r"] = domain.BrokerOrder{ID: "r", Status: domain.OrderStatusRejected}
	src.orders["p"] = domain.BrokerOrder{ID: "p", Status: domain.OrderStatusPartiallyFilled}

	res := tr.Reconcile(context.Background(), src)

	require.Empty(t, res.Fills)
	require.Len(t, res.Closed, 3)
	require.Equal(t, 1, tr.Len())
	_, ok := tr.Get("p")
	require.True(t, ok)
}

func TestReconcile_MissingFillDataFallsBack(t *testing.T) {
	tr := New(testLogger(), 0)
	require.NoError(t, tr.Register(order("z", domain.OrderSideBuy, "101.5", "0.25", time.Now())))

	src := newFakeSource()
	src.orders["z"] = domain.BrokerOrder{ID: "z", Status: domain.OrderStatusFilled}

	res := tr.Reconcile(context.Background(), src)

	require.Len(t, res.Fills, 1)
	require.True(t, res.Fills[0].Price.Equal(d("101.5")))
	require.True(t, res.Fills[0].Quantity.Equal(d("0.25")))
	require.Equal(t, domain.OrderSideBuy, res.Fills[0].Side)
}

func TestSnapshotOrderAndCount(t *testing.T) {
	t0 := time.Now()
	tr := New(testLogger(), 0)
	require.NoError(t, tr.Register(order("2", domain.OrderSideSell, "1", "1", t0.Add(time.Second))))
	require.NoError(t, tr.Register(order("1", domain.OrderSideBuy, "1", "1", t0)))
	require.NoError(t, tr.Register(order("3", domain.OrderSideBuy, "1", "1", t0.Add(2*time.Second))))

	snap := tr.Snapshot()
	require.Equal(t, []string{"1", "2", "3"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
	require.Equal(t, 2, tr.Count(domain.OrderSideBuy))
	require.Equal(t, 1, tr.Count(domain.OrderSideSell))

	require.True(t, tr.Remove("2"))
	require.False(t, tr.Remove("2"))
}
