package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/bot"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/server/handler"
)

type fakeBot struct {
	snap   bot.Snapshot
	orders []domain.Order
	cycles []domain.CompletedCycle
}

func (f *fakeBot) Snapshot() bot.Snapshot { return f.snap }
func (f *fakeBot) Orders() []domain.Order { return f.orders }
func (f *fakeBot) Cycles() []domain.CompletedCycle { return f.cycles }

type fakeBus struct {
	msgs []domain.StreamMessage
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }
func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}
func (b *fakeBus) Tail(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	if count < len(b.msgs) {
		return b.msgs[len(b.msgs)-count:], nil
	}
	return b.msgs, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, apiKey string) (http.Handler, *fakeBot) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lvl := -1
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fb := &fakeBot{
		snap: bot.Snapshot{State: "running", Pair: "BTCUSD", Inventory: dec("0.004")},
		orders: []domain.Order{
			{ID: "b1", Side: domain.OrderSideBuy, Price: dec("49500"), Quantity: dec("0.004"), Level: &lvl},
			{ID: "s1", Side: domain.OrderSideSell, Price: dec("50250"), Quantity: dec("0.004")},
		},
		cycles: []domain.CompletedCycle{
			{ID: "c1", Profit: dec("1"), Timestamp: t0},
			{ID: "c2", Profit: dec("2"), Timestamp: t0.Add(time.Hour)},
		},
	}
	bus := &fakeBus{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"kind":"order_placed"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"kind":"order_filled"}`)},
	}}

	reg := prometheus.NewRegistry()
	bot.NewMetrics(reg)

	srv := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:  handler.NewHealthHandler(func() string { return fb.snap.State }),
		Status:  handler.NewStatusHandler(fb, logger),
		Cycles:  handler.NewCycleHandler(fb, nil, "BTCUSD", logger),
		Events:  handler.NewEventHandler(bus, "stream:grid", logger),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil, logger)
	return srv.Handler(), fb
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h, fb := newTestServer(t, "")

	rec := get(t, h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode(t, rec)["state"])

	fb.snap.State = "stopped"
	rec = get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	h, _ := newTestServer(t, "")
	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "BTCUSD", body["pair"])
	assert.Equal(t, "0.004", body["inventory"])
}

func TestOrders(t *testing.T) {
	h, _ := newTestServer(t, "")

	body := decode(t, get(t, h, "/api/orders"))
	assert.Equal(t, float64(2), body["count"])

	body = decode(t, get(t, h, "/api/orders?side=sell"))
	assert.Equal(t, float64(1), body["count"])
	orders := body["orders"].([]any)
	assert.Equal(t, "s1", orders[0].(map[string]any)["id"])
	assert.NotContains(t, orders[0].(map[string]any), "level")

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/orders?side=hold").Code)
}

func TestCyclesNewestFirst(t *testing.T) {
	h, _ := newTestServer(t, "")

	body := decode(t, get(t, h, "/api/cycles"))
	cycles := body["cycles"].([]any)
	require.Len(t, cycles, 2)
	assert.Equal(t, "c2", cycles[0].(map[string]any)["id"])
	assert.Equal(t, "session", body["source"])

	body = decode(t, get(t, h, "/api/cycles?since=2025-01-01T00:30:00Z"))
	assert.Len(t, body["cycles"].([]any), 1)

	body = decode(t, get(t, h, "/api/cycles?offset=5"))
	assert.Empty(t, body["cycles"].([]any))
}

func TestEventsSkipsInvalidPayloads(t *testing.T) {
	h, _ := newTestServer(t, "")

	body := decode(t, get(t, h, "/api/events?limit=10"))
	evs := body["events"].([]any)
	require.Len(t, evs, 2)
	assert.Equal(t, "3-0", evs[1].(map[string]any)["id"])
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, "secret")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cryptobear_tracked_orders"))
}

func TestAuth(t *testing.T) {
	h, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusOK, get(t, h, "/api/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/status").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/status", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status", "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status?api_key=secret").Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
