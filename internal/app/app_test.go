package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/config"
	"github.com/abelprasad/CryptoBear/internal/crypto"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/notify"
)

type fakeBroker struct {
	mu        sync.Mutex
	price     decimal.Decimal
	balance   decimal.Decimal
	open      []domain.BrokerOrder
	placed    []domain.OrderRequest
	cancelled bool
}

func (f *fakeBroker) GetQuote(context.Context, string) (decimal.Decimal, error) { return f.price, nil }

func (f *fakeBroker) GetBalance(context.Context) (decimal.Decimal, error) { return f.balance, nil }

func (f *fakeBroker) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return domain.BrokerOrder{
		ID:            fmt.Sprintf("order-%d", len(f.placed)),
		ClientOrderID: req.ClientOrderID,
		Side:          req.Side,
		Status:        domain.OrderStatusNew,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
	}, nil
}

func (f *fakeBroker) GetOrder(_ context.Context, id string) (domain.BrokerOrder, error) {
	return domain.BrokerOrder{ID: id, Status: domain.OrderStatusNew}, nil
}

func (f *fakeBroker) ListOrders(_ context.Context, status string, _ int) ([]domain.BrokerOrder, error) {
	if status == "open" {
		return f.open, nil
	}
	return nil, nil
}

func (f *fakeBroker) CancelOrder(context.Context, string) error { return nil }

func (f *fakeBroker) CancelAllOrders(context.Context) error {
	f.cancelled = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(b domain.Broker) *Dependencies {
	return &Dependencies{
		Broker:   b,
		Notifier: notify.NewNotifier(nil, nil, testLogger()),
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger(), io.Discard)

	err := a.Run(context.Background(), "trade", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported command")
}

func TestEncryptSecretMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Broker.APISecret = "alpaca-secret"
	cfg.Broker.SecretPassword = "hunter2"
	path := filepath.Join(t.TempDir(), "secret.json")

	var out bytes.Buffer
	a := New(&cfg, testLogger(), &out)
	require.NoError(t, a.Run(context.Background(), CmdEncryptSecret, []string{path}))
	assert.Contains(t, out.String(), "[OK] Encrypted secret written to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	secret, err := crypto.DecryptSecret(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alpaca-secret", secret)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptSecretModeErrors(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger(), io.Discard)
	assert.ErrorContains(t, a.EncryptSecretMode(nil), "output path required")

	cfg.Broker.EncryptedSecretPath = filepath.Join(t.TempDir(), "s.json")
	assert.ErrorContains(t, a.EncryptSecretMode(nil), "api_secret")
}

func TestInitModePlacesBuyLadder(t *testing.T) {
	cfg := config.Defaults()
	cfg.Grid.Count = 4
	b := &fakeBroker{price: decimal.NewFromInt(50000), balance: decimal.NewFromInt(10000)}

	var out bytes.Buffer
	a := New(&cfg, testLogger(), &out)
	require.NoError(t, a.dispatch(context.Background(), CmdInit, testDeps(b)))

	require.Len(t, b.placed, 2)
	assert.Equal(t, "49750", b.placed[0].LimitPrice.String())
	assert.Equal(t, "49500", b.placed[1].LimitPrice.String())
	assert.Equal(t, "0.004", b.placed[0].Quantity.String())

	s := out.String()
	assert.Contains(t, s, "[OK] Grid initialized")
	assert.Contains(t, s, "Active orders: 2")
	assert.Contains(t, s, "Grid center: $50,000.00")
}

func TestInitModeZeroBalanceFails(t *testing.T) {
	cfg := config.Defaults()
	b := &fakeBroker{price: decimal.NewFromInt(50000), balance: decimal.Zero}

	var out bytes.Buffer
	a := New(&cfg, testLogger(), &out)
	err := a.dispatch(context.Background(), CmdInit, testDeps(b))
	require.Error(t, err)
	assert.Empty(t, b.placed)
	assert.Contains(t, out.String(), "[ERROR]")
}

func TestReportModeOrders(t *testing.T) {
	cfg := config.Defaults()
	b := &fakeBroker{open: []domain.BrokerOrder{{
		ID:         "abcdef123456",
		Side:       domain.OrderSideBuy,
		Status:     domain.OrderStatusNew,
		Quantity:   decimal.RequireFromString("0.004"),
		LimitPrice: decimal.NewFromInt(49750),
	}}}

	var out bytes.Buffer
	a := New(&cfg, testLogger(), &out)
	require.NoError(t, a.dispatch(context.Background(), CmdOrders, testDeps(b)))
	assert.Contains(t, out.String(), "Open orders: 1")
}

func TestCancelAllMode(t *testing.T) {
	cfg := config.Defaults()

	t.Run("nothing open", func(t *testing.T) {
		b := &fakeBroker{}
		var out bytes.Buffer
		require.NoError(t, New(&cfg, testLogger(), &out).CancelAllMode(context.Background(), testDeps(b)))
		assert.False(t, b.cancelled)
		assert.Contains(t, out.String(), "No open orders.")
	})

	t.Run("open orders", func(t *testing.T) {
		b := &fakeBroker{open: []domain.BrokerOrder{{ID: "a"}, {ID: "b"}}}
		var out bytes.Buffer
		require.NoError(t, New(&cfg, testLogger(), &out).CancelAllMode(context.Background(), testDeps(b)))
		assert.True(t, b.cancelled)
		assert.Contains(t, out.String(), "Cancel requested for 2 open orders")
	})
}

func TestHoldInstanceWithoutRedis(t *testing.T) {
	cfg := config.Defaults()
	release, err := New(&cfg, testLogger(), io.Discard).holdInstance(context.Background(), testDeps(&fakeBroker{}))
	require.NoError(t, err)
	release()
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func (heldLocks) Hold(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestHoldInstanceHeldElsewhere(t *testing.T) {
	cfg := config.Defaults()
	deps := testDeps(&fakeBroker{})
	deps.LockManager = heldLocks{}

	_, err := New(&cfg, testLogger(), io.Discard).holdInstance(context.Background(), deps)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Contains(t, err.Error(), "another instance is trading BTCUSD")
}

func TestSessionSettingsRedactsSecrets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Broker.APIKey = "PKXXXX"
	cfg.Broker.APISecret = "shh"

	s := sessionSettings(&cfg)
	assert.Equal(t, "***", s["broker.api_key"])
	assert.Equal(t, "0.005", s["grid.spread"])
	assert.Equal(t, "10", s["grid.count"])
	assert.Equal(t, "10s", s["poll_interval"])
	for _, v := range s {
		assert.NotEqual(t, "shh", v)
	}
}

func TestNeedsBackends(t *testing.T) {
	assert.True(t, needsBackends(CmdRun))
	assert.True(t, needsBackends(CmdInit))
	assert.False(t, needsBackends(CmdProfits))
	assert.False(t, needsBackends(CmdCancelAll))
}
