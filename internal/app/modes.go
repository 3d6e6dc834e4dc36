package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/abelprasad/CryptoBear/internal/bot"
	"github.com/abelprasad/CryptoBear/internal/cache/redis"
	"github.com/abelprasad/CryptoBear/internal/config"
	"github.com/abelprasad/CryptoBear/internal/crypto"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/events"
	"github.com/abelprasad/CryptoBear/internal/notify"
	"github.com/abelprasad/CryptoBear/internal/report"
	"github.com/abelprasad/CryptoBear/internal/server"
	"github.com/abelprasad/CryptoBear/internal/server/handler"
	"github.com/abelprasad/CryptoBear/internal/server/ws"
)

const (
	// commandTimeout bounds the one-shot report and cancel commands.
	commandTimeout = time.Minute
	// httpShutdownTimeout bounds graceful HTTP shutdown.
	httpShutdownTimeout = 5 * time.Second
)

// RunMode places the grid and polls for fills until ctx is cancelled. The
// status API runs alongside when enabled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.say(ctx, deps, notify.EventLifecycle, bot.MsgStarting)

	release, err := a.holdInstance(ctx, deps)
	if err != nil {
		a.say(ctx, deps, notify.EventLifecycle, bot.Crashed(err))
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		ctrl *bot.Controller
		hub  *ws.Hub
	)
	sinks := a.sinks(deps)
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Status: func() any { return ctrl.Snapshot() },
		})
		// Without a bus the hub is fed directly.
		if deps.SignalBus == nil {
			sinks = append(sinks, hub)
		}
	}

	opts := []bot.Option{bot.WithMetrics(bot.NewMetrics(reg))}
	if deps.Archiver != nil {
		opts = append(opts, bot.WithArchiver(deps.Archiver, sessionSettings(a.cfg)))
	}
	ctrl = a.newController(deps, sinks, opts...)

	if err := ctrl.Initialize(ctx); err != nil {
		a.say(ctx, deps, notify.EventLifecycle, bot.Crashed(err))
		return fmt.Errorf("run: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, ctrl, hub, reg)
	}
	return g.Wait()
}

// InitMode places the initial buy ladder, prints it and returns. The orders
// stay open at the broker.
func (a *App) InitMode(ctx context.Context, deps *Dependencies) error {
	release, err := a.holdInstance(ctx, deps)
	if err != nil {
		return err
	}
	defer release()

	ctrl := a.newController(deps, a.sinks(deps))
	if err := ctrl.Initialize(ctx); err != nil {
		fmt.Fprintf(a.out, "[ERROR] Grid initialization failed: %v\n", err)
		return fmt.Errorf("init: %w", err)
	}

	fmt.Fprintln(a.out, "[OK] Grid initialized")
	return report.Grid(a.out, ctrl.Snapshot(), ctrl.Orders())
}

// ReportMode runs one of the read-only broker reports.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies, cmd string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	r := report.New(deps.Broker, a.cfg.Pair, a.out)
	switch cmd {
	case CmdOrders:
		return r.Orders(ctx)
	case CmdPrice:
		return r.Price(ctx)
	case CmdProfits:
		return r.Profits(ctx)
	case CmdActivity:
		return r.Activity(ctx)
	case CmdStatus:
		return r.Status(ctx, deps.Notifier)
	default:
		return fmt.Errorf("report: unknown report %q", cmd)
	}
}

// CancelAllMode cancels every open order on the account.
func (a *App) CancelAllMode(ctx context.Context, deps *Dependencies) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	open, err := deps.Broker.ListOrders(ctx, report.StatusOpen, 0)
	if err != nil {
		return fmt.Errorf("cancel-all: list open orders: %w", err)
	}
	if len(open) == 0 {
		fmt.Fprintln(a.out, "No open orders.")
		return nil
	}
	if err := deps.Broker.CancelAllOrders(ctx); err != nil {
		return fmt.Errorf("cancel-all: %w", err)
	}

	a.logger.InfoContext(ctx, "cancelled open orders", slog.Int("count", len(open)))
	fmt.Fprintf(a.out, "[OK] Cancel requested for %d open orders\n", len(open))
	return nil
}

// EncryptSecretMode encrypts broker.api_secret with broker.secret_password
// and writes it to args[0], or to broker.encrypted_secret_path when no
// argument is given.
func (a *App) EncryptSecretMode(args []string) error {
	path := a.cfg.Broker.EncryptedSecretPath
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	}
	if path == "" {
		return errors.New("encrypt-secret: output path required (argument or broker.encrypted_secret_path)")
	}
	if a.cfg.Broker.APISecret == "" {
		return errors.New("encrypt-secret: broker.api_secret (or ALPACA_API_SECRET) must be set")
	}

	data, err := crypto.EncryptSecret(a.cfg.Broker.APISecret, a.cfg.Broker.SecretPassword)
	if err != nil {
		return fmt.Errorf("encrypt-secret: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("encrypt-secret: write %s: %w", path, err)
	}

	fmt.Fprintf(a.out, "[OK] Encrypted secret written to %s\n", path)
	fmt.Fprintln(a.out, "Set broker.encrypted_secret_path and remove the plaintext api_secret.")
	return nil
}

// startHTTPServer adds the status API and its WebSocket hub to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	ctrl *bot.Controller,
	hub *ws.Hub,
	reg *prometheus.Registry,
) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(func() string { return ctrl.State().String() }),
		Status:  handler.NewStatusHandler(ctrl, a.logger),
		Cycles:  handler.NewCycleHandler(ctrl, deps.CycleStore, a.cfg.Pair, a.logger),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventHandler(deps.SignalBus, events.Stream, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// holdInstance takes the per-pair Redis lock so two processes never trade
// the same pair. Without Redis it is a no-op.
func (a *App) holdInstance(ctx context.Context, deps *Dependencies) (func(), error) {
	if deps.LockManager == nil {
		return func() {}, nil
	}

	key := redis.InstanceKey(a.cfg.Pair)
	release, err := deps.LockManager.Hold(ctx, key, a.cfg.LockTTL())
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, fmt.Errorf("app: another instance is trading %s: %w", a.cfg.Pair, err)
	}
	if err != nil {
		return nil, fmt.Errorf("app: acquire instance lock: %w", err)
	}
	a.logger.InfoContext(ctx, "instance lock acquired", slog.String("key", key))
	return release, nil
}

// sinks returns the event sinks backed by the configured stores.
func (a *App) sinks(deps *Dependencies) events.Multi {
	var out events.Multi
	if deps.SignalBus != nil {
		out = append(out, events.NewBusSink(deps.SignalBus))
	}
	if deps.AuditStore != nil {
		out = append(out, events.NewAuditSink(deps.AuditStore, deps.CycleStore))
	}
	return out
}

func (a *App) newController(deps *Dependencies, sink events.Sink, extra ...bot.Option) *bot.Controller {
	opts := []bot.Option{bot.WithEvents(sink)}
	if deps.PriceCache != nil {
		opts = append(opts, bot.WithPriceCache(deps.PriceCache))
	}
	opts = append(opts, extra...)
	return bot.New(botConfig(a.cfg), deps.Broker, deps.Notifier, a.logger, opts...)
}

// say sends a lifecycle notification outside the controller. Failures are
// logged only.
func (a *App) say(ctx context.Context, deps *Dependencies, event, text string) {
	if err := deps.Notifier.Notify(ctx, event, "", text); err != nil {
		a.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func botConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		Pair:         cfg.Pair,
		PollInterval: cfg.Interval(),
		CallTimeout:  cfg.CallTimeout(),
		Spread:       cfg.Spread(),
		Count:        cfg.Grid.Count,
		RiskPerTrade: cfg.RiskPerTrade(),
	}
}

// sessionSettings is the secret-free configuration summary stored with the
// session archive.
func sessionSettings(cfg *config.Config) map[string]string {
	red := config.RedactedConfig(cfg)
	return map[string]string{
		"pair":            red.Pair,
		"poll_interval":   red.Interval().String(),
		"grid.spread":     strconv.FormatFloat(red.Grid.Spread, 'f', -1, 64),
		"grid.count":      strconv.Itoa(red.Grid.Count),
		"risk.per_trade":  strconv.FormatFloat(red.Risk.PerTrade, 'f', -1, 64),
		"broker.base_url": red.Broker.BaseURL,
		"broker.api_key":  red.Broker.APIKey,
	}
}
