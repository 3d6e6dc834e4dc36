// Package app provides the top-level application lifecycle for the grid
// bot. It wires the broker, notifications and the optional Redis, Postgres
// and S3 backends, then runs the requested command.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/abelprasad/CryptoBear/internal/config"
)

// Commands understood by Run.
const (
	CmdRun           = "run"
	CmdInit          = "init"
	CmdOrders        = "orders"
	CmdPrice         = "price"
	CmdProfits       = "profits"
	CmdActivity      = "activity"
	CmdStatus        = "status"
	CmdCancelAll     = "cancel-all"
	CmdEncryptSecret = "encrypt-secret"
)

// Commands lists every command in help order.
var Commands = []string{
	CmdRun, CmdInit, CmdOrders, CmdPrice, CmdProfits,
	CmdActivity, CmdStatus, CmdCancelAll, CmdEncryptSecret,
}

func knownCommand(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App. Command output meant for the operator goes to out.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    out,
	}
}

// Run is the main entry point. It wires the dependencies cmd needs and runs
// it. The run command blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	if cmd == "" {
		cmd = CmdRun
	}
	if !knownCommand(cmd) {
		return fmt.Errorf("app: unsupported command %q (valid: %s)", cmd, strings.Join(Commands, ", "))
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("command", cmd),
		slog.String("pair", a.cfg.Pair),
		slog.String("log_level", a.cfg.Logging.Level),
	)

	// encrypt-secret produces the credentials Wire consumes.
	if cmd == CmdEncryptSecret {
		return a.EncryptSecretMode(args)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, cmd, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.dispatch(ctx, cmd, deps)
}

func (a *App) dispatch(ctx context.Context, cmd string, deps *Dependencies) error {
	switch cmd {
	case CmdRun:
		return a.RunMode(ctx, deps)
	case CmdInit:
		return a.InitMode(ctx, deps)
	case CmdOrders, CmdPrice, CmdProfits, CmdActivity, CmdStatus:
		return a.ReportMode(ctx, deps, cmd)
	case CmdCancelAll:
		return a.CancelAllMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported command %q", cmd)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
