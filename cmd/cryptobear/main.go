// Command cryptobear is the entry point for the grid trading bot. It loads
// configuration, validates it, builds the logger, sets up signal handling
// and runs the requested command (default "run").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abelprasad/CryptoBear/internal/app"
	"github.com/abelprasad/CryptoBear/internal/config"
	"github.com/abelprasad/CryptoBear/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (.toml, .yaml or .yml)")
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = app.CmdRun
	}
	var args []string
	if flag.NArg() > 1 {
		args = flag.Args()[1:]
	}

	// Bootstrap logger until the configured one is built.
	logger := slog.New(logging.NewHandler(os.Stdout, "json", slog.LevelInfo))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Dir:        cfg.Logging.Dir,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// encrypt-secret runs before credentials are complete.
	if cmd != app.CmdEncryptSecret {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("cryptobear starting",
		slog.String("command", cmd),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger, os.Stdout)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx, cmd, args)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		_ = logCloser.Close()
		os.Exit(1)
	}

	logger.Info("cryptobear stopped")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [-config path] <command> [args]\n\n", os.Args[0])
	fmt.Fprintf(out, "Commands: %s\n\n", strings.Join(app.Commands, ", "))
	flag.PrintDefaults()
}
