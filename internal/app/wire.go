package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/abelprasad/CryptoBear/internal/blob/s3"
	"github.com/abelprasad/CryptoBear/internal/cache/redis"
	"github.com/abelprasad/CryptoBear/internal/config"
	"github.com/abelprasad/CryptoBear/internal/crypto"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/notify"
	"github.com/abelprasad/CryptoBear/internal/platform/alpaca"
	"github.com/abelprasad/CryptoBear/internal/store/postgres"
)

// streamMaxLen caps the Redis event stream.
const streamMaxLen = 10000

// Dependencies bundles everything a command needs. Broker and Notifier are
// always set; the remaining fields stay nil when their backend is disabled
// or the command does not use it.
type Dependencies struct {
	Broker   domain.Broker
	Notifier *notify.Notifier

	// Caches
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Journals
	AuditStore domain.AuditStore
	CycleStore domain.CycleStore

	// Blob storage
	Archiver domain.SessionArchiver
}

// needsBackends reports whether cmd trades and therefore uses the optional
// Redis, Postgres and S3 backends. Read-only reports talk to the broker only.
func needsBackends(cmd string) bool {
	switch cmd {
	case CmdRun, CmdInit:
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations for cmd and
// returns them together with a cleanup function that releases resources in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, cmd string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Broker ---
	secret, err := crypto.LoadSecret(crypto.SecretSource{
		Raw:           cfg.Broker.APISecret,
		EncryptedPath: cfg.Broker.EncryptedSecretPath,
		Password:      cfg.Broker.SecretPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: broker secret: %w", err)
	}
	deps.Broker = alpaca.NewClient(alpaca.Config{
		APIKey:     cfg.Broker.APIKey,
		APISecret:  secret,
		BaseURL:    cfg.Broker.BaseURL,
		DataURL:    cfg.Broker.DataURL,
		Timeout:    cfg.CallTimeout(),
		RetryCount: cfg.Broker.RetryCount,
	})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		logger.Warn("no notification channel configured")
	}
	// The status command always delivers; everything else honours the filter.
	events := cfg.Notify.Events
	if cmd == CmdStatus {
		events = nil
	}
	deps.Notifier = notify.NewNotifier(senders, events, logger)

	if !needsBackends(cmd) {
		return deps, cleanup, nil
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			ClientName: "cryptobear-" + cfg.Pair,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, 10*cfg.Interval())
		deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.LockManager = redis.NewLockManager(redisClient, func(key string) {
			logger.Error("instance lock lost; another process may trade this pair",
				slog.String("key", key),
			)
		})
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.CycleStore = postgres.NewCycleStore(pool)
	}

	// --- S3 session archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			// The archive is written at shutdown; a missing bucket should
			// not stop trading.
			logger.Warn("s3 health check failed", slog.String("error", err.Error()))
		}
		deps.Archiver = s3blob.NewSessionArchiver(s3blob.NewWriter(s3Client), "")
	}

	return deps, cleanup, nil
}
