package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies environment variable overrides, and returns the final
// Config. Files ending in .yaml or .yml are decoded as YAML, everything else
// as TOML. An empty path skips the file and uses defaults plus environment.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). The
// bare ALPACA_* and TELEGRAM_* names are honoured first so existing
// deployments keep working; CRYPTOBEAR_* wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── Legacy names ──
	setStr(&cfg.Broker.APIKey, "ALPACA_API_KEY")
	setStr(&cfg.Broker.APISecret, "ALPACA_API_SECRET")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")

	// ── Top-level ──
	setStr(&cfg.Pair, "CRYPTOBEAR_PAIR")
	setDuration(&cfg.PollInterval, "CRYPTOBEAR_POLL_INTERVAL")

	// ── Grid / risk ──
	setFloat64(&cfg.Grid.Spread, "CRYPTOBEAR_GRID_SPREAD")
	setInt(&cfg.Grid.Count, "CRYPTOBEAR_GRID_COUNT")
	setFloat64(&cfg.Risk.PerTrade, "CRYPTOBEAR_RISK_PER_TRADE")

	// ── Broker ──
	setStr(&cfg.Broker.APIKey, "CRYPTOBEAR_BROKER_API_KEY")
	setStr(&cfg.Broker.APISecret, "CRYPTOBEAR_BROKER_API_SECRET")
	setStr(&cfg.Broker.EncryptedSecretPath, "CRYPTOBEAR_BROKER_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Broker.SecretPassword, "CRYPTOBEAR_BROKER_SECRET_PASSWORD")
	setStr(&cfg.Broker.BaseURL, "CRYPTOBEAR_BROKER_BASE_URL")
	setStr(&cfg.Broker.DataURL, "CRYPTOBEAR_BROKER_DATA_URL")
	setDuration(&cfg.Broker.CallTimeout, "CRYPTOBEAR_BROKER_CALL_TIMEOUT")
	setInt(&cfg.Broker.RetryCount, "CRYPTOBEAR_BROKER_RETRY_COUNT")

	// ── Logging ──
	setStr(&cfg.Logging.Level, "CRYPTOBEAR_LOG_LEVEL")
	setStr(&cfg.Logging.Format, "CRYPTOBEAR_LOG_FORMAT")
	setStr(&cfg.Logging.Dir, "CRYPTOBEAR_LOG_DIR")
	setStr(&cfg.Logging.File, "CRYPTOBEAR_LOG_FILE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRYPTOBEAR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRYPTOBEAR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRYPTOBEAR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRYPTOBEAR_NOTIFY_EVENTS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CRYPTOBEAR_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CRYPTOBEAR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTOBEAR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTOBEAR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTOBEAR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRYPTOBEAR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTOBEAR_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "CRYPTOBEAR_REDIS_LOCK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CRYPTOBEAR_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CRYPTOBEAR_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CRYPTOBEAR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CRYPTOBEAR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CRYPTOBEAR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CRYPTOBEAR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CRYPTOBEAR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CRYPTOBEAR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CRYPTOBEAR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CRYPTOBEAR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CRYPTOBEAR_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CRYPTOBEAR_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CRYPTOBEAR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRYPTOBEAR_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRYPTOBEAR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CRYPTOBEAR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRYPTOBEAR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRYPTOBEAR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRYPTOBEAR_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CRYPTOBEAR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CRYPTOBEAR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CRYPTOBEAR_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CRYPTOBEAR_SERVER_API_KEY")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
