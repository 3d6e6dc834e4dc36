// Package config defines the top-level configuration for the grid bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Fields are populated from a
// TOML or YAML file and then optionally overridden by CRYPTOBEAR_*
// environment variables. It is treated as immutable once Load returns.
type Config struct {
	Pair         string         `toml:"pair" yaml:"pair"`
	PollInterval duration       `toml:"poll_interval" yaml:"poll_interval"`
	Grid         GridConfig     `toml:"grid" yaml:"grid"`
	Risk         RiskConfig     `toml:"risk" yaml:"risk"`
	Broker       BrokerConfig   `toml:"broker" yaml:"broker"`
	Logging      LoggingConfig  `toml:"logging" yaml:"logging"`
	Notify       NotifyConfig   `toml:"notify" yaml:"notify"`
	Redis        RedisConfig    `toml:"redis" yaml:"redis"`
	Postgres     PostgresConfig `toml:"postgres" yaml:"postgres"`
	S3           S3Config       `toml:"s3" yaml:"s3"`
	Server       ServerConfig   `toml:"server" yaml:"server"`
}

// GridConfig controls the level ladder.
type GridConfig struct {
	// Spread is the fractional distance between adjacent levels (0.005 = 0.5%).
	Spread float64 `toml:"spread" yaml:"spread"`
	// Count is the total number of levels; half are placed on each side.
	Count int `toml:"count" yaml:"count"`
}

// RiskConfig controls order sizing.
type RiskConfig struct {
	// PerTrade is the fraction of the cash balance committed per order.
	PerTrade float64 `toml:"per_trade" yaml:"per_trade"`
}

// BrokerConfig holds Alpaca credentials and endpoints.
type BrokerConfig struct {
	APIKey              string   `toml:"api_key" yaml:"api_key"`
	APISecret           string   `toml:"api_secret" yaml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path" yaml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password" yaml:"secret_password"`
	BaseURL             string   `toml:"base_url" yaml:"base_url"`
	DataURL             string   `toml:"data_url" yaml:"data_url"`
	CallTimeout         duration `toml:"call_timeout" yaml:"call_timeout"`
	RetryCount          int      `toml:"retry_count" yaml:"retry_count"`
}

// LoggingConfig controls the slog handler and the rotating log file.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	Dir        string `toml:"dir" yaml:"dir"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled"`
	Addr       string   `toml:"addr" yaml:"addr"`
	Password   string   `toml:"password" yaml:"password"`
	DB         int      `toml:"db" yaml:"db"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// ServerConfig holds HTTP status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Port        int      `toml:"port" yaml:"port"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	APIKey      string   `toml:"api_key" yaml:"api_key"`
}

// duration is a wrapper around time.Duration that decodes from strings such
// as "10s" or "5m" in both TOML and YAML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts a duration string. A bare integer is read as
// seconds, which is how the poll interval was historically written.
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int
	if value.ShortTag() == "!!int" {
		if err := value.Decode(&secs); err != nil {
			return err
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Pair:         "BTCUSD",
		PollInterval: duration{10 * time.Second},
		Grid: GridConfig{
			Spread: 0.005,
			Count:  10,
		},
		Risk: RiskConfig{
			PerTrade: 0.02,
		},
		Broker: BrokerConfig{
			BaseURL:     "https://paper-api.alpaca.markets",
			DataURL:     "https://data.alpaca.markets",
			CallTimeout: duration{15 * time.Second},
			RetryCount:  2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Dir:        "logs",
			File:       "grid_bot.log",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Notify: NotifyConfig{
			Events: []string{"grid_initialized", "order_failed", "order_filled", "cycle_completed", "error", "lifecycle"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "cryptobear",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cryptobear",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// validLogLevels enumerates the accepted values for LoggingConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Spread returns the grid spread as a decimal.
func (c *Config) Spread() decimal.Decimal { return decimal.NewFromFloat(c.Grid.Spread) }

// RiskPerTrade returns the risk fraction as a decimal.
func (c *Config) RiskPerTrade() decimal.Decimal { return decimal.NewFromFloat(c.Risk.PerTrade) }

// Interval returns the poll interval.
func (c *Config) Interval() time.Duration { return c.PollInterval.Duration }

// CallTimeout returns the per-call broker timeout.
func (c *Config) CallTimeout() time.Duration { return c.Broker.CallTimeout.Duration }

// LockTTL returns the instance lock TTL.
func (c *Config) LockTTL() time.Duration { return c.Redis.LockTTL.Duration }

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Pair) == "" {
		errs = append(errs, "pair must not be empty")
	}
	if c.PollInterval.Duration <= 0 {
		errs = append(errs, "poll_interval must be > 0")
	}

	// Grid
	if c.Grid.Spread <= 0 || c.Grid.Spread >= 1 {
		errs = append(errs, fmt.Sprintf("grid: spread must be in (0, 1), got %g", c.Grid.Spread))
	}
	if c.Grid.Count < 2 {
		errs = append(errs, fmt.Sprintf("grid: count must be >= 2, got %d", c.Grid.Count))
	}
	// The outermost buy level must stay above zero.
	if c.Grid.Spread > 0 && c.Grid.Count >= 2 && float64(c.Grid.Count/2)*c.Grid.Spread >= 1 {
		errs = append(errs, "grid: count/2 * spread must be < 1")
	}

	// Risk
	if c.Risk.PerTrade <= 0 || c.Risk.PerTrade > 1 {
		errs = append(errs, fmt.Sprintf("risk: per_trade must be in (0, 1], got %g", c.Risk.PerTrade))
	}

	// Broker
	if c.Broker.APIKey == "" {
		errs = append(errs, "broker: api_key must be set (or ALPACA_API_KEY)")
	}
	if c.Broker.APISecret == "" && c.Broker.EncryptedSecretPath == "" {
		errs = append(errs, "broker: either api_secret or encrypted_secret_path must be set")
	}
	if c.Broker.EncryptedSecretPath != "" && c.Broker.SecretPassword == "" {
		errs = append(errs, "broker: secret_password is required when encrypted_secret_path is set")
	}
	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if c.Broker.DataURL == "" {
		errs = append(errs, "broker: data_url must not be empty")
	}
	if c.Broker.CallTimeout.Duration <= 0 {
		errs = append(errs, "broker: call_timeout must be > 0")
	}
	if c.Broker.RetryCount < 0 {
		errs = append(errs, "broker: retry_count must be >= 0")
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging: unknown level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("logging: unknown format %q (valid: json, text)", c.Logging.Format))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= c.PollInterval.Duration {
			errs = append(errs, "redis: lock_ttl must exceed poll_interval")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
