package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Broker.APIKey = "key"
	cfg.Broker.APISecret = "secret"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Interval())
	assert.Equal(t, 15*time.Second, cfg.CallTimeout())
	assert.True(t, cfg.Spread().Equal(decimal.RequireFromString("0.005")))
	assert.True(t, cfg.RiskPerTrade().Equal(decimal.RequireFromString("0.02")))
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Pair = ""
	cfg.Grid.Spread = 0
	cfg.Grid.Count = 1
	cfg.Risk.PerTrade = 2
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"pair must not be empty",
		"grid: spread",
		"grid: count",
		"risk: per_trade",
		"broker: api_key",
		"broker: either api_secret or encrypted_secret_path",
		"logging: unknown level",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateEncryptedSecretNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.APISecret = ""
	cfg.Broker.EncryptedSecretPath = "secret.json"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_password is required")

	cfg.Broker.SecretPassword = "pw"
	require.NoError(t, cfg.Validate())
}

func TestValidateGridDepth(t *testing.T) {
	cfg := validConfig()
	cfg.Grid.Spread = 0.25
	cfg.Grid.Count = 8
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count/2 * spread")
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "bot.toml", `
pair = "ETHUSD"
poll_interval = "30s"

[grid]
spread = 0.01
count = 6

[risk]
per_trade = 0.05

[broker]
api_key = "file-key"
api_secret = "file-secret"
call_timeout = "5s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSD", cfg.Pair)
	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, 6, cfg.Grid.Count)
	assert.InDelta(t, 0.01, cfg.Grid.Spread, 1e-12)
	assert.InDelta(t, 0.05, cfg.Risk.PerTrade, 1e-12)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout())
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Broker.BaseURL)
	assert.Equal(t, "grid_bot.log", cfg.Logging.File)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
pair: BTCUSD
poll_interval: 20
grid:
  spread: 0.005
  count: 4
risk:
  per_trade: 0.02
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.Interval())
	assert.Equal(t, 4, cfg.Grid.Count)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Spread().Equal(decimal.RequireFromString("0.005")))
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "bot.toml", `
[broker]
api_key = "file-key"
`)
	t.Setenv("ALPACA_API_KEY", "legacy-key")
	t.Setenv("ALPACA_API_SECRET", "legacy-secret")
	t.Setenv("CRYPTOBEAR_BROKER_API_KEY", "env-key")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("CRYPTOBEAR_GRID_COUNT", "8")
	t.Setenv("CRYPTOBEAR_POLL_INTERVAL", "1m")
	t.Setenv("CRYPTOBEAR_SERVER_CORS_ORIGINS", "http://a, http://b,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Broker.APIKey)
	assert.Equal(t, "legacy-secret", cfg.Broker.APISecret)
	assert.Equal(t, "12345", cfg.Notify.TelegramChatID)
	assert.Equal(t, 8, cfg.Grid.Count)
	assert.Equal(t, time.Minute, cfg.Interval())
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "tg"
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = ""

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Broker.APIKey)
	assert.Equal(t, "***", out.Broker.APISecret)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "", out.Server.APIKey)
	assert.Equal(t, "key", cfg.Broker.APIKey)

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
}
