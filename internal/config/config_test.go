package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "portfolio.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Second, cfg.Quotes.FetchTimeout)
	assert.Equal(t, 8, cfg.Quotes.Concurrency)
	assert.True(t, cfg.Quotes.DegradeOnUnavailable)
	assert.Equal(t, 3, cfg.MarketData.MaxRetries)
}

func TestLoadConfig_FileValues(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
database:
  dsn: "file::memory:"
logger:
  level: debug
  format: console
marketdata:
  apiKey: file-key
  rate_limit: 2
quotes:
  fetch_timeout: 7s
  concurrency: 3
  stale_warning_ratio: 0.25
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "file-key", cfg.MarketData.ApiKey)
	assert.Equal(t, 2.0, cfg.MarketData.RateLimit)
	assert.Equal(t, 7*time.Second, cfg.Quotes.FetchTimeout)
	assert.Equal(t, 3, cfg.Quotes.Concurrency)
	assert.Equal(t, 0.25, cfg.Quotes.StaleWarningRatio)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := writeConfig(t, "quotes:\n  concurrency: 0\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quotes.concurrency")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server:     Server{Port: 8080},
		Database:   Database{DSN: "x.db"},
		MarketData: MarketData{RateLimit: 1, RateLimitBurst: 1, MaxRetries: 1},
		Quotes:     Quotes{Concurrency: 1, StaleWarningRatio: 0.5},
	}
	assert.NoError(t, valid.Validate())

	broken := valid
	broken.Server.Port = 0
	broken.Database.DSN = " "
	err := broken.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.dsn")
}
