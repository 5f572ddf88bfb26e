package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, 0.5, cfg.Strategy.InitialMargin)
	assert.Equal(t, 0.25, cfg.Strategy.MaintenanceMargin)
	assert.Equal(t, 1, cfg.Strategy.MovingAverageWindow)
	assert.Equal(t, 64, cfg.Trader.QueueSize)
	assert.Equal(t, "paper", cfg.Venue.Kind)
	assert.Equal(t, "none", cfg.Feed.Kind)
	assert.Equal(t, "sqlite", cfg.Store.EventLog)
	assert.Equal(t, "configs/positions.yaml", cfg.Book.Path)
	assert.True(t, cfg.Book.Watch)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "strategy.yaml", "strategy:\n  initial_margin: 0.4\n  min_profit_pct: 0.01\n")
	path := writeFile(t, dir, "config.yaml", `include:
  - strategy.yaml
strategy:
  min_profit_pct: 0.02
store:
  event_log: ""
book:
  watch: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Strategy.InitialMargin)
	assert.Equal(t, 0.02, cfg.Strategy.MinProfitPct)
	assert.Empty(t, cfg.Store.EventLog)
	assert.False(t, cfg.Book.Watch)
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"bad venue":         "venue:\n  kind: ftx\n",
		"binance no keys":   "venue:\n  kind: binance\n",
		"websocket no url":  "feed:\n  kind: websocket\n",
		"bad level":         "app:\n  log_level: loud\n",
		"margin above one":  "strategy:\n  initial_margin: 1.5\n",
		"telegram no token": "notify:\n  telegram:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("RATCHET_VENUE_API_KEY", "key")
	t.Setenv("RATCHET_VENUE_API_SECRET", "secret")
	path := writeFile(t, t.TempDir(), "config.yaml", "venue:\n  kind: Binance\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Venue.Kind)
	assert.Equal(t, "key", cfg.Venue.APIKey)
	assert.Equal(t, "secret", cfg.Venue.APISecret)
	assert.Equal(t, "https://fapi.binance.com", cfg.Venue.BaseURL)
}

func TestLoadReadsDotEnvSecrets(t *testing.T) {
	t.Setenv("RATCHET_VENUE_API_KEY", "")
	t.Setenv("RATCHET_VENUE_API_SECRET", "from-process")
	dir := t.TempDir()
	writeFile(t, dir, ".env", "RATCHET_VENUE_API_KEY=from-dotenv\nRATCHET_VENUE_API_SECRET=ignored\n")
	path := writeFile(t, dir, "config.yaml", "venue:\n  kind: binance\n  api_key: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Venue.APIKey)
	assert.Equal(t, "from-process", cfg.Venue.APISecret)
}
