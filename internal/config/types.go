package config

import "strings"

// Config is the root of config.yaml.
type Config struct {
	App      AppConfig      `toml:"app"`
	Strategy StrategyConfig `toml:"strategy"`
	Trader   TraderConfig   `toml:"trader"`
	Venue    VenueConfig    `toml:"venue"`
	Feed     FeedConfig     `toml:"feed"`
	Store    StoreConfig    `toml:"store"`
	Book     BookConfig     `toml:"book"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
}

// StrategyConfig holds the process-wide margin and sizing constants.
type StrategyConfig struct {
	InitialMargin       float64 `toml:"initial_margin"`
	MaintenanceMargin   float64 `toml:"maintenance_margin"`
	MinProfitPct        float64 `toml:"min_profit_pct"`
	CommissionRate      float64 `toml:"commission_rate"`
	CommissionMin       float64 `toml:"commission_min"`
	MovingAverageWindow int     `toml:"moving_average_window"`
}

type TraderConfig struct {
	QueueSize   int `toml:"queue_size"`
	SlowEventMS int `toml:"slow_event_ms"`
}

type VenueConfig struct {
	Kind                  string  `toml:"kind"`
	APIKey                string  `toml:"api_key"`
	APISecret             string  `toml:"api_secret"`
	BaseURL               string  `toml:"base_url"`
	Testnet               bool    `toml:"testnet"`
	CommissionRate        float64 `toml:"commission_rate"`
	RateLimitPerSec       float64 `toml:"rate_limit_per_sec"`
	RateBurst             int     `toml:"rate_burst"`
	BreakerThreshold      int     `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int     `toml:"breaker_timeout_seconds"`
}

// FeedConfig selects the market-data source. The websocket kind reads
// symbol and price out of each JSON message with gjson paths.
type FeedConfig struct {
	Kind       string      `toml:"kind"`
	WSURL      string      `toml:"ws_url"`
	SymbolPath string      `toml:"symbol_path"`
	PricePath  string      `toml:"price_path"`
	Subscribe  string      `toml:"subscribe"`
	Proxy      ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	WSURL   string `toml:"ws_url"`
}

type StoreConfig struct {
	SnapshotPath string `toml:"snapshot_path"`
	LedgerPath   string `toml:"ledger_path"`
	// EventLog is "sqlite" (shares SnapshotPath), a .jsonl file path, or empty.
	EventLog string `toml:"event_log"`
}

type BookConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

func (v VenueConfig) NormalizedKind() string {
	return strings.ToLower(strings.TrimSpace(v.Kind))
}

func (f FeedConfig) NormalizedKind() string {
	return strings.ToLower(strings.TrimSpace(f.Kind))
}

// keySet tracks the paths set explicitly in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for one field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
