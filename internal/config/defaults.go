package config

import (
	"strings"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":9991"
	defaultInitialMargin     = 0.5
	defaultMaintenanceMargin = 0.25
	defaultMAWindow          = 1
	defaultQueueSize         = 64
	defaultSlowEventMS       = 100
	defaultVenueKind         = "paper"
	defaultBinanceBaseURL    = "https://fapi.binance.com"
	defaultRateLimit         = 10
	defaultRateBurst         = 5
	defaultBreakerThreshold  = 5
	defaultBreakerTimeout    = 30
	defaultFeedKind          = "none"
	defaultSnapshotPath      = "data/ratchet.db"
	defaultLedgerPath        = "data/ledger.db"
	defaultEventLog          = "sqlite"
	defaultBookPath          = "configs/positions.yaml"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Trader.applyDefaults(keys)
	c.Venue.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Book.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

// Margins must be positive, so a zero is treated as missing even when
// written out explicitly.
func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			need:  func() bool { return s.InitialMargin <= 0 },
			apply: func() { s.InitialMargin = defaultInitialMargin },
		},
		fieldDefault{
			need:  func() bool { return s.MaintenanceMargin <= 0 },
			apply: func() { s.MaintenanceMargin = defaultMaintenanceMargin },
		},
		fieldDefault{
			key:   "strategy.moving_average_window",
			need:  func() bool { return s.MovingAverageWindow <= 0 },
			apply: func() { s.MovingAverageWindow = defaultMAWindow },
		},
	)
}

func (t *TraderConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trader.queue_size",
			need:  func() bool { return t.QueueSize <= 0 },
			apply: func() { t.QueueSize = defaultQueueSize },
		},
		fieldDefault{
			key:   "trader.slow_event_ms",
			need:  func() bool { return t.SlowEventMS <= 0 },
			apply: func() { t.SlowEventMS = defaultSlowEventMS },
		},
	)
}

func (v *VenueConfig) applyDefaults(keys keySet) {
	if v == nil {
		return
	}
	v.Kind = v.NormalizedKind()
	applyFieldDefaults(keys,
		stringFieldDefault("venue.kind", &v.Kind, defaultVenueKind),
		fieldDefault{
			key:   "venue.rate_limit_per_sec",
			need:  func() bool { return v.RateLimitPerSec <= 0 },
			apply: func() { v.RateLimitPerSec = defaultRateLimit },
		},
		fieldDefault{
			key:   "venue.rate_burst",
			need:  func() bool { return v.RateBurst <= 0 },
			apply: func() { v.RateBurst = defaultRateBurst },
		},
		fieldDefault{
			key:   "venue.breaker_threshold",
			need:  func() bool { return v.BreakerThreshold <= 0 },
			apply: func() { v.BreakerThreshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "venue.breaker_timeout_seconds",
			need:  func() bool { return v.BreakerTimeoutSeconds <= 0 },
			apply: func() { v.BreakerTimeoutSeconds = defaultBreakerTimeout },
		},
	)
	if v.Kind == "binance" {
		applyFieldDefaults(keys, stringFieldDefault("venue.base_url", &v.BaseURL, defaultBinanceBaseURL))
	}
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	f.Kind = f.NormalizedKind()
	f.Proxy.WSURL = strings.TrimSpace(f.Proxy.WSURL)
	applyFieldDefaults(keys,
		stringFieldDefault("feed.kind", &f.Kind, defaultFeedKind),
	)
	if f.Kind == "websocket" {
		applyFieldDefaults(keys,
			stringFieldDefault("feed.symbol_path", &f.SymbolPath, "s"),
			stringFieldDefault("feed.price_path", &f.PricePath, "p"),
		)
	}
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.snapshot_path", &s.SnapshotPath, defaultSnapshotPath),
		stringFieldDefault("store.ledger_path", &s.LedgerPath, defaultLedgerPath),
		stringFieldDefault("store.event_log", &s.EventLog, defaultEventLog),
	)
}

func (b *BookConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("book.path", &b.Path, defaultBookPath),
		boolFieldDefault("book.watch", &b.Watch, true),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
