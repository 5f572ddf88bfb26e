package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Venue.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Book.Path) == "" {
		return fmt.Errorf("book.path cannot be empty")
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be debug, info, warn or error, got %q", a.LogLevel)
	}
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if s.InitialMargin > 1 {
		return fmt.Errorf("strategy.initial_margin must be in (0,1], got %v", s.InitialMargin)
	}
	if s.MaintenanceMargin >= 1 {
		return fmt.Errorf("strategy.maintenance_margin must be below 1, got %v", s.MaintenanceMargin)
	}
	if s.CommissionRate < 0 || s.CommissionMin < 0 {
		return fmt.Errorf("strategy commission settings must be >= 0")
	}
	return nil
}

func (v *VenueConfig) validate() error {
	switch v.Kind {
	case "paper":
	case "binance":
		if strings.TrimSpace(v.APIKey) == "" || strings.TrimSpace(v.APISecret) == "" {
			return fmt.Errorf("venue.binance requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("venue.kind must be paper or binance, got %q", v.Kind)
	}
	if v.CommissionRate < 0 {
		return fmt.Errorf("venue.commission_rate must be >= 0")
	}
	return nil
}

func (f *FeedConfig) validate() error {
	switch f.Kind {
	case "none", "binance", "gate":
	case "websocket":
		if strings.TrimSpace(f.WSURL) == "" {
			return fmt.Errorf("feed.ws_url is required for the websocket feed")
		}
	default:
		return fmt.Errorf("feed.kind must be one of none, websocket, binance, gate; got %q", f.Kind)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
