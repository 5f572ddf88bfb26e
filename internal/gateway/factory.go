// Package gateway builds the configured venue and market-data source.
package gateway

import (
	"fmt"

	"ratchet/internal/config"
	"ratchet/internal/gateway/binance"
	"ratchet/internal/gateway/exchange"
	"ratchet/internal/gateway/gate"
	"ratchet/internal/gateway/paper"
	"ratchet/internal/gateway/wsfeed"
	"ratchet/internal/market"
)

// VenueSet is the order venue plus the concrete venue behind it. Exactly one
// of Paper and Live is set.
type VenueSet struct {
	Venue exchange.Venue
	Paper *paper.Venue
	Live  *binance.Venue
}

func NewVenueFromConfig(cfg config.VenueConfig) (VenueSet, error) {
	switch cfg.NormalizedKind() {
	case "", "paper":
		p := paper.New(paper.WithCommissionRate(cfg.CommissionRate))
		return VenueSet{Venue: p, Paper: p}, nil
	case "binance":
		v, err := binance.NewVenue(binance.Config{
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			RESTBaseURL: cfg.BaseURL,
			Testnet:     cfg.Testnet,
		})
		if err != nil {
			return VenueSet{}, err
		}
		return VenueSet{Venue: v, Live: v}, nil
	default:
		return VenueSet{}, fmt.Errorf("unsupported venue: %s", cfg.Kind)
	}
}

// NewSourceFromConfig returns nil when the feed is disabled; prices then
// only arrive through the status API.
func NewSourceFromConfig(cfg *config.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	feed := cfg.Feed
	switch feed.NormalizedKind() {
	case "", "none":
		return nil, nil
	case "binance":
		return binance.NewSource(binance.Config{
			Testnet:      cfg.Venue.Testnet,
			ProxyEnabled: feed.Proxy.Enabled,
			WSProxyURL:   feed.Proxy.WSURL,
		})
	case "gate":
		return gate.New(gate.Config{
			ProxyEnabled: feed.Proxy.Enabled,
			WSProxyURL:   feed.Proxy.WSURL,
		})
	case "websocket":
		wsCfg := wsfeed.Config{
			URL:        feed.WSURL,
			SymbolPath: feed.SymbolPath,
			PricePath:  feed.PricePath,
			Subscribe:  feed.Subscribe,
		}
		if feed.Proxy.Enabled {
			wsCfg.ProxyURL = feed.Proxy.WSURL
		}
		return wsfeed.NewSource(wsCfg)
	default:
		return nil, fmt.Errorf("unsupported market source: %s", feed.Kind)
	}
}
