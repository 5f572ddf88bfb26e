package gateway

import (
	"testing"

	"ratchet/internal/config"
	"ratchet/internal/gateway/gate"
	"ratchet/internal/gateway/wsfeed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVenueFromConfig(t *testing.T) {
	set, err := NewVenueFromConfig(config.VenueConfig{Kind: "Paper"})
	require.NoError(t, err)
	assert.NotNil(t, set.Paper)
	assert.Nil(t, set.Live)
	assert.Equal(t, "paper", set.Venue.Name())

	_, err = NewVenueFromConfig(config.VenueConfig{Kind: "binance"})
	assert.Error(t, err, "binance needs credentials")

	_, err = NewVenueFromConfig(config.VenueConfig{Kind: "ftx"})
	assert.Error(t, err)
}

func TestNewSourceFromConfig(t *testing.T) {
	src, err := NewSourceFromConfig(&config.Config{Feed: config.FeedConfig{Kind: "none"}})
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = NewSourceFromConfig(&config.Config{Feed: config.FeedConfig{Kind: "websocket", WSURL: "ws://127.0.0.1:1/feed"}})
	require.NoError(t, err)
	assert.IsType(t, &wsfeed.Source{}, src)

	src, err = NewSourceFromConfig(&config.Config{Feed: config.FeedConfig{Kind: "gate"}})
	require.NoError(t, err)
	assert.IsType(t, &gate.Source{}, src)

	_, err = NewSourceFromConfig(&config.Config{Feed: config.FeedConfig{Kind: "kafka"}})
	assert.Error(t, err)
	_, err = NewSourceFromConfig(nil)
	assert.Error(t, err)
}
