package market

import "context"

type TickEvent struct {
	Symbol    string
	Price     float64
	Quantity  float64
	EventTime int64
}

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int    `json:"reconnects"`
	SubscribeErrors int    `json:"subscribe_errors"`
	LastError       string `json:"last_error,omitempty"`
}

// Source streams trade prices. Calling SubscribeTrades again replaces the
// previous subscription and closes its channel.
type Source interface {
	SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TickEvent, error)

	Stats() SourceStats

	Close() error
}
