package trader

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names what an envelope carries.
type EventType string

const (
	// EvtTick is a market price for one symbol.
	EvtTick EventType = "TICK"
	// EvtFill is a venue fill for one symbol.
	EvtFill EventType = "FILL"
)

// TickPayload carries one price.
type TickPayload struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventEnvelope is the message a Worker consumes.
type EventEnvelope struct {
	ID        string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
	Symbol    string

	// ReplyCh receives the handler result when set.
	ReplyCh chan error `json:"-"`
}

func newEnvelope(t EventType, symbol string, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   raw,
		CreatedAt: time.Now(),
		Symbol:    symbol,
	}, nil
}

// shouldPersistEvent keeps the event log to facts. Ticks are only decision
// inputs and are not stored.
func shouldPersistEvent(t EventType) bool {
	return t == EvtFill
}
