package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ratchet/internal/store"
)

// SQLiteEventStore implements EventStore on the shared state database.
type SQLiteEventStore struct {
	db store.EventLog
}

func NewSQLiteEventStore(db store.EventLog) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

func (s *SQLiteEventStore) Append(evt EventEnvelope) error {
	if s.db == nil {
		return fmt.Errorf("sqlite event store: database is nil")
	}
	if evt.ID == "" {
		return fmt.Errorf("sqlite event store: event id is required")
	}
	rec := store.EventRecord{
		ID:        evt.ID,
		Type:      string(evt.Type),
		Payload:   []byte(evt.Payload),
		CreatedAt: evt.CreatedAt,
		Symbol:    evt.Symbol,
	}
	return s.db.AppendEvent(context.Background(), rec)
}

// LoadAll pages through the whole log.
func (s *SQLiteEventStore) LoadAll() ([]EventEnvelope, error) {
	if s.db == nil {
		return nil, fmt.Errorf("sqlite event store: database is nil")
	}
	ctx := context.Background()
	const limit = 1000
	since := time.Time{}
	var out []EventEnvelope
	for {
		recs, err := s.db.LoadEvents(ctx, since, limit)
		if err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		for _, r := range recs {
			out = append(out, EventEnvelope{
				ID:        r.ID,
				Type:      EventType(r.Type),
				Payload:   json.RawMessage(r.Payload),
				CreatedAt: r.CreatedAt,
				Symbol:    r.Symbol,
			})
		}
		if len(recs) < limit {
			break
		}
		since = recs[len(recs)-1].CreatedAt
	}
	return out, nil
}

// Close is a no-op; the database is owned by the app.
func (s *SQLiteEventStore) Close() error {
	return nil
}
