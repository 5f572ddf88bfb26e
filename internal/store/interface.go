package store

import (
	"context"
	"time"

	"ratchet/internal/position"
)

// SnapshotStore keeps the latest snapshot per symbol.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap position.Snapshot) error
	// LoadSnapshot reports false when nothing was saved for symbol.
	LoadSnapshot(ctx context.Context, symbol string) (position.Snapshot, bool, error)
	LoadSnapshots(ctx context.Context) ([]position.Snapshot, error)
}

// EventLog is the append-only record of handled facts.
type EventLog interface {
	AppendEvent(ctx context.Context, evt EventRecord) error
	// LoadEvents returns events created strictly after since, oldest first.
	LoadEvents(ctx context.Context, since time.Time, limit int) ([]EventRecord, error)
}

// Store is the entry point for database access.
type Store interface {
	SnapshotStore
	EventLog
	Close() error
}

type EventRecord struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Symbol    string
}
