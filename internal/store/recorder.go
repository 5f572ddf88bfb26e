package store

import (
	"context"

	"ratchet/internal/logger"
	"ratchet/internal/orchestrator"
	"ratchet/internal/position"
)

// SnapshotRecorder persists every published snapshot. A failed write is
// logged and the next change writes the full state again.
type SnapshotRecorder struct {
	orchestrator.NopObserver
	store SnapshotStore
}

func NewSnapshotRecorder(s SnapshotStore) *SnapshotRecorder {
	return &SnapshotRecorder{store: s}
}

func (r *SnapshotRecorder) PositionChanged(ctx context.Context, snap position.Snapshot) {
	r.save(ctx, snap)
}

func (r *SnapshotRecorder) TriggerCreated(ctx context.Context, _ orchestrator.TriggerSpec, snap position.Snapshot) {
	r.save(ctx, snap)
}

func (r *SnapshotRecorder) save(ctx context.Context, snap position.Snapshot) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.SaveSnapshot(ctx, snap); err != nil {
		logger.Errorf("save snapshot %s: %v", snap.Symbol, err)
	}
}
