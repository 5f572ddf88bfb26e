package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ratchet/internal/position"
	"ratchet/internal/store"
	storemodel "ratchet/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type snapshotModel = storemodel.PositionSnapshotModel
type eventLogModel = storemodel.EventLogModel

var errNotInitialized = errors.New("gorm store not initialized")

// GormStore implements snapshot and event storage using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (creating if needed) the sqlite file at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&snapshotModel{}, &eventLogModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	return s.db.DB()
}

// --------------------------- Snapshots ------------------------------

func (s *GormStore) SaveSnapshot(ctx context.Context, snap position.Snapshot) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	model, err := newSnapshotModel(snap)
	if err != nil {
		return err
	}
	updates := clause.AssignmentColumns([]string{
		"run_state", "average_price", "total_cost", "quantity", "funding",
		"safety_bands", "upper_bound", "lower_bound", "trailing_offset",
		"buy_order_limit", "sell_order_limit", "trade_fraction",
		"active_buy_order_id", "active_sell_order_id", "margin_protection",
		"emergency_json", "updated_at",
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: updates,
		}).
		Create(&model).Error
}

func (s *GormStore) LoadSnapshot(ctx context.Context, symbol string) (position.Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return position.Snapshot{}, false, errNotInitialized
	}
	var model snapshotModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", position.NormalizeSymbol(symbol)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return position.Snapshot{}, false, nil
	}
	if err != nil {
		return position.Snapshot{}, false, err
	}
	snap, err := toSnapshot(model)
	if err != nil {
		return position.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *GormStore) LoadSnapshots(ctx context.Context) ([]position.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var models []snapshotModel
	if err := s.db.WithContext(ctx).Order("symbol ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]position.Snapshot, 0, len(models))
	for _, m := range models {
		snap, err := toSnapshot(m)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", m.Symbol, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// --------------------------- Event log ------------------------------

func (s *GormStore) AppendEvent(ctx context.Context, evt store.EventRecord) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	model := eventLogModel{
		EventID:       evt.ID,
		Type:          evt.Type,
		Symbol:        position.NormalizeSymbol(evt.Symbol),
		Payload:       datatypes.JSON(evt.Payload),
		CreatedAtUnix: evt.CreatedAt.UnixMilli(),
	}
	// A replayed event keeps its first row.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_uuid"}}, DoNothing: true}).
		Create(&model).Error
}

func (s *GormStore) LoadEvents(ctx context.Context, since time.Time, limit int) ([]store.EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = 1000
	}
	var models []eventLogModel
	query := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Limit(limit)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since.UnixMilli())
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.EventRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.EventRecord{
			ID:        m.EventID,
			Type:      m.Type,
			Payload:   []byte(m.Payload),
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
			Symbol:    m.Symbol,
		})
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newSnapshotModel(snap position.Snapshot) (snapshotModel, error) {
	emergency, err := json.Marshal(snap.EmergencyOrders)
	if err != nil {
		return snapshotModel{}, fmt.Errorf("encode emergency orders: %w", err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return snapshotModel{
		Symbol:            position.NormalizeSymbol(snap.Symbol),
		RunState:          snap.RunState,
		AveragePrice:      snap.AveragePrice,
		TotalCost:         snap.TotalCost,
		Quantity:          snap.Quantity,
		Funding:           snap.Funding,
		SafetyBands:       snap.SafetyBands,
		UpperBound:        snap.UpperBound,
		LowerBound:        snap.LowerBound,
		TrailingOffset:    snap.TrailingOffset,
		BuyOrderLimit:     snap.BuyOrderLimit,
		SellOrderLimit:    snap.SellOrderLimit,
		TradeFraction:     snap.TradeFraction,
		ActiveBuyOrderID:  snap.ActiveBuyOrderID,
		ActiveSellOrderID: snap.ActiveSellOrderID,
		MarginProtection:  snap.MarginProtection,
		EmergencyJSON:     datatypes.JSON(emergency),
		CreatedAtUnix:     updated.UnixMilli(),
		UpdatedAtUnix:     updated.UnixMilli(),
	}, nil
}

func toSnapshot(m snapshotModel) (position.Snapshot, error) {
	var emergency []position.EmergencyOrder
	if len(m.EmergencyJSON) > 0 && string(m.EmergencyJSON) != "null" {
		if err := json.Unmarshal(m.EmergencyJSON, &emergency); err != nil {
			return position.Snapshot{}, fmt.Errorf("decode emergency orders: %w", err)
		}
	}
	return position.Snapshot{
		Symbol:            m.Symbol,
		RunState:          m.RunState,
		AveragePrice:      m.AveragePrice,
		TotalCost:         m.TotalCost,
		Quantity:          m.Quantity,
		Funding:           m.Funding,
		SafetyBands:       m.SafetyBands,
		UpperBound:        m.UpperBound,
		LowerBound:        m.LowerBound,
		TrailingOffset:    m.TrailingOffset,
		BuyOrderLimit:     m.BuyOrderLimit,
		SellOrderLimit:    m.SellOrderLimit,
		TradeFraction:     m.TradeFraction,
		ActiveBuyOrderID:  m.ActiveBuyOrderID,
		ActiveSellOrderID: m.ActiveSellOrderID,
		MarginProtection:  m.MarginProtection,
		EmergencyOrders:   emergency,
		UpdatedAt:         time.UnixMilli(m.UpdatedAtUnix),
	}, nil
}
