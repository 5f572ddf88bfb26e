package model

import (
	"gorm.io/datatypes"
)

// PositionSnapshotModel holds the latest snapshot of one symbol.
type PositionSnapshotModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	Symbol            string         `gorm:"column:symbol;uniqueIndex"`
	RunState          string         `gorm:"column:run_state"`
	AveragePrice      float64        `gorm:"column:average_price"`
	TotalCost         float64        `gorm:"column:total_cost"`
	Quantity          float64        `gorm:"column:quantity"`
	Funding           float64        `gorm:"column:funding"`
	SafetyBands       int            `gorm:"column:safety_bands"`
	UpperBound        float64        `gorm:"column:upper_bound"`
	LowerBound        float64        `gorm:"column:lower_bound"`
	TrailingOffset    float64        `gorm:"column:trailing_offset"`
	BuyOrderLimit     float64        `gorm:"column:buy_order_limit"`
	SellOrderLimit    float64        `gorm:"column:sell_order_limit"`
	TradeFraction     float64        `gorm:"column:trade_fraction"`
	ActiveBuyOrderID  string         `gorm:"column:active_buy_order_id"`
	ActiveSellOrderID string         `gorm:"column:active_sell_order_id"`
	MarginProtection  float64        `gorm:"column:margin_protection"`
	EmergencyJSON     datatypes.JSON `gorm:"column:emergency_json;type:TEXT"`
	CreatedAtUnix     int64          `gorm:"column:created_at"`
	UpdatedAtUnix     int64          `gorm:"column:updated_at"`
}

func (PositionSnapshotModel) TableName() string { return "position_snapshots" }

// EventLogModel maps to the append-only 'event_log' table.
type EventLogModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_uuid;uniqueIndex"`
	Type          string         `gorm:"column:type"`
	Symbol        string         `gorm:"column:symbol;index"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (EventLogModel) TableName() string { return "event_log" }
