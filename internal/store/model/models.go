package model

import (
	"time"

	"gorm.io/datatypes"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// PositionModel 是手动跟踪的价差头寸；Sizing 保存开仓时的计算快照。
type PositionModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	PairID      string         `gorm:"column:pair_id;index"`
	AssetA      string         `gorm:"column:asset_a"`
	AssetB      string         `gorm:"column:asset_b"`
	Side        string         `gorm:"column:side"`
	QuantityA   float64        `gorm:"column:quantity_a"`
	QuantityB   float64        `gorm:"column:quantity_b"`
	EntryPriceA float64        `gorm:"column:entry_price_a"`
	EntryPriceB float64        `gorm:"column:entry_price_b"`
	Beta        float64        `gorm:"column:beta"`
	EntryZScore float64        `gorm:"column:entry_zscore"`
	Status      PositionStatus `gorm:"column:status;index"`
	Notes       string         `gorm:"column:notes"`
	Sizing      datatypes.JSON `gorm:"column:sizing_json;type:TEXT"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "pair_positions" }

// AlertModel 监控单个资产对的 z-score 上下阈值。
type AlertModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	PairID        string         `gorm:"column:pair_id;index"`
	AssetA        string         `gorm:"column:asset_a"`
	AssetB        string         `gorm:"column:asset_b"`
	ThresholdHigh *float64       `gorm:"column:threshold_high"`
	ThresholdLow  *float64       `gorm:"column:threshold_low"`
	Enabled       bool           `gorm:"column:enabled"`
	LastTriggered *time.Time     `gorm:"column:last_triggered"`
	LastZScore    *float64       `gorm:"column:last_zscore"`
	TriggerCount  int            `gorm:"column:trigger_count"`
	Meta          datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (AlertModel) TableName() string { return "zscore_alerts" }
