package db

import (
	"database/sql"
	"time"
)

// Strategy represents a configured strategy row.
type Strategy struct {
	ID                  string
	UserID              string
	Name                string
	Symbol              string
	Timeframe           string
	StrategyType        string
	Status              string // draft, active, inactive
	PositionSizePercent float64
	StopLossPercent     float64
	TakeProfitPercent   float64
	RSIPeriod           int
	RSIOverbought       float64
	RSIOversold         float64
	EMAFastPeriod       int
	EMASlowPeriod       int
	ATRPeriod           int
	ADXPeriod           int
	VolumeMultiplier    float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Condition is an entry/exit rule attached to a strategy.
type Condition struct {
	ID           int64
	StrategyID   string
	Side         string // entry or exit
	Indicator    string
	Operator     string
	Threshold    float64
	ThresholdRef string // literal, rsi_overbought, rsi_oversold, volume_gate
	Ordinal      int
}

// Position tracks the live position for a strategy. At most one open
// position per strategy at a time. Stop and target percentages are frozen
// from the adjusted parameters at entry time so later regime shifts cannot
// move an open position's exits.
type Position struct {
	StrategyID        string
	UserID            string
	Symbol            string
	IsOpen            bool
	Side              string
	EntryPrice        float64
	EntryTime         time.Time
	StopLossPercent   float64
	TakeProfitPercent float64
	UpdatedAt         time.Time
}

// Trade is an executed (or reconciled) round trip. Immutable once closed.
type Trade struct {
	ID         string
	StrategyID string
	UserID     string
	Symbol     string
	Side       string
	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  sql.NullFloat64
	ExitTime   sql.NullTime
	Quantity   float64
	Profit     sql.NullFloat64
	ExitReason string
	CreatedAt  time.Time
}

// Signal is a durable entry/exit decision tracked through delivery.
type Signal struct {
	ID               string
	StrategyID       string
	UserID           string
	Symbol           string
	SignalType       string // BUY or SELL
	Price            float64
	Reason           string
	Status           string // pending, delivered, failed, expired
	DeliveryAttempts int
	LastAttemptAt    sql.NullTime
	Bucket           string
	CreatedAt        time.Time
}
