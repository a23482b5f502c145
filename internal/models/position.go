package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PositionSideLong = "LONG"
)

// Position represents one open-or-closed holding.
// At most one open position may exist per (asset, is_sim) pair; the judge checks
// this before approving a BUY and the sniper re-verifies it before mutating.
type Position struct {
	gorm.Model
	AssetID           uint    `gorm:"index;not null"`
	Asset             Asset   `gorm:"foreignKey:AssetID"`
	Side              string  `gorm:"default:LONG"`
	EntryAvg          float64 `gorm:"not null"`
	Quantity          float64 `gorm:"not null"`
	IsOpen            bool    `gorm:"index;default:true"`
	IsSim             bool    `gorm:"index"`
	EntryATR          float64
	HighestPriceSeen  float64
	TrailingStopPrice *float64
	ExitPrice         float64
	ExitReason        string
	PnL               float64 `gorm:"column:pnl"`
	ClosedAt          *time.Time
	SessionID         uint `gorm:"index"`
}
