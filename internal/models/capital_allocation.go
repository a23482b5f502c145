package models

import "gorm.io/gorm"

// CapitalAllocation splits a mode's funds into trading capital (usable by the
// bot) and a protected profit reserve. Keyed on mode, shared across sessions
// of that mode.
type CapitalAllocation struct {
	gorm.Model
	Mode                string  `gorm:"uniqueIndex;not null"` // PAPER or LIVE
	TradingCapital      float64 `gorm:"not null"`
	ProfitReserve       float64
	AutoTransferEnabled bool
	TransferThreshold   float64 `gorm:"default:100"`
	TransferPercentage  float64 `gorm:"default:50"`
	TotalDeposited      float64
}
