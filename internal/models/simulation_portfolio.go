package models

import "gorm.io/gorm"

// SimulationPortfolio is the paper-trading cash ledger.
// There is exactly one row; every balance mutation happens under the
// process-wide wallet lock in the sniper package.
type SimulationPortfolio struct {
	gorm.Model
	Balance  float64 `gorm:"not null"`
	TotalPnL float64 `gorm:"column:total_pnl"`
}
