package models

import "gorm.io/gorm"

// BalanceSnapshot is a periodic equity sample used for drawdown tracking.
type BalanceSnapshot struct {
	gorm.Model
	SessionID   uint `gorm:"index;not null"`
	Balance     float64
	Equity      float64
	PeakEquity  float64
	Drawdown    float64
	DrawdownPct float64
}
