package models

import "gorm.io/gorm"

const (
	SignalTypeBuy  = "BUY"
	SignalTypeSell = "SELL"

	SignalStatusPending  = "PENDING"
	SignalStatusExecuted = "EXECUTED"
	SignalStatusRejected = "REJECTED"
	SignalStatusFailed   = "FAILED"
)

// TradeSignal is an immutable record of one recommendation-to-decision event.
// Status transitions exactly once from PENDING to a terminal state.
type TradeSignal struct {
	gorm.Model
	AssetID     uint   `gorm:"index;not null"`
	Asset       Asset  `gorm:"foreignKey:AssetID"`
	SignalType  string `gorm:"not null"` // BUY or SELL
	EntryTarget float64
	EntryATR    float64
	Status      string `gorm:"index;default:PENDING"`
	JudgeReason string
	IsSim       bool `gorm:"index"`
}
