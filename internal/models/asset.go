package models

import "gorm.io/gorm"

const (
	AssetStatusActive      = "active"
	AssetStatusBlacklisted = "blacklisted"
)

// Asset represents a tradable symbol (e.g. "BTCUSDT").
// Assets are created lazily the first time a symbol is processed and never deleted.
type Asset struct {
	gorm.Model
	Symbol     string `gorm:"uniqueIndex;not null"`
	MarketType string `gorm:"default:spot"`
	Status     string `gorm:"default:active"` // active, blacklisted
}
