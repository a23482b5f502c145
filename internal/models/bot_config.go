package models

import "gorm.io/gorm"

// BotConfig is a single runtime configuration entry. Values are stored as
// strings; typed parsing happens once at the settings.Store boundary.
type BotConfig struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value string `gorm:"not null"`
}
