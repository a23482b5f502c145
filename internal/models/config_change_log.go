package models

import "gorm.io/gorm"

// ConfigChangeLog records a runtime config change made during a session.
type ConfigChangeLog struct {
	gorm.Model
	SessionID uint `gorm:"index"`
	Key       string
	OldValue  string
	NewValue  string
}
