package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ModePaper = "PAPER"
	ModeLive  = "LIVE"
)

// TradingSession groups trades and balance snapshots for one continuous run in
// one mode. Exactly one session per mode is active at a time.
type TradingSession struct {
	gorm.Model
	ExternalID     string `gorm:"uniqueIndex"`
	SessionName    string
	Mode           string `gorm:"index;not null"`
	StartBalance   float64
	CurrentBalance float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	GrossProfit    float64
	GrossLoss      float64
	NetPnL         float64 `gorm:"column:net_pnl"`
	WinRate        float64
	AvgWin         float64
	AvgLoss        float64
	ProfitFactor   float64
	LargestWin     float64
	LargestLoss    float64
	MaxDrawdown    float64
	MaxDrawdownPct float64
	IsActive       bool   `gorm:"index"`
	ConfigSnapshot string // JSON of all bot_config at creation time
	EndedAt        *time.Time
}
