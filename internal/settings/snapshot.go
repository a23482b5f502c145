package settings

import "zenith-bot-go/internal/models"

// Snapshot is a typed view of the runtime config, loaded once per orchestrator
// cycle and threaded through the judge and sniper as a parameter. Dashboard
// edits therefore take effect on the very next cycle without hidden globals.
type Snapshot struct {
	Mode               string
	Stopped            bool
	PositionSizePct    float64 // percent of balance targeted per BUY
	MaxRiskPerTradePct float64 // hard cap, percent of balance
	RSIThreshold       float64
	ConfThreshold      float64
	MaxOpenPositions   int
	EnableEMATrend     bool
	EnableMACDMomentum bool
	TrailingEnabled    bool
	TrailingPct        float64 // percent of peak
	MinProfitToTrail   float64 // percent gain from entry required to arm
	TrailingUseATR     bool
	ATRMultiplier      float64
	FarmingIntervalHrs float64
	CycleMinutes       int
	Timeframe          string
	MinVolume          float64
	Universe           string
}

// IsSim reports whether the snapshot's mode is paper trading.
func (s Snapshot) IsSim() bool { return s.Mode == models.ModePaper }

// Load builds a typed snapshot from the store using the documented defaults.
func (s *Store) Load() Snapshot {
	return Snapshot{
		Mode:               s.Get(KeyTradingMode, models.ModePaper),
		Stopped:            s.Get(KeyBotStatus, "RUNNING") == "STOPPED",
		PositionSizePct:    s.GetFloat(KeyPositionSizePct, 5.0),
		MaxRiskPerTradePct: s.GetFloat(KeyMaxRiskPerTrade, 10.0),
		RSIThreshold:       s.GetFloat(KeyRSIThreshold, 75.0),
		ConfThreshold:      s.GetFloat(KeyConfThreshold, 60.0),
		MaxOpenPositions:   s.GetInt(KeyMaxOpenPositions, 5),
		EnableEMATrend:     s.GetBool(KeyEnableEMATrend, false),
		EnableMACDMomentum: s.GetBool(KeyEnableMACDMomentum, false),
		TrailingEnabled:    s.GetBool(KeyTrailingEnabled, true),
		TrailingPct:        s.GetFloat(KeyTrailingPct, 3.0),
		MinProfitToTrail:   s.GetFloat(KeyMinProfitToTrail, 1.0),
		TrailingUseATR:     s.GetBool(KeyTrailingUseATR, false),
		ATRMultiplier:      s.GetFloat(KeyATRMultiplier, 2.0),
		FarmingIntervalHrs: s.GetFloat(KeyFarmingInterval, 12.0),
		CycleMinutes:       s.GetInt(KeyCycleMinutes, 2),
		Timeframe:          s.Get(KeyTimeframe, "1h"),
		MinVolume:          s.GetFloat(KeyMinVolume, 1000000),
		Universe:           s.Get(KeyUniverse, "ALL"),
	}
}
