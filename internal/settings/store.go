package settings

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"zenith-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Runtime configuration keys. Values are persisted as strings in bot_config;
// the typed accessors below parse them exactly once at this boundary.
const (
	KeyTradingMode        = "TRADING_MODE"
	KeyBotStatus          = "BOT_STATUS"
	KeyPositionSizePct    = "POSITION_SIZE_PCT"
	KeyMaxRiskPerTrade    = "MAX_RISK_PER_TRADE"
	KeyRSIThreshold       = "RSI_THRESHOLD"
	KeyConfThreshold      = "AI_CONF_THRESHOLD"
	KeyMaxOpenPositions   = "MAX_OPEN_POSITIONS"
	KeyEnableEMATrend     = "ENABLE_EMA_TREND"
	KeyEnableMACDMomentum = "ENABLE_MACD_MOMENTUM"
	KeyTrailingEnabled    = "TRAILING_STOP_ENABLED"
	KeyTrailingPct        = "TRAILING_STOP_PCT"
	KeyMinProfitToTrail   = "MIN_PROFIT_TO_TRAIL_PCT"
	KeyTrailingUseATR     = "TRAILING_STOP_USE_ATR"
	KeyATRMultiplier      = "TRAILING_STOP_ATR_MULTIPLIER"
	KeyFarmingInterval    = "FARMING_INTERVAL_HOURS"
	KeyCycleMinutes       = "TRADING_CYCLE_MINUTES"
	KeyTimeframe          = "TIMEFRAME"
	KeyMinVolume          = "MIN_VOLUME"
	KeyUniverse           = "TRADING_UNIVERSE"
	KeyActiveCandidates   = "ACTIVE_CANDIDATES"
	KeyLastFarmTime       = "LAST_FARM_TIME"
	KeyLastHeartbeat      = "LAST_HEARTBEAT"
	KeyStatusDetail       = "BOT_STATUS_DETAIL"
)

// Store is the typed accessor over the bot_config table. Raw values may carry
// literal quote characters from dashboard JSON round-trips; normalization
// happens here and nowhere else.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a settings store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("settings")}
}

// normalize strips surrounding whitespace and stray quote characters that a
// JSON round-trip can leave in stored values.
func normalize(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}

// Get returns the normalized value for key, or def when absent.
func (s *Store) Get(key, def string) string {
	var entry models.BotConfig
	err := s.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def
	}
	if err != nil {
		s.logger.Warn("Config read failed, using default",
			zap.String("key", key), zap.Error(err))
		return def
	}
	v := normalize(entry.Value)
	if v == "" {
		return def
	}
	return v
}

// GetFloat returns the value for key parsed as float64, or def.
func (s *Store) GetFloat(key string, def float64) float64 {
	raw := s.Get(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.Warn("Config value is not a number, using default",
			zap.String("key", key), zap.String("value", raw))
		return def
	}
	return f
}

// GetInt returns the value for key parsed as int, or def.
func (s *Store) GetInt(key string, def int) int {
	raw := s.Get(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.Warn("Config value is not a number, using default",
			zap.String("key", key), zap.String("value", raw))
		return def
	}
	return int(f)
}

// GetBool returns the value for key parsed as bool, or def.
func (s *Store) GetBool(key string, def bool) bool {
	raw := strings.ToLower(s.Get(key, ""))
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	case "":
		return def
	default:
		s.logger.Warn("Config value is not a boolean, using default",
			zap.String("key", key), zap.String("value", raw))
		return def
	}
}

// stateKeys are engine bookkeeping, not operator settings; changes to them
// are not worth a config_change_logs row every cycle.
var stateKeys = map[string]bool{
	KeyActiveCandidates: true,
	KeyLastFarmTime:     true,
	KeyLastHeartbeat:    true,
	KeyStatusDetail:     true,
}

// Set upserts a config entry and records the change against the active
// session of the current trading mode.
func (s *Store) Set(key, value string) error {
	old := s.Get(key, "")

	entry := models.BotConfig{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return err
	}

	if stateKeys[key] || old == normalize(value) {
		return nil
	}

	// Best effort change log; a missing session is not an error.
	var session models.TradingSession
	sessionID := uint(0)
	mode := s.Get(KeyTradingMode, models.ModePaper)
	if err := s.db.Where("mode = ? AND is_active = ?", mode, true).
		First(&session).Error; err == nil {
		sessionID = session.ID
	}
	logEntry := models.ConfigChangeLog{
		SessionID: sessionID,
		Key:       key,
		OldValue:  old,
		NewValue:  normalize(value),
	}
	if err := s.db.Create(&logEntry).Error; err != nil {
		s.logger.Warn("Failed to record config change", zap.String("key", key), zap.Error(err))
	}

	return nil
}

// SnapshotJSON serializes all config entries as a JSON object, used to stamp
// new trading sessions with the config they started under.
func (s *Store) SnapshotJSON() string {
	var entries []models.BotConfig
	if err := s.db.Find(&entries).Error; err != nil {
		s.logger.Warn("Failed to snapshot config", zap.Error(err))
		return "{}"
	}

	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = normalize(e.Value)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}
