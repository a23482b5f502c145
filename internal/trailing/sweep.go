package trailing

import (
	"context"
	"fmt"
	"time"

	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/resilience"
	"zenith-bot-go/internal/settings"
	"zenith-bot-go/internal/sniper"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PriceSource is the slice of the exchange client the sweep needs.
type PriceSource interface {
	GetTickerPrice(symbol string) (float64, error)
}

// Sweeper walks every open position once per cycle, ratchets the recorded
// peak price upward and exits positions whose price has fallen to the
// trailing stop. It runs before signal generation so a stop-out frees the
// position slot within the same cycle.
type Sweeper struct {
	db      *gorm.DB
	prices  PriceSource
	sniper  *sniper.Sniper
	logger  *zap.Logger
	breaker *resilience.Breaker
}

func NewSweeper(db *gorm.DB, prices PriceSource, sn *sniper.Sniper, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		db:      db,
		prices:  prices,
		sniper:  sn,
		logger:  logger.Named("trailing"),
		breaker: resilience.NewBreaker("sweep-ticker", 5, time.Minute),
	}
}

// Sweep processes every open position regardless of scope: a live position
// keeps its stop protection even while the bot runs in PAPER mode, and vice
// versa. Per-position failures are logged and skipped so one bad ticker
// cannot stall the rest.
func (s *Sweeper) Sweep(cfg settings.Snapshot) {
	if !cfg.TrailingEnabled {
		return
	}

	var positions []models.Position
	err := s.db.Where("is_open = ?", true).Find(&positions).Error
	if err != nil {
		s.logger.Error("Failed to load open positions", zap.Error(err))
		return
	}

	for i := range positions {
		if err := s.sweepOne(&positions[i], cfg); err != nil {
			s.logger.Warn("Trailing sweep skipped position",
				zap.Uint("position_id", positions[i].ID), zap.Error(err))
		}
	}
}

func (s *Sweeper) sweepOne(pos *models.Position, cfg settings.Snapshot) error {
	var asset models.Asset
	if err := s.db.First(&asset, pos.AssetID).Error; err != nil {
		return fmt.Errorf("failed to load asset %d: %w", pos.AssetID, err)
	}

	price, err := s.fetchPrice(asset.Symbol)
	if err != nil {
		return fmt.Errorf("ticker unavailable for %s: %w", asset.Symbol, err)
	}

	// The peak only ratchets upward.
	peak := pos.HighestPriceSeen
	if price > peak {
		peak = price
		if err := s.db.Model(pos).Update("highest_price_seen", peak).Error; err != nil {
			return fmt.Errorf("failed to persist peak: %w", err)
		}
		pos.HighestPriceSeen = peak
	}

	stop, armed := s.stopPrice(pos, peak, cfg)
	if !armed {
		return nil
	}

	if pos.TrailingStopPrice == nil || *pos.TrailingStopPrice != stop {
		if err := s.db.Model(pos).Update("trailing_stop_price", stop).Error; err != nil {
			return fmt.Errorf("failed to persist stop: %w", err)
		}
		pos.TrailingStopPrice = &stop
	}

	if price > stop {
		return nil
	}

	s.logger.Info("Trailing stop triggered",
		zap.String("symbol", asset.Symbol),
		zap.Float64("price", price),
		zap.Float64("stop", stop),
		zap.Float64("peak", peak))
	return s.exit(pos, &asset, price, stop)
}

// stopPrice computes the trailing stop for a position, or reports that the
// stop is not armed yet. Arming requires the peak to have cleared the entry
// by the minimum-profit margin; until then the position rides unprotected
// so ordinary volatility around the entry cannot shake it out.
func (s *Sweeper) stopPrice(pos *models.Position, peak float64, cfg settings.Snapshot) (float64, bool) {
	if pos.EntryAvg <= 0 {
		return 0, false
	}
	profitPct := (peak - pos.EntryAvg) / pos.EntryAvg * 100
	if profitPct < cfg.MinProfitToTrail {
		return 0, false
	}

	if cfg.TrailingUseATR && pos.EntryATR > 0 {
		return peak - pos.EntryATR*cfg.ATRMultiplier, true
	}
	return peak * (1 - cfg.TrailingPct/100), true
}

// fetchPrice wraps the ticker call with the shared circuit breaker. The REST
// client already retries transient failures internally.
func (s *Sweeper) fetchPrice(symbol string) (float64, error) {
	var price float64
	err := resilience.Do(context.Background(), s.breaker, 1, func() error {
		var err error
		price, err = s.prices.GetTickerPrice(symbol)
		return err
	})
	return price, err
}

// exit synthesizes a SELL signal and routes it through the regular executor,
// so a stop-out hits the same ledger, session and capital bookkeeping as an
// advisor-driven exit. The signal inherits the position's scope, which the
// executor uses to pick the sim or live path.
func (s *Sweeper) exit(pos *models.Position, asset *models.Asset, price, stop float64) error {
	sig := models.TradeSignal{
		AssetID:     pos.AssetID,
		SignalType:  models.SignalTypeSell,
		EntryTarget: price,
		Status:      models.SignalStatusPending,
		JudgeReason: fmt.Sprintf("Trailing Stop: price %.4f <= stop %.4f (peak %.4f)", price, stop, pos.HighestPriceSeen),
		IsSim:       pos.IsSim,
	}
	if err := s.db.Create(&sig).Error; err != nil {
		return fmt.Errorf("failed to record stop-out signal: %w", err)
	}

	if !s.sniper.ExecuteOrder(&sig, asset.Symbol, 0) {
		return fmt.Errorf("stop-out execution failed for %s", asset.Symbol)
	}
	return nil
}
