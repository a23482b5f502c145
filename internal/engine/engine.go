package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/binance"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/indicator"
	"zenith-bot-go/internal/judge"
	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/resilience"
	"zenith-bot-go/internal/scout"
	"zenith-bot-go/internal/session"
	"zenith-bot-go/internal/settings"
	"zenith-bot-go/internal/sniper"
	"zenith-bot-go/internal/trailing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// klineLimit covers the slowest indicator (EMA-50) with headroom.
const klineLimit = 100

// Engine drives the trading loop: a long-period farming phase that refreshes
// the candidate list, and a short-period sniping phase that runs the
// sweep -> indicators -> advisor -> judge -> sniper pipeline per candidate.
type Engine struct {
	db       *gorm.DB
	client   binance.RestClientInterface
	advisor  advisor.AdvisorInterface
	store    *settings.Store
	scout    *scout.Scout
	sniper   *sniper.Sniper
	sweeper  *trailing.Sweeper
	sessions *session.Manager
	capital  *capital.Manager
	cfg      *config.Config
	logger   *zap.Logger

	tickerBreaker *resilience.Breaker
}

func New(db *gorm.DB, client binance.RestClientInterface, adv advisor.AdvisorInterface,
	store *settings.Store, sc *scout.Scout, sn *sniper.Sniper, sw *trailing.Sweeper,
	sessions *session.Manager, cap *capital.Manager, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		client:   client,
		advisor:  adv,
		store:    store,
		scout:    sc,
		sniper:   sn,
		sweeper:  sw,
		sessions: sessions,
		capital:  cap,
		cfg:      cfg,
		logger:   logger.Named("engine"),

		tickerBreaker: resilience.NewBreaker("equity-ticker", 5, time.Minute),
	}
}

// Run blocks until ctx is cancelled. The watchdog runs alongside the loop
// and force-exits the process when the loop stops making progress.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine starting")
	go e.watchdog(ctx)

	for {
		snap := e.store.Load()
		e.cycle(ctx, snap)

		wait := time.Duration(snap.CycleMinutes) * time.Minute
		if wait <= 0 {
			wait = time.Minute
		}
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// cycle runs one full pass. Every pass refreshes the heartbeat, even when
// trading is paused, so the watchdog only fires on a genuinely hung loop.
func (e *Engine) cycle(ctx context.Context, snap settings.Snapshot) {
	e.heartbeat()

	if snap.Stopped {
		e.setStatus("Paused by operator")
		return
	}

	if err := e.ensureSession(snap); err != nil {
		e.logger.Error("Session bootstrap failed", zap.Error(err))
		return
	}

	if e.farmingDue(snap) {
		e.setStatus("Farming: scanning market")
		if _, err := e.scout.Farm(snap); err != nil {
			e.logger.Error("Farming failed, keeping previous candidates", zap.Error(err))
		} else {
			e.store.Set(settings.KeyLastFarmTime, strconv.FormatInt(time.Now().Unix(), 10))
		}
	}

	// Stops run before new signals so a stop-out frees its slot this cycle.
	e.sweeper.Sweep(snap)

	balance, err := e.tradableBalance(snap)
	if err != nil {
		e.logger.Error("Balance unavailable, skipping cycle", zap.Error(err))
		e.setStatus("Degraded: balance unavailable")
		return
	}

	symbols := e.watchlist(snap)
	if len(symbols) == 0 {
		e.setStatus("Idle: no candidates")
		return
	}

	e.setStatus(fmt.Sprintf("Sniping: %d candidates", len(symbols)))
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Each symbol can block on advisor and kline calls for a while, so
		// the heartbeat is refreshed per symbol, not just per cycle.
		e.heartbeat()
		if err := e.processSymbol(ctx, symbol, balance, snap); err != nil {
			e.logger.Warn("Symbol skipped", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	e.snapshotEquity(snap, balance)
}

// watchlist merges the farmed candidates with the symbols of currently open
// positions, so a position whose symbol dropped out of the candidate list is
// still managed until it closes.
func (e *Engine) watchlist(snap settings.Snapshot) []string {
	symbols := e.scout.Candidates()
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		seen[s] = true
	}

	var open []models.Position
	if err := e.db.Where("is_open = ? AND is_sim = ?", true, snap.IsSim()).Find(&open).Error; err != nil {
		e.logger.Error("Failed to load open positions for watchlist", zap.Error(err))
		return symbols
	}
	for _, pos := range open {
		var asset models.Asset
		if err := e.db.First(&asset, pos.AssetID).Error; err != nil {
			continue
		}
		if !seen[asset.Symbol] {
			seen[asset.Symbol] = true
			symbols = append(symbols, asset.Symbol)
		}
	}
	return symbols
}

// processSymbol runs the full decision pipeline for one symbol.
func (e *Engine) processSymbol(ctx context.Context, symbol string, balance float64, snap settings.Snapshot) error {
	asset, err := e.asset(symbol)
	if err != nil {
		return err
	}
	if asset.Status == models.AssetStatusBlacklisted {
		return nil
	}

	klines, err := e.client.GetKlines(symbol, snap.Timeframe, klineLimit)
	if err != nil {
		return fmt.Errorf("klines unavailable: %w", err)
	}
	tech, err := indicator.Compute(klines)
	if err != nil {
		return err
	}

	rec := e.advisor.Recommend(ctx, symbol, tech)
	if !rec.Actionable() {
		e.logger.Debug("Advisor not actionable",
			zap.String("symbol", symbol),
			zap.String("action", rec.Recommendation))
		return nil
	}

	state, err := e.positionState(asset.ID, snap)
	if err != nil {
		return err
	}

	sig := models.TradeSignal{
		AssetID:     asset.ID,
		SignalType:  rec.Recommendation,
		EntryTarget: tech.Close,
		EntryATR:    tech.ATR,
		Status:      models.SignalStatusPending,
		IsSim:       snap.IsSim(),
	}
	if err := e.db.Create(&sig).Error; err != nil {
		return fmt.Errorf("failed to record signal: %w", err)
	}

	decision := judge.Evaluate(rec, tech, balance, state, snap)
	switch d := decision.(type) {
	case judge.Approved:
		e.db.Model(&sig).Update("judge_reason", d.ReasonText)
		sig.JudgeReason = d.ReasonText
		e.sniper.ExecuteOrder(&sig, symbol, d.Size)
	case judge.Rejected:
		e.logger.Info("Signal rejected",
			zap.String("symbol", symbol),
			zap.String("reason", d.ReasonText))
		e.db.Model(&sig).Updates(map[string]interface{}{
			"status":       models.SignalStatusRejected,
			"judge_reason": d.ReasonText,
		})
	}
	return nil
}

func (e *Engine) positionState(assetID uint, snap settings.Snapshot) (judge.PositionState, error) {
	var total int64
	err := e.db.Model(&models.Position{}).
		Where("is_open = ? AND is_sim = ?", true, snap.IsSim()).Count(&total).Error
	if err != nil {
		return judge.PositionState{}, fmt.Errorf("failed to count open positions: %w", err)
	}
	var own int64
	err = e.db.Model(&models.Position{}).
		Where("asset_id = ? AND is_open = ? AND is_sim = ?", assetID, true, snap.IsSim()).
		Count(&own).Error
	if err != nil {
		return judge.PositionState{}, fmt.Errorf("failed to check position: %w", err)
	}
	return judge.PositionState{OpenCount: int(total), HasOpen: own > 0}, nil
}

// asset finds or lazily creates the asset row for a symbol.
func (e *Engine) asset(symbol string) (*models.Asset, error) {
	var asset models.Asset
	err := e.db.Where(models.Asset{Symbol: symbol}).FirstOrCreate(&asset).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset %s: %w", symbol, err)
	}
	return &asset, nil
}

// tradableBalance returns the quote balance the judge may size against:
// the simulated wallet in PAPER mode, the exchange balance capped by the
// capital allocation in LIVE mode.
func (e *Engine) tradableBalance(snap settings.Snapshot) (float64, error) {
	if snap.IsSim() {
		return e.sniper.SimBalance()
	}
	actual, err := e.client.GetBalance(e.cfg.Trading.QuoteAsset)
	if err != nil {
		return 0, err
	}
	return e.capital.AvailableTradingBalance(snap.Mode, actual), nil
}

// ensureSession guarantees an active session exists for the current mode.
func (e *Engine) ensureSession(snap settings.Snapshot) error {
	active, err := e.sessions.Active(snap.Mode)
	if err != nil {
		return err
	}
	if active != nil {
		return nil
	}
	balance, err := e.tradableBalance(snap)
	if err != nil {
		balance = e.cfg.Trading.InitialCapital
	}
	_, err = e.sessions.Create(snap.Mode, balance, "", e.store.SnapshotJSON())
	return err
}

// snapshotEquity records the cycle's closing balance plus the unrealized
// value of open positions for the drawdown series.
func (e *Engine) snapshotEquity(snap settings.Snapshot, balance float64) {
	active, err := e.sessions.Active(snap.Mode)
	if err != nil || active == nil {
		return
	}

	var open []models.Position
	if err := e.db.Where("is_open = ? AND is_sim = ?", true, snap.IsSim()).Find(&open).Error; err != nil {
		return
	}
	var unrealized float64
	for _, pos := range open {
		var asset models.Asset
		if err := e.db.First(&asset, pos.AssetID).Error; err != nil {
			continue
		}
		var price float64
		err := resilience.Do(context.Background(), e.tickerBreaker, 1, func() error {
			var err error
			price, err = e.client.GetTickerPrice(asset.Symbol)
			return err
		})
		if err != nil {
			continue
		}
		unrealized += (price - pos.EntryAvg) * pos.Quantity
	}

	if err := e.sessions.TakeBalanceSnapshot(active.ID, balance, unrealized); err != nil {
		e.logger.Warn("Failed to record balance snapshot", zap.Error(err))
	}
}

func (e *Engine) farmingDue(snap settings.Snapshot) bool {
	raw := e.store.Get(settings.KeyLastFarmTime, "")
	if raw == "" {
		return true
	}
	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	interval := time.Duration(snap.FarmingIntervalHrs * float64(time.Hour))
	return time.Since(time.Unix(last, 0)) >= interval
}

func (e *Engine) heartbeat() {
	if err := e.store.Set(settings.KeyLastHeartbeat, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		e.logger.Warn("Failed to write heartbeat", zap.Error(err))
	}
}

func (e *Engine) setStatus(detail string) {
	e.store.Set(settings.KeyStatusDetail, detail)
}

// watchdog force-exits the process when the heartbeat goes stale: a hung
// exchange call or deadlocked cycle is unrecoverable in-process and the
// supervisor restarts us into a clean state.
func (e *Engine) watchdog(ctx context.Context) {
	timeout := time.Duration(e.cfg.Trading.WatchdogTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw := e.store.Get(settings.KeyLastHeartbeat, "")
		if raw == "" {
			continue
		}
		last, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if stale := time.Since(time.Unix(last, 0)); stale > timeout {
			e.logger.Error("Watchdog: heartbeat stale, forcing restart",
				zap.Duration("stale", stale),
				zap.Duration("timeout", timeout))
			os.Exit(1)
		}
	}
}
