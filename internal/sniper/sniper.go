package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zenith-bot-go/internal/binance"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/resilience"
	"zenith-bot-go/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sniper converts approved trade signals into fills: a simulated ledger
// mutation in PAPER mode or a market order in LIVE mode, plus the persisted
// position and signal bookkeeping. At most one fill happens per signal.
type Sniper struct {
	db       *gorm.DB
	client   binance.RestClientInterface
	sessions *session.Manager
	capital  *capital.Manager
	logger   *zap.Logger

	// walletMu spans read-balance, check-sufficiency and mutate-balance on
	// the simulated wallet, so two concurrent fills cannot both read the same
	// stale balance and overdraw it.
	walletMu sync.Mutex

	tickerBreaker *resilience.Breaker
	orderBreaker  *resilience.Breaker
}

// New creates an order executor.
func New(db *gorm.DB, client binance.RestClientInterface, sessions *session.Manager, cap *capital.Manager, logger *zap.Logger) *Sniper {
	return &Sniper{
		db:            db,
		client:        client,
		sessions:      sessions,
		capital:       cap,
		logger:        logger.Named("sniper"),
		tickerBreaker: resilience.NewBreaker("ticker", 5, time.Minute),
		orderBreaker:  resilience.NewBreaker("order", 3, 2*time.Minute),
	}
}

// ExecuteOrder executes one approved signal. It never lets an error escape:
// failures mark the signal FAILED with the error text and return false.
// The ledger/position mutation always happens before the signal status
// update, so a crash mid-execution leaves the signal PENDING for manual
// reconciliation rather than falsely EXECUTED.
//
// The execution path follows the signal's own scope, not the current bot
// mode: a stop-out on a live position must hit the exchange even when the
// operator has since switched the bot to PAPER.
func (s *Sniper) ExecuteOrder(sig *models.TradeSignal, symbol string, orderSize float64) bool {
	mode := models.ModeLive
	if sig.IsSim {
		mode = models.ModePaper
	}
	l := s.logger.With(
		zap.Uint("signal_id", sig.ID),
		zap.String("symbol", symbol),
		zap.String("side", sig.SignalType),
		zap.String("mode", mode),
	)
	l.Info("Executing order")

	var err error
	if sig.IsSim {
		err = s.executeSimulated(sig, symbol, orderSize)
	} else {
		err = s.executeLive(sig, symbol, orderSize)
	}

	if err != nil {
		l.Error("Execution failed", zap.Error(err))
		s.finishSignal(sig, models.SignalStatusFailed, err.Error())
		return false
	}

	s.finishSignal(sig, models.SignalStatusExecuted, "")
	l.Info("Order executed and recorded")
	return true
}

// finishSignal moves a PENDING signal to its terminal state exactly once.
func (s *Sniper) finishSignal(sig *models.TradeSignal, status, reason string) {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["judge_reason"] = reason
	}
	res := s.db.Model(&models.TradeSignal{}).
		Where("id = ? AND status = ?", sig.ID, models.SignalStatusPending).
		Updates(updates)
	if res.Error != nil {
		s.logger.Error("Failed to update signal status",
			zap.Uint("signal_id", sig.ID), zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		s.logger.Warn("Signal already in a terminal state, not updating",
			zap.Uint("signal_id", sig.ID), zap.String("status", sig.Status))
		return
	}
	sig.Status = status
	if reason != "" {
		sig.JudgeReason = reason
	}
}

// fetchPrice wraps the ticker call with the shared circuit breaker. The REST
// client already retries transient failures internally.
func (s *Sniper) fetchPrice(symbol string) (float64, error) {
	var price float64
	err := resilience.Do(context.Background(), s.tickerBreaker, 1, func() error {
		var err error
		price, err = s.client.GetTickerPrice(symbol)
		return err
	})
	return price, err
}

func (s *Sniper) executeSimulated(sig *models.TradeSignal, symbol string, orderSize float64) error {
	price, err := s.fetchPrice(symbol)
	if err != nil {
		return fmt.Errorf("cannot price simulated fill: %w", err)
	}

	s.walletMu.Lock()
	defer s.walletMu.Unlock()

	var wallet models.SimulationPortfolio
	if err := s.db.First(&wallet).Error; err != nil {
		return fmt.Errorf("failed to load simulation wallet: %w", err)
	}

	switch sig.SignalType {
	case models.SignalTypeBuy:
		if wallet.Balance < orderSize {
			return fmt.Errorf("insufficient simulation balance: %.2f < %.2f USDT", wallet.Balance, orderSize)
		}

		// Re-verify the one-open-position invariant immediately before the
		// mutating write; the judge's check may be stale by now.
		var count int64
		s.db.Model(&models.Position{}).
			Where("asset_id = ? AND is_open = ? AND is_sim = ?", sig.AssetID, true, true).
			Count(&count)
		if count > 0 {
			return fmt.Errorf("position already open for asset %d, refusing duplicate BUY", sig.AssetID)
		}

		if err := s.db.Model(&wallet).Update("balance", wallet.Balance-orderSize).Error; err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}

		qty := orderSize / price
		if err := s.openPosition(sig, price, qty, true); err != nil {
			// Roll the debit back so the ledger matches reality.
			s.db.Model(&wallet).Update("balance", wallet.Balance)
			return err
		}
		s.logger.Info("Simulated BUY filled",
			zap.String("symbol", symbol),
			zap.Float64("price", price),
			zap.Float64("quantity", qty))
		return nil

	case models.SignalTypeSell:
		pos, err := s.latestOpenPosition(sig.AssetID, true)
		if err != nil {
			return err
		}

		proceeds := pos.Quantity * price
		pnl := proceeds - pos.EntryAvg*pos.Quantity

		err = s.db.Model(&wallet).Updates(map[string]interface{}{
			"balance":   wallet.Balance + proceeds,
			"total_pnl": wallet.TotalPnL + pnl,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		if err := s.closePosition(pos, price, pnl, sig.JudgeReason); err != nil {
			return err
		}
		s.settleClose(pos, pnl, models.ModePaper)
		s.logger.Info("Simulated SELL filled",
			zap.String("symbol", symbol),
			zap.Float64("price", price),
			zap.Float64("pnl", pnl))
		return nil

	default:
		return fmt.Errorf("invalid signal type %q", sig.SignalType)
	}
}

func (s *Sniper) executeLive(sig *models.TradeSignal, symbol string, orderSize float64) error {
	switch sig.SignalType {
	case models.SignalTypeBuy:
		var count int64
		s.db.Model(&models.Position{}).
			Where("asset_id = ? AND is_open = ? AND is_sim = ?", sig.AssetID, true, false).
			Count(&count)
		if count > 0 {
			return fmt.Errorf("position already open for asset %d, refusing duplicate BUY", sig.AssetID)
		}

		order, err := s.placeOrder(binance.OrderRequest{
			Symbol:        symbol,
			Side:          binance.OrderSideBuy,
			QuoteOrderQty: orderSize,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			return err
		}

		fillPrice, err := s.resolveFillPrice(order, symbol)
		if err != nil {
			return err
		}
		fillQty := order.FillQuantity()
		if fillQty <= 0 {
			fillQty = orderSize / fillPrice
		}

		return s.openPosition(sig, fillPrice, fillQty, false)

	case models.SignalTypeSell:
		// Quantity comes from the tracked position, never from the signal:
		// selling an untracked amount is worse than failing.
		pos, err := s.latestOpenPosition(sig.AssetID, false)
		if err != nil {
			return err
		}

		order, err := s.placeOrder(binance.OrderRequest{
			Symbol:        symbol,
			Side:          binance.OrderSideSell,
			Quantity:      pos.Quantity,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			return err
		}

		fillPrice, err := s.resolveFillPrice(order, symbol)
		if err != nil {
			return err
		}

		pnl := (fillPrice - pos.EntryAvg) * pos.Quantity
		if err := s.closePosition(pos, fillPrice, pnl, sig.JudgeReason); err != nil {
			return err
		}
		s.settleClose(pos, pnl, models.ModeLive)
		return nil

	default:
		return fmt.Errorf("invalid signal type %q", sig.SignalType)
	}
}

func (s *Sniper) placeOrder(req binance.OrderRequest) (*binance.CreateOrderResponse, error) {
	var order *binance.CreateOrderResponse
	err := resilience.Do(context.Background(), s.orderBreaker, 1, func() error {
		var err error
		order, err = s.client.CreateOrder(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("order placement failed: %w", err)
	}
	return order, nil
}

// resolveFillPrice takes the fill price from the order response, falls back
// to the live ticker, and fails hard when neither is available: bookkeeping
// without a known fill price is worse than a FAILED signal.
func (s *Sniper) resolveFillPrice(order *binance.CreateOrderResponse, symbol string) (float64, error) {
	if p := order.FillPrice(); p > 0 {
		return p, nil
	}
	p, err := s.fetchPrice(symbol)
	if err != nil {
		return 0, fmt.Errorf("order filled but no fill price available: %w", err)
	}
	return p, nil
}

// latestOpenPosition is the optimistic re-check before every SELL mutation:
// the judge saw an open position moments ago, but it may have been closed
// since (e.g. by the trailing-stop sweep).
func (s *Sniper) latestOpenPosition(assetID uint, isSim bool) (*models.Position, error) {
	var pos models.Position
	err := s.db.Where("asset_id = ? AND is_open = ? AND is_sim = ?", assetID, true, isSim).
		Order("created_at desc").First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no open position found for asset %d to sell", assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open position: %w", err)
	}
	return &pos, nil
}

func (s *Sniper) openPosition(sig *models.TradeSignal, fillPrice, quantity float64, isSim bool) error {
	mode := models.ModeLive
	if isSim {
		mode = models.ModePaper
	}
	sessionID := uint(0)
	if active, err := s.sessions.Active(mode); err == nil && active != nil {
		sessionID = active.ID
	}

	pos := models.Position{
		AssetID:          sig.AssetID,
		Side:             models.PositionSideLong,
		EntryAvg:         fillPrice,
		Quantity:         quantity,
		IsOpen:           true,
		IsSim:            isSim,
		EntryATR:         sig.EntryATR,
		HighestPriceSeen: fillPrice,
		SessionID:        sessionID,
	}
	if err := s.db.Create(&pos).Error; err != nil {
		return fmt.Errorf("failed to record position: %w", err)
	}
	return nil
}

func (s *Sniper) closePosition(pos *models.Position, exitPrice, pnl float64, reason string) error {
	now := time.Now()
	err := s.db.Model(pos).Updates(map[string]interface{}{
		"is_open":     false,
		"exit_price":  exitPrice,
		"exit_reason": reason,
		"pnl":         pnl,
		"closed_at":   now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to close position %d: %w", pos.ID, err)
	}
	return nil
}

// settleClose folds a closed trade into the owning session's statistics and
// applies the profit auto-transfer rule. Both are best effort: the fill is
// already recorded and must not be reported as failed.
func (s *Sniper) settleClose(pos *models.Position, pnl float64, mode string) {
	sessionID := pos.SessionID
	if sessionID == 0 {
		if active, err := s.sessions.Active(mode); err == nil && active != nil {
			sessionID = active.ID
		}
	}
	if sessionID != 0 {
		if err := s.sessions.RecordTrade(sessionID, pnl); err != nil {
			s.logger.Warn("Failed to update session stats", zap.Error(err))
		}
	}

	if pnl > 0 {
		if _, err := s.capital.AutoTransferProfit(mode, pnl); err != nil {
			s.logger.Warn("Profit auto-transfer failed", zap.Error(err))
		}
	}
}
