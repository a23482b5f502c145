package session

import (
	"errors"
	"fmt"
	"time"

	"zenith-bot-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager tracks trading sessions and their performance statistics.
// Exactly one session per mode is active at a time.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager creates a session manager.
func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger.Named("session")}
}

// Active returns the active session for the given mode, or nil when none exists.
func (m *Manager) Active(mode string) (*models.TradingSession, error) {
	var session models.TradingSession
	err := m.db.Where("mode = ? AND is_active = ?", mode, true).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active %s session: %w", mode, err)
	}
	return &session, nil
}

// Create starts a new session. An empty name is auto-generated from the
// session count for the mode ("Paper Run #3", "Live Session #1").
func (m *Manager) Create(mode string, startBalance float64, name, configSnapshot string) (*models.TradingSession, error) {
	if name == "" {
		var count int64
		if err := m.db.Model(&models.TradingSession{}).Where("mode = ?", mode).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s sessions: %w", mode, err)
		}
		prefix := "Paper Run"
		if mode == models.ModeLive {
			prefix = "Live Session"
		}
		name = fmt.Sprintf("%s #%d", prefix, count+1)
	}

	session := models.TradingSession{
		ExternalID:     uuid.NewString(),
		SessionName:    name,
		Mode:           mode,
		StartBalance:   startBalance,
		CurrentBalance: startBalance,
		IsActive:       true,
		ConfigSnapshot: configSnapshot,
	}
	if err := m.db.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("Created trading session",
		zap.String("name", name),
		zap.String("mode", mode),
		zap.Float64("start_balance", startBalance))
	return &session, nil
}

// End deactivates a session.
func (m *Manager) End(sessionID uint) error {
	now := time.Now()
	err := m.db.Model(&models.TradingSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{"is_active": false, "ended_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", sessionID, err)
	}
	return nil
}

// RecordTrade folds one closed trade's PnL into the session statistics.
func (m *Manager) RecordTrade(sessionID uint, pnl float64) error {
	var s models.TradingSession
	if err := m.db.First(&s, sessionID).Error; err != nil {
		return fmt.Errorf("session %d not found: %w", sessionID, err)
	}

	s.TotalTrades++
	if pnl > 0 {
		s.WinningTrades++
		s.GrossProfit += pnl
		if pnl > s.LargestWin {
			s.LargestWin = pnl
		}
	} else {
		s.LosingTrades++
		loss := -pnl
		s.GrossLoss += loss
		if loss > s.LargestLoss {
			s.LargestLoss = loss
		}
	}

	s.NetPnL += pnl
	s.CurrentBalance = s.StartBalance + s.NetPnL
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = s.GrossLoss / float64(s.LosingTrades)
	}
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = 999.9
	default:
		s.ProfitFactor = 0
	}

	if err := m.db.Save(&s).Error; err != nil {
		return fmt.Errorf("failed to update session stats: %w", err)
	}

	m.logger.Info("Session stats updated",
		zap.Uint("session_id", sessionID),
		zap.Int("total_trades", s.TotalTrades),
		zap.Float64("win_rate", s.WinRate),
		zap.Float64("net_pnl", s.NetPnL))
	return nil
}

// TakeBalanceSnapshot records an equity sample and updates the session's max
// drawdown when this sample sets a new one.
func (m *Manager) TakeBalanceSnapshot(sessionID uint, balance, unrealizedPnL float64) error {
	equity := balance + unrealizedPnL

	var last models.BalanceSnapshot
	peak := equity
	err := m.db.Where("session_id = ?", sessionID).
		Order("created_at desc").First(&last).Error
	if err == nil && last.PeakEquity > peak {
		peak = last.PeakEquity
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load last snapshot: %w", err)
	}

	drawdown := peak - equity
	drawdownPct := 0.0
	if peak > 0 {
		drawdownPct = drawdown / peak * 100
	}

	snap := models.BalanceSnapshot{
		SessionID:   sessionID,
		Balance:     balance,
		Equity:      equity,
		PeakEquity:  peak,
		Drawdown:    drawdown,
		DrawdownPct: drawdownPct,
	}
	if err := m.db.Create(&snap).Error; err != nil {
		return fmt.Errorf("failed to record balance snapshot: %w", err)
	}

	var s models.TradingSession
	if err := m.db.First(&s, sessionID).Error; err != nil {
		return nil // snapshot recorded; the session row may have been reset
	}
	if drawdownPct > s.MaxDrawdownPct {
		return m.db.Model(&s).Updates(map[string]interface{}{
			"max_drawdown":     drawdown,
			"max_drawdown_pct": drawdownPct,
		}).Error
	}
	return nil
}

// ResetSimulation ends the active paper session, starts a fresh one and
// resets the simulation wallet to the new balance.
func (m *Manager) ResetSimulation(newBalance float64, name, configSnapshot string) (*models.TradingSession, error) {
	current, err := m.Active(models.ModePaper)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if err := m.End(current.ID); err != nil {
			return nil, err
		}
	}

	session, err := m.Create(models.ModePaper, newBalance, name, configSnapshot)
	if err != nil {
		return nil, err
	}

	err = m.db.Model(&models.SimulationPortfolio{}).
		Where("1 = 1").
		Updates(map[string]interface{}{"balance": newBalance, "total_pnl": 0}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reset simulation wallet: %w", err)
	}

	m.logger.Info("Simulation reset", zap.Float64("new_balance", newBalance))
	return session, nil
}
