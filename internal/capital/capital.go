package capital

import (
	"errors"
	"fmt"

	"zenith-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Transfer directions for ManualTransfer.
const (
	ToReserve = "to_reserve"
	ToTrading = "to_trading"
)

// Manager separates each mode's funds into trading capital (usable by the
// bot) and a protected profit reserve.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager creates a capital manager.
func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger.Named("capital")}
}

// Allocation returns the allocation row for a mode, or nil when none exists.
func (m *Manager) Allocation(mode string) (*models.CapitalAllocation, error) {
	var alloc models.CapitalAllocation
	err := m.db.Where("mode = ?", mode).First(&alloc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load capital allocation for %s: %w", mode, err)
	}
	return &alloc, nil
}

// AvailableTradingBalance caps the wallet balance at the mode's trading
// capital: the bot never sees the profit reserve. When no allocation exists
// the actual balance is returned unchanged.
func (m *Manager) AvailableTradingBalance(mode string, actualBalance float64) float64 {
	alloc, err := m.Allocation(mode)
	if err != nil {
		m.logger.Warn("Failed to read capital allocation, using wallet balance",
			zap.String("mode", mode), zap.Error(err))
		return actualBalance
	}
	if alloc == nil {
		return actualBalance
	}

	if alloc.TradingCapital < actualBalance {
		return alloc.TradingCapital
	}
	return actualBalance
}

// AutoTransferProfit moves the configured percentage of a realized profit to
// the reserve when auto-transfer is enabled and the profit meets the
// threshold. The transfer is skipped entirely when it would push trading
// capital negative. Returns the amount moved.
func (m *Manager) AutoTransferProfit(mode string, profit float64) (float64, error) {
	if profit <= 0 {
		return 0, nil
	}

	alloc, err := m.Allocation(mode)
	if err != nil {
		return 0, err
	}
	if alloc == nil || !alloc.AutoTransferEnabled {
		return 0, nil
	}

	if profit < alloc.TransferThreshold {
		m.logger.Debug("Profit below auto-transfer threshold",
			zap.Float64("profit", profit),
			zap.Float64("threshold", alloc.TransferThreshold))
		return 0, nil
	}

	amount := profit * alloc.TransferPercentage / 100
	newTrading := alloc.TradingCapital - amount
	if newTrading < 0 {
		m.logger.Warn("Skipping auto-transfer, would make trading capital negative",
			zap.Float64("amount", amount),
			zap.Float64("trading_capital", alloc.TradingCapital))
		return 0, nil
	}

	err = m.db.Model(alloc).Updates(map[string]interface{}{
		"trading_capital": newTrading,
		"profit_reserve":  alloc.ProfitReserve + amount,
	}).Error
	if err != nil {
		return 0, fmt.Errorf("auto-transfer failed: %w", err)
	}

	m.logger.Info("Auto-transferred profit to reserve",
		zap.Float64("amount", amount),
		zap.Float64("new_trading_capital", newTrading),
		zap.Float64("new_profit_reserve", alloc.ProfitReserve+amount))
	return amount, nil
}

// ManualTransfer moves funds between trading capital and the profit reserve.
// Moving funds into trading capital counts toward total deposited.
func (m *Manager) ManualTransfer(mode string, amount float64, direction string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}

	alloc, err := m.Allocation(mode)
	if err != nil {
		return err
	}
	if alloc == nil {
		return fmt.Errorf("no capital allocation found for %s", mode)
	}

	updates := map[string]interface{}{}
	switch direction {
	case ToReserve:
		if alloc.TradingCapital < amount {
			return fmt.Errorf("insufficient trading capital: %.2f < %.2f", alloc.TradingCapital, amount)
		}
		updates["trading_capital"] = alloc.TradingCapital - amount
		updates["profit_reserve"] = alloc.ProfitReserve + amount
	case ToTrading:
		if alloc.ProfitReserve < amount {
			return fmt.Errorf("insufficient profit reserve: %.2f < %.2f", alloc.ProfitReserve, amount)
		}
		updates["trading_capital"] = alloc.TradingCapital + amount
		updates["profit_reserve"] = alloc.ProfitReserve - amount
		updates["total_deposited"] = alloc.TotalDeposited + amount
	default:
		return fmt.Errorf("invalid transfer direction %q", direction)
	}

	if err := m.db.Model(alloc).Updates(updates).Error; err != nil {
		return fmt.Errorf("manual transfer failed: %w", err)
	}

	m.logger.Info("Manual capital transfer",
		zap.String("mode", mode),
		zap.String("direction", direction),
		zap.Float64("amount", amount))
	return nil
}

// UpdateSettings changes the auto-transfer configuration for a mode. Nil
// arguments leave the current value untouched.
func (m *Manager) UpdateSettings(mode string, enabled *bool, threshold, percentage *float64) error {
	alloc, err := m.Allocation(mode)
	if err != nil {
		return err
	}
	if alloc == nil {
		return fmt.Errorf("no capital allocation found for %s", mode)
	}

	updates := map[string]interface{}{}
	if enabled != nil {
		updates["auto_transfer_enabled"] = *enabled
	}
	if threshold != nil {
		updates["transfer_threshold"] = *threshold
	}
	if percentage != nil {
		updates["transfer_percentage"] = *percentage
	}
	if len(updates) == 0 {
		return nil
	}

	return m.db.Model(alloc).Updates(updates).Error
}
