package database

import (
	"errors"
	"fmt"

	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the schema and seeds the singleton rows the bot relies
// on: the simulation wallet and the per-mode capital allocations.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	err := db.AutoMigrate(
		&models.Asset{},
		&models.Position{},
		&models.TradeSignal{},
		&models.BotConfig{},
		&models.SimulationPortfolio{},
		&models.TradingSession{},
		&models.CapitalAllocation{},
		&models.BalanceSnapshot{},
		&models.ConfigChangeLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Seed the single simulation wallet row.
	var wallet models.SimulationPortfolio
	if err := db.First(&wallet).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = models.SimulationPortfolio{Balance: cfg.Trading.InitialSimBalance}
		if err := db.Create(&wallet).Error; err != nil {
			return fmt.Errorf("failed to seed simulation wallet: %w", err)
		}
	}

	// Seed capital allocations for both modes.
	for _, mode := range []string{models.ModePaper, models.ModeLive} {
		alloc := models.CapitalAllocation{Mode: mode}
		if err := db.Where(models.CapitalAllocation{Mode: mode}).
			Attrs(models.CapitalAllocation{
				TradingCapital:     cfg.Trading.InitialCapital,
				TransferThreshold:  100.0,
				TransferPercentage: 50.0,
			}).
			FirstOrCreate(&alloc).Error; err != nil {
			return fmt.Errorf("failed to seed capital allocation for %s: %w", mode, err)
		}
	}

	return nil
}
