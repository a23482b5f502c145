package capital

import (
	"testing"

	"zenith-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, *Manager) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.CapitalAllocation{})
	assert.NoError(t, err)

	return db, NewManager(db, zap.NewNop())
}

func seedAllocation(db *gorm.DB, alloc models.CapitalAllocation) {
	db.Create(&alloc)
}

func TestAvailableTradingBalance_CapsAtTradingCapital(t *testing.T) {
	// Arrange: 600 allocated for trading, 400 reserved.
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModeLive, TradingCapital: 600, ProfitReserve: 400,
	})

	// Act & Assert: the reserve is invisible to the bot.
	assert.InDelta(t, 600.0, mgr.AvailableTradingBalance(models.ModeLive, 1000), 1e-9)
	// A wallet below the allocation is returned as-is.
	assert.InDelta(t, 500.0, mgr.AvailableTradingBalance(models.ModeLive, 500), 1e-9)
}

func TestAvailableTradingBalance_NoAllocationPassesThrough(t *testing.T) {
	_, mgr := setupTest(t)

	assert.InDelta(t, 1000.0, mgr.AvailableTradingBalance(models.ModeLive, 1000), 1e-9)
}

func TestAutoTransferProfit_MovesConfiguredShare(t *testing.T) {
	// Arrange
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModePaper, TradingCapital: 1000,
		AutoTransferEnabled: true, TransferThreshold: 100, TransferPercentage: 50,
	})

	// Act
	moved, err := mgr.AutoTransferProfit(models.ModePaper, 200)

	// Assert
	assert.NoError(t, err)
	assert.InDelta(t, 100.0, moved, 1e-9)

	var alloc models.CapitalAllocation
	db.Where("mode = ?", models.ModePaper).First(&alloc)
	assert.InDelta(t, 900.0, alloc.TradingCapital, 1e-9)
	assert.InDelta(t, 100.0, alloc.ProfitReserve, 1e-9)
}

func TestAutoTransferProfit_BelowThresholdDoesNothing(t *testing.T) {
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModePaper, TradingCapital: 1000,
		AutoTransferEnabled: true, TransferThreshold: 100, TransferPercentage: 50,
	})

	moved, err := mgr.AutoTransferProfit(models.ModePaper, 99)

	assert.NoError(t, err)
	assert.Zero(t, moved)
}

func TestAutoTransferProfit_DisabledDoesNothing(t *testing.T) {
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModePaper, TradingCapital: 1000,
		AutoTransferEnabled: false, TransferThreshold: 0, TransferPercentage: 50,
	})

	moved, err := mgr.AutoTransferProfit(models.ModePaper, 500)

	assert.NoError(t, err)
	assert.Zero(t, moved)
}

func TestAutoTransferProfit_SkipsWhenItWouldOverdraw(t *testing.T) {
	// Arrange: moving 50% of 500 exceeds the 100 of trading capital left.
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModePaper, TradingCapital: 100,
		AutoTransferEnabled: true, TransferThreshold: 10, TransferPercentage: 50,
	})

	// Act
	moved, err := mgr.AutoTransferProfit(models.ModePaper, 500)

	// Assert: skipped entirely, not partially applied.
	assert.NoError(t, err)
	assert.Zero(t, moved)

	var alloc models.CapitalAllocation
	db.Where("mode = ?", models.ModePaper).First(&alloc)
	assert.InDelta(t, 100.0, alloc.TradingCapital, 1e-9)
	assert.Zero(t, alloc.ProfitReserve)
}

func TestManualTransfer_BothDirections(t *testing.T) {
	// Arrange
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModeLive, TradingCapital: 500, ProfitReserve: 500, TotalDeposited: 1000,
	})

	// Act: 200 to the reserve, then 100 back.
	assert.NoError(t, mgr.ManualTransfer(models.ModeLive, 200, ToReserve))
	assert.NoError(t, mgr.ManualTransfer(models.ModeLive, 100, ToTrading))

	// Assert
	var alloc models.CapitalAllocation
	db.Where("mode = ?", models.ModeLive).First(&alloc)
	assert.InDelta(t, 400.0, alloc.TradingCapital, 1e-9)
	assert.InDelta(t, 600.0, alloc.ProfitReserve, 1e-9)
	assert.InDelta(t, 1100.0, alloc.TotalDeposited, 1e-9) // reserve -> trading counts as a deposit
}

func TestManualTransfer_RejectsOverdraw(t *testing.T) {
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModeLive, TradingCapital: 100, ProfitReserve: 0,
	})

	err := mgr.ManualTransfer(models.ModeLive, 200, ToReserve)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient trading capital")

	err = mgr.ManualTransfer(models.ModeLive, 50, ToTrading)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient profit reserve")
}

func TestUpdateSettings_PartialUpdate(t *testing.T) {
	// Arrange
	db, mgr := setupTest(t)
	seedAllocation(db, models.CapitalAllocation{
		Mode: models.ModePaper, TransferThreshold: 100, TransferPercentage: 50,
	})

	// Act: only flip the enabled flag.
	enabled := true
	assert.NoError(t, mgr.UpdateSettings(models.ModePaper, &enabled, nil, nil))

	// Assert: other fields untouched.
	var alloc models.CapitalAllocation
	db.Where("mode = ?", models.ModePaper).First(&alloc)
	assert.True(t, alloc.AutoTransferEnabled)
	assert.InDelta(t, 100.0, alloc.TransferThreshold, 1e-9)
	assert.InDelta(t, 50.0, alloc.TransferPercentage, 1e-9)
}
