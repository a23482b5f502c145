package engine

import (
	"context"
	"strconv"
	"testing"
	"time"

	"zenith-bot-go/internal/advisor"
	"zenith-bot-go/internal/binance"
	"zenith-bot-go/internal/capital"
	"zenith-bot-go/internal/config"
	"zenith-bot-go/internal/indicator"
	"zenith-bot-go/internal/models"
	"zenith-bot-go/internal/scout"
	"zenith-bot-go/internal/session"
	"zenith-bot-go/internal/settings"
	"zenith-bot-go/internal/sniper"
	"zenith-bot-go/internal/trailing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetServerTime() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetTickerPrice(symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRestClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func (m *MockRestClient) Get24hTickers() ([]binance.Ticker24h, error) {
	args := m.Called()
	return args.Get(0).([]binance.Ticker24h), args.Error(1)
}

func (m *MockRestClient) GetBalance(asset string) (float64, error) {
	args := m.Called(asset)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRestClient) CreateOrder(req binance.OrderRequest) (*binance.CreateOrderResponse, error) {
	args := m.Called(req)
	return args.Get(0).(*binance.CreateOrderResponse), args.Error(1)
}

// MockAdvisor is a mock implementation of the AdvisorInterface.
type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) Recommend(ctx context.Context, symbol string, snap indicator.Snapshot) advisor.Recommendation {
	args := m.Called(symbol)
	return args.Get(0).(advisor.Recommendation)
}

func (m *MockAdvisor) PerformanceReport(ctx context.Context, tradeHistory string, days int) (string, error) {
	args := m.Called(tradeHistory, days)
	return args.String(0), args.Error(1)
}

// setupTest wires a full engine against an in-memory DB and mocks.
func setupTest(t *testing.T) (*gorm.DB, *MockRestClient, *MockAdvisor, *Engine, *settings.Store) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
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
	assert.NoError(t, err)
	db.Create(&models.SimulationPortfolio{Balance: 1000})

	mockClient := new(MockRestClient)
	mockAdvisor := new(MockAdvisor)
	log := zap.NewNop()
	cfg := &config.Config{
		Trading: config.Trading{
			QuoteAsset:         "USDT",
			InitialCapital:     1000,
			WatchdogTimeoutSec: 300,
		},
	}

	store := settings.NewStore(db, log)
	sessions := session.NewManager(db, log)
	capitalMgr := capital.NewManager(db, log)
	sn := sniper.New(db, mockClient, sessions, capitalMgr, log)
	sw := trailing.NewSweeper(db, mockClient, sn, log)
	sc := scout.New(db, mockClient, store, log, "USDT")

	eng := New(db, mockClient, mockAdvisor, store, sc, sn, sw, sessions, capitalMgr, cfg, log)
	return db, mockClient, mockAdvisor, eng, store
}

// bearishTail makes the RSI comfortably low so the technical veto stays out
// of the way.
func bearishTail(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	price := 120.0
	for i := range klines {
		if i < n-20 {
			price += 0.1
		} else {
			price -= 0.5
		}
		klines[i] = binance.Kline{Open: price + 0.2, High: price + 1, Low: price - 1, Close: price}
	}
	return klines
}

// seedCycleState marks farming as fresh and plants a candidate list.
func seedCycleState(store *settings.Store, candidates string) {
	store.Set(settings.KeyLastFarmTime, strconv.FormatInt(time.Now().Unix(), 10))
	store.Set(settings.KeyActiveCandidates, candidates)
}

func TestCycle_StoppedDoesNotTrade(t *testing.T) {
	// Arrange
	db, _, _, eng, store := setupTest(t)
	store.Set(settings.KeyBotStatus, "STOPPED")

	// Act: no mock expectations are set, so any exchange call would fail.
	eng.cycle(context.Background(), store.Load())

	// Assert
	assert.Equal(t, "Paused by operator", store.Get(settings.KeyStatusDetail, ""))
	var count int64
	db.Model(&models.TradingSession{}).Count(&count)
	assert.Zero(t, count)
}

func TestCycle_WritesHeartbeatEvenWhenStopped(t *testing.T) {
	_, _, _, eng, store := setupTest(t)
	store.Set(settings.KeyBotStatus, "STOPPED")

	eng.cycle(context.Background(), store.Load())

	heartbeat, err := strconv.ParseInt(store.Get(settings.KeyLastHeartbeat, ""), 10, 64)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.Unix(heartbeat, 0), 5*time.Second)
}

func TestCycle_RefreshesHeartbeatBetweenSymbols(t *testing.T) {
	// Arrange: the first symbol's advisor call simulates a long stall by
	// resetting the heartbeat to an ancient value. The loop must write a
	// fresh one before moving to the next symbol, or the watchdog would kill
	// a process that is merely slow.
	_, mockClient, mockAdvisor, eng, store := setupTest(t)
	seedCycleState(store, "BTCUSDT,ETHUSDT")

	mockClient.On("GetKlines", "BTCUSDT", "1h", klineLimit).Return(bearishTail(100), nil)
	mockClient.On("GetKlines", "ETHUSDT", "1h", klineLimit).Return(bearishTail(100), nil)

	mockAdvisor.On("Recommend", "BTCUSDT").Run(func(args mock.Arguments) {
		store.Set(settings.KeyLastHeartbeat, "1")
	}).Return(advisor.Recommendation{Recommendation: advisor.ActionWait})

	var seenAtSecondSymbol string
	mockAdvisor.On("Recommend", "ETHUSDT").Run(func(args mock.Arguments) {
		seenAtSecondSymbol = store.Get(settings.KeyLastHeartbeat, "")
	}).Return(advisor.Recommendation{Recommendation: advisor.ActionWait})

	// Act
	eng.cycle(context.Background(), store.Load())

	// Assert
	assert.NotEqual(t, "1", seenAtSecondSymbol)
	heartbeat, err := strconv.ParseInt(seenAtSecondSymbol, 10, 64)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.Unix(heartbeat, 0), 5*time.Second)
}

func TestCycle_ApprovedBuyReachesTheWallet(t *testing.T) {
	// Arrange
	db, mockClient, mockAdvisor, eng, store := setupTest(t)
	seedCycleState(store, "BTCUSDT")

	mockClient.On("GetKlines", "BTCUSDT", "1h", klineLimit).Return(bearishTail(100), nil)
	mockClient.On("GetTickerPrice", "BTCUSDT").Return(115.0, nil)
	mockAdvisor.On("Recommend", "BTCUSDT").Return(advisor.Recommendation{
		Recommendation: advisor.ActionBuy, Confidence: 90, Reasoning: "oversold bounce",
	})

	// Act
	eng.cycle(context.Background(), store.Load())

	// Assert: session bootstrapped, signal executed, position open, wallet
	// debited by the default 5% sizing.
	var sess models.TradingSession
	assert.NoError(t, db.Where("mode = ? AND is_active = ?", models.ModePaper, true).First(&sess).Error)

	var sig models.TradeSignal
	assert.NoError(t, db.First(&sig).Error)
	assert.Equal(t, models.SignalStatusExecuted, sig.Status)
	assert.Contains(t, sig.JudgeReason, "AI Agreed")

	var pos models.Position
	assert.NoError(t, db.Where("is_open = ?", true).First(&pos).Error)
	assert.InDelta(t, 115.0, pos.EntryAvg, 1e-9)

	var wallet models.SimulationPortfolio
	db.First(&wallet)
	assert.InDelta(t, 950.0, wallet.Balance, 1e-9)
}

func TestCycle_RejectedSignalIsPersisted(t *testing.T) {
	// Arrange: confident advisor, but a position is already open.
	db, mockClient, mockAdvisor, eng, store := setupTest(t)
	seedCycleState(store, "BTCUSDT")

	asset := models.Asset{Symbol: "BTCUSDT"}
	db.Create(&asset)
	db.Create(&models.Position{AssetID: asset.ID, Side: models.PositionSideLong,
		EntryAvg: 100, Quantity: 1, IsOpen: true, IsSim: true, HighestPriceSeen: 100})

	mockClient.On("GetKlines", "BTCUSDT", "1h", klineLimit).Return(bearishTail(100), nil)
	mockClient.On("GetTickerPrice", "BTCUSDT").Return(100.0, nil)
	mockAdvisor.On("Recommend", "BTCUSDT").Return(advisor.Recommendation{
		Recommendation: advisor.ActionBuy, Confidence: 95,
	})

	// Act
	eng.cycle(context.Background(), store.Load())

	// Assert
	var sig models.TradeSignal
	assert.NoError(t, db.First(&sig).Error)
	assert.Equal(t, models.SignalStatusRejected, sig.Status)
	assert.Contains(t, sig.JudgeReason, "Duplicate")

	var count int64
	db.Model(&models.Position{}).Where("is_open = ?", true).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCycle_NonActionableAdviceLeavesNoSignal(t *testing.T) {
	// Arrange
	db, mockClient, mockAdvisor, eng, store := setupTest(t)
	seedCycleState(store, "BTCUSDT")

	mockClient.On("GetKlines", "BTCUSDT", "1h", klineLimit).Return(bearishTail(100), nil)
	mockClient.On("GetTickerPrice", "BTCUSDT").Return(100.0, nil)
	mockAdvisor.On("Recommend", "BTCUSDT").Return(advisor.Recommendation{
		Recommendation: advisor.ActionWait, Confidence: 40,
	})

	// Act
	eng.cycle(context.Background(), store.Load())

	// Assert: WAIT never reaches the signal table.
	var count int64
	db.Model(&models.TradeSignal{}).Count(&count)
	assert.Zero(t, count)
}

func TestWatchlist_IncludesOrphanedPositions(t *testing.T) {
	// Arrange: SOLUSDT dropped out of the candidate list but is still held.
	db, _, _, eng, store := setupTest(t)
	store.Set(settings.KeyActiveCandidates, "BTCUSDT,ETHUSDT")

	asset := models.Asset{Symbol: "SOLUSDT"}
	db.Create(&asset)
	db.Create(&models.Position{AssetID: asset.ID, Side: models.PositionSideLong,
		EntryAvg: 100, Quantity: 1, IsOpen: true, IsSim: true})

	// Act
	symbols := eng.watchlist(store.Load())

	// Assert
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, symbols)
}

func TestFarmingDue(t *testing.T) {
	_, _, _, eng, store := setupTest(t)
	snap := store.Load()

	// Never farmed: due immediately.
	assert.True(t, eng.farmingDue(snap))

	// Farmed just now: not due for another 12 hours.
	store.Set(settings.KeyLastFarmTime, strconv.FormatInt(time.Now().Unix(), 10))
	assert.False(t, eng.farmingDue(snap))

	// Farmed 13 hours ago: due again.
	store.Set(settings.KeyLastFarmTime, strconv.FormatInt(time.Now().Add(-13*time.Hour).Unix(), 10))
	assert.True(t, eng.farmingDue(snap))
}

func TestTradableBalance_PaperUsesSimWallet(t *testing.T) {
	_, _, _, eng, store := setupTest(t)

	balance, err := eng.tradableBalance(store.Load())

	assert.NoError(t, err)
	assert.InDelta(t, 1000.0, balance, 1e-9)
}

func TestTradableBalance_LiveCappedByAllocation(t *testing.T) {
	// Arrange
	db, mockClient, _, eng, store := setupTest(t)
	store.Set(settings.KeyTradingMode, models.ModeLive)
	db.Create(&models.CapitalAllocation{Mode: models.ModeLive, TradingCapital: 600})
	mockClient.On("GetBalance", "USDT").Return(1000.0, nil)

	// Act
	balance, err := eng.tradableBalance(store.Load())

	// Assert: the profit reserve stays invisible.
	assert.NoError(t, err)
	assert.InDelta(t, 600.0, balance, 1e-9)
}
