package binance

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zenith-bot-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:    client,
		apiKey:    "test_api_key",
		secretKey: "test_secret_key",
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		expectedTime := time.Now().UnixMilli()
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime()

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1001, "msg": "Bad request"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime()

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
		assert.Equal(t, int64(0), serverTime)
	})
}

func TestGetTickerPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "50123.45"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		price, err := rc.GetTickerPrice("BTCUSDT")

		// Assert
		assert.NoError(t, err)
		assert.InDelta(t, 50123.45, price, 1e-9)
	})

	t.Run("MalformedPrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "not-a-price"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTickerPrice("BTCUSDT")
		assert.Error(t, err)
	})
}

func TestGetKlines(t *testing.T) {
	// Arrange: Binance returns heterogeneous arrays (numbers and strings).
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000, "100.0", "105.0", "99.0", "104.0", "1234.5", 1700003599999, "0", 0, "0", "0", "0"],
			[1700003600000, "104.0", "110.0", "103.0", "108.0", "2345.6", 1700007199999, "0", 0, "0", "0", "0"]
		]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	// Act
	klines, err := rc.GetKlines("ETHUSDT", "1h", 2)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, klines, 2)
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime)
	assert.InDelta(t, 104.0, klines[0].Close, 1e-9)
	assert.InDelta(t, 110.0, klines[1].High, 1e-9)
	assert.InDelta(t, 2345.6, klines[1].Volume, 1e-9)
}

func TestGet24hTickers(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/24hr", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol": "BTCUSDT", "lastPrice": "50000", "quoteVolume": "900000000", "priceChangePercent": "2.5"},
			{"symbol": "ETHUSDT", "lastPrice": "3000", "quoteVolume": "400000000", "priceChangePercent": "-1.2"}
		]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	tickers, err := rc.Get24hTickers()

	assert.NoError(t, err)
	assert.Len(t, tickers, 2)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, "900000000", tickers[0].QuoteVolume)
}

func TestGetBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balances": [
			{"asset": "BTC", "free": "0.5", "locked": "0"},
			{"asset": "USDT", "free": "1234.56", "locked": "10"}
		]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	balance, err := rc.GetBalance("USDT")

	assert.NoError(t, err)
	assert.InDelta(t, 1234.56, balance, 1e-9)
}

func TestCreateOrder(t *testing.T) {
	t.Run("QuoteNotionalBuy", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/order", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "BTCUSDT", r.PostForm.Get("symbol"))
			assert.Equal(t, "BUY", r.PostForm.Get("side"))
			assert.Equal(t, "MARKET", r.PostForm.Get("type"))
			assert.NotEmpty(t, r.PostForm.Get("quoteOrderQty"))
			assert.Empty(t, r.PostForm.Get("quantity"))
			assert.Equal(t, "my-order-id", r.PostForm.Get("newClientOrderId"))
			assert.NotEmpty(t, r.PostForm.Get("signature"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "orderId": 42, "status": "FILLED",
				"executedQty": "0.01", "cummulativeQuoteQty": "500.0"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		resp, err := rc.CreateOrder(OrderRequest{
			Symbol:        "BTCUSDT",
			Side:          OrderSideBuy,
			QuoteOrderQty: 500,
			ClientOrderID: "my-order-id",
		})

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, int64(42), resp.OrderID)
		assert.InDelta(t, 50000.0, resp.FillPrice(), 1e-6)
		assert.InDelta(t, 0.01, resp.FillQuantity(), 1e-9)
	})

	t.Run("QuantitySell", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "SELL", r.PostForm.Get("side"))
			assert.NotEmpty(t, r.PostForm.Get("quantity"))
			assert.Empty(t, r.PostForm.Get("quoteOrderQty"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol": "ETHUSDT", "orderId": 43, "status": "FILLED",
				"executedQty": "1.5", "cummulativeQuoteQty": "4500.0"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		resp, err := rc.CreateOrder(OrderRequest{
			Symbol:   "ETHUSDT",
			Side:     OrderSideSell,
			Quantity: 1.5,
		})

		assert.NoError(t, err)
		assert.InDelta(t, 3000.0, resp.FillPrice(), 1e-6)
	})
}

func TestFillPrice_ZeroWithoutExecution(t *testing.T) {
	resp := &CreateOrderResponse{ExecutedQuantity: "0", CummulativeQuoteQty: "0"}

	assert.Zero(t, resp.FillPrice())
	assert.Zero(t, resp.FillQuantity())
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, RateLimit: 20, RateLimitBurst: 5}
		logger := zap.NewNop()
		rc := NewRestClient(cfg, logger)
		assert.NotNil(t, rc)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{Testnet: false, RateLimit: 20, RateLimitBurst: 5}
		logger := zap.NewNop()
		rc := NewRestClient(cfg, logger)
		assert.NotNil(t, rc)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})
}
