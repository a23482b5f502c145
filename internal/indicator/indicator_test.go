package indicator

import (
	"math"
	"testing"

	"zenith-bot-go/internal/binance"

	"github.com/stretchr/testify/assert"
)

// syntheticKlines builds n candles whose close follows a sine wave around a
// base price, so every indicator sees realistic variation.
func syntheticKlines(n int, base float64) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		c := base + 10*math.Sin(float64(i)/5)
		klines[i] = binance.Kline{
			Open:  c - 1,
			High:  c + 2,
			Low:   c - 2,
			Close: c,
		}
	}
	return klines
}

func TestCompute_RejectsShortSeries(t *testing.T) {
	_, err := Compute(syntheticKlines(minCandles-1, 100))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient candles")
}

func TestCompute_SnapshotAtLatestCandle(t *testing.T) {
	// Arrange
	klines := syntheticKlines(100, 100)

	// Act
	snap, err := Compute(klines)

	// Assert
	assert.NoError(t, err)
	assert.InDelta(t, klines[99].Close, snap.Close, 1e-9)
	assert.GreaterOrEqual(t, snap.RSI, 0.0)
	assert.LessOrEqual(t, snap.RSI, 100.0)
	assert.Greater(t, snap.EMA20, 0.0)
	assert.Greater(t, snap.EMA50, 0.0)
	assert.Greater(t, snap.ATR, 0.0)
}

func TestCompute_ValuesAreFinite(t *testing.T) {
	snap, err := Compute(syntheticKlines(minCandles, 50000))

	assert.NoError(t, err)
	for _, v := range []float64{snap.Close, snap.RSI, snap.EMA20, snap.EMA50, snap.MACD, snap.MACDSignal, snap.ATR} {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}
