package indicator

import (
	"fmt"
	"math"

	"zenith-bot-go/internal/binance"

	talib "github.com/markcheno/go-talib"
)

const (
	rsiPeriod  = 14
	atrPeriod  = 14
	emaFast    = 20
	emaSlow    = 50
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// minCandles is the smallest candle count that yields a stable EMA-50 value.
const minCandles = emaSlow + 1

// Snapshot is the technical state of a symbol at the latest closed candle.
type Snapshot struct {
	Close      float64
	RSI        float64
	EMA20      float64
	EMA50      float64
	MACD       float64
	MACDSignal float64
	ATR        float64
}

// Compute derives the indicator snapshot from OHLCV candles.
// It returns an error instead of raising when the data is too short or
// produces non-finite values, so callers can skip the symbol for this cycle.
func Compute(klines []binance.Kline) (Snapshot, error) {
	if len(klines) < minCandles {
		return Snapshot{}, fmt.Errorf("insufficient candles: need %d, got %d", minCandles, len(klines))
	}

	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	closes := make([]float64, len(klines))
	for i, k := range klines {
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = k.Close
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	ema20 := talib.Ema(closes, emaFast)
	ema50 := talib.Ema(closes, emaSlow)
	macd, signal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	last := len(closes) - 1
	snap := Snapshot{
		Close:      closes[last],
		RSI:        rsi[last],
		EMA20:      ema20[last],
		EMA50:      ema50[last],
		MACD:       macd[last],
		MACDSignal: signal[last],
		ATR:        atr[last],
	}

	for name, v := range map[string]float64{
		"close": snap.Close, "rsi": snap.RSI, "ema_50": snap.EMA50,
		"macd": snap.MACD, "macd_signal": snap.MACDSignal, "atr": snap.ATR,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Snapshot{}, fmt.Errorf("indicator %s is not finite", name)
		}
	}

	return snap, nil
}
