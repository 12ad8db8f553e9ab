// Package analysis classifies raw candle series into the market structure
// snapshot the trading loops reason about.
package analysis

import (
	"fmt"
	"math"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/strategy"
)

// Trend labels for a structure snapshot.
const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	TrendNeutral = "NEUTRAL"
)

// Snapshot is the condensed view of current market structure.
type Snapshot struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	RSI         float64 `json:"rsi"`
	Trend       string  `json:"trend"`
	EMA20       float64 `json:"ema_20"`
	EMA50       float64 `json:"ema_50"`
	Volatility  float64 `json:"volatility"` // ATR(14)
	VolumeSpike bool    `json:"volume_spike"`
}

// minCandles is what EMA50 needs to produce a stable value.
const minCandles = 51

// AnalyzeMarketStructure computes the structure snapshot from candles.
// Trend is BULLISH only when close > ema20 > ema50, BEARISH only when
// close < ema20 < ema50, NEUTRAL otherwise.
func AnalyzeMarketStructure(symbol string, candles []exchange.Candle) (*Snapshot, error) {
	if len(candles) < minCandles {
		return nil, fmt.Errorf("insufficient candles for structure analysis: have %d, need %d", len(candles), minCandles)
	}

	last := candles[len(candles)-1]
	ema20 := strategy.CalculateEMA(candles, 20)
	ema50 := strategy.CalculateEMA(candles, 50)

	trend := TrendNeutral
	if last.Close > ema20 && ema20 > ema50 {
		trend = TrendBullish
	} else if last.Close < ema20 && ema20 < ema50 {
		trend = TrendBearish
	}

	avgVolume := averageVolume(candles)

	return &Snapshot{
		Symbol:      symbol,
		Price:       last.Close,
		RSI:         round2(strategy.CalculateRSI(candles, 14)),
		Trend:       trend,
		EMA20:       round2(ema20),
		EMA50:       round2(ema50),
		Volatility:  round2(strategy.CalculateATR(candles, 14)),
		VolumeSpike: last.Volume > avgVolume*1.5,
	}, nil
}

// averageVolume is the mean over the whole series, matching how the spike
// threshold is defined.
func averageVolume(candles []exchange.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
