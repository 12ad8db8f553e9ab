// Package signal generates intraday trading signals from volatility
// compression, momentum continuation, band breakouts and liquidation
// snapbacks, and scores them for cross-symbol opportunity selection.
package signal

import (
	"math"

	"weex-trading-bot/internal/analysis"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/regime"
	"weex-trading-bot/internal/strategy"
)

// Signal directions.
const (
	SideLong    = "LONG"
	SideShort   = "SHORT"
	SideNeutral = "NEUTRAL"
)

// Provenance notes attached to a signal.
const (
	ProvenanceSynth        = "Synth_Only"
	ProvenanceRegimeFilter = "Regime_Filtered"
)

const stopMultiplier = 1.5

// Result is a generated trading signal with its strength and levels.
type Result struct {
	Symbol            string             `json:"symbol"`
	Side              string             `json:"side"` // LONG, SHORT, NEUTRAL
	Kind              string             `json:"kind"` // breakout, trend_following, liquidation_snapback, none
	Strength          float64            `json:"strength"` // 0-100
	EntryPrice        float64            `json:"entry_price"`
	StopLoss          float64            `json:"stop_loss"`
	TakeProfit        float64            `json:"take_profit"`
	RiskReward        float64            `json:"risk_reward"`
	ATR               float64            `json:"atr"`
	Regime            regime.Detection   `json:"regime"`
	ConfidenceFactors map[string]float64 `json:"confidence_factors"`
	Provenance        string             `json:"provenance"`
}

// Engine generates signals per symbol.
type Engine struct {
	logger *logging.Logger
}

// NewEngine creates a signal engine.
func NewEngine() *Engine {
	return &Engine{logger: logging.WithComponent("signal_engine")}
}

// Generate produces a signal for a symbol from its candle series. The
// regime detector gates which signal kinds may fire; a disallowed kind has
// its strength zeroed and the filtering recorded in provenance.
func (e *Engine) Generate(symbol string, candles []exchange.Candle) Result {
	result := Result{
		Symbol:     symbol,
		Side:       SideNeutral,
		Kind:       "none",
		Provenance: ProvenanceSynth,
	}

	if len(candles) < 50 {
		return result
	}

	last := candles[len(candles)-1]
	atr := strategy.CalculateATR(candles, 14)
	det := regime.Detect(candles)
	result.Regime = det
	result.EntryPrice = last.Close
	result.ATR = atr

	compressed, compressionScore := detectCompression(candles)
	momentumDir, momentumScore := detectMomentum(candles)
	breakoutDir, breakoutScore := detectBreakout(candles)
	snapbackDir, snapbackScore := detectSnapback(candles)

	volZ := strategy.VolumeZScore(candles, 20)
	adx := det.ADX
	swingBias := analysis.AnalyzeSwings(candles, 5).Bias()

	factors := map[string]float64{
		"volatility_compression": compressionScore,
		"momentum":               momentumScore,
		"breakout":               breakoutScore,
		"liquidation_snapback":   snapbackScore,
		"volume_confirmation":    clampScore(volZ * 20),
		"trend_strength":         clampScore(adx * 2),
		"swing_structure":        clampScore(50 + swingBias*50),
	}
	result.ConfidenceFactors = factors

	e.logger.Debug("Signal detection scores",
		"symbol", symbol,
		"breakout", breakoutScore, "momentum", momentumScore,
		"snapback", snapbackScore, "compression", compressionScore)

	// Priority: breakout, then momentum continuation, then snapback.
	switch {
	case breakoutDir != "" && breakoutScore > 50:
		result.Side = breakoutDir
		result.Kind = regime.KindBreakout
		compressionBonus := 0.0
		if compressed {
			compressionBonus = compressionScore * 0.2
		}
		result.Strength = breakoutScore*0.5 + momentumScore*0.3 + compressionBonus

	case momentumDir != SideNeutral && momentumScore > 50:
		result.Side = SideLong
		if momentumDir == "BEARISH" {
			result.Side = SideShort
		}
		result.Kind = regime.KindTrendFollow
		result.Strength = momentumScore*0.5 +
			factors["trend_strength"]*0.3 +
			factors["volume_confirmation"]*0.2

	case snapbackDir != "" && snapbackScore > 50:
		result.Side = snapbackDir
		result.Kind = regime.KindSnapback
		result.Strength = snapbackScore
	}

	// Swing structure agreement nudges strength, disagreement dampens it.
	if result.Side == SideLong {
		result.Strength += swingBias * 5
	} else if result.Side == SideShort {
		result.Strength -= swingBias * 5
	}

	result.Strength = clampScore(result.Strength)

	if result.Side != SideNeutral {
		result.StopLoss, result.TakeProfit = StopAndTarget(result.EntryPrice, result.Side, atr, 2.0)
		result.RiskReward = 2.0

		if !det.Allowed(result.Kind) {
			result.Strength = 0
			result.Provenance = ProvenanceRegimeFilter
			e.logger.Debug("Signal suppressed by regime filter",
				"symbol", symbol, "kind", result.Kind, "regime", det.Regime)
		}
	}

	return result
}

// StopAndTarget derives stop and target from ATR at a fixed risk:reward.
func StopAndTarget(entry float64, side string, atr, riskReward float64) (stop, target float64) {
	if side == SideLong {
		stop = entry - stopMultiplier*atr
		target = entry + riskReward*stopMultiplier*atr
	} else {
		stop = entry + stopMultiplier*atr
		target = entry - riskReward*stopMultiplier*atr
	}
	return stop, target
}

// detectCompression checks whether the band width sits in the lowest 20% of
// the last 20 windows. Score rises as the squeeze tightens.
func detectCompression(candles []exchange.Candle) (bool, float64) {
	if len(candles) < 40 {
		return false, 0
	}
	pct := strategy.BandWidthPercentile(candles, 20, 20)
	return pct < 0.20, (1 - pct) * 100
}

// detectMomentum reports trend direction and a 0-100 momentum score from
// EMA alignment, MACD and ADX.
func detectMomentum(candles []exchange.Candle) (string, float64) {
	if len(candles) < 50 {
		return SideNeutral, 0
	}

	ema9 := strategy.CalculateEMA(candles, 9)
	ema21 := strategy.CalculateEMA(candles, 21)
	ema50 := strategy.CalculateEMA(candles, 50)
	macd := strategy.CalculateMACD(candles, 12, 26, 9)
	adx := strategy.CalculateADX(candles, 14)

	emaBullish := ema9 > ema21 && ema21 > ema50
	emaBearish := ema9 < ema21 && ema21 < ema50
	macdBullish := macd.MACD > macd.Signal && macd.Histogram > 0
	macdBearish := macd.MACD < macd.Signal && macd.Histogram < 0

	slope := strategy.EMASlope(candles, 21, 5)
	slopeStrength := 0.0
	if ema21 != 0 {
		slopeStrength = math.Abs(slope/ema21) * 100 * 5 // percent change over 5 bars
	}

	adxScore := 0.0
	if adx > 0 {
		adxScore = math.Min(adx/25, 1.0) * 100
	}

	score := 0.0
	direction := SideNeutral

	if emaBullish || macdBullish {
		direction = "BULLISH"
		score = 40
		if emaBullish {
			score += 20
		}
		if macdBullish {
			score += 20
		}
		score += slopeStrength*1.5 + adxScore*0.3
	} else if emaBearish || macdBearish {
		direction = "BEARISH"
		score = 40
		if emaBearish {
			score += 20
		}
		if macdBearish {
			score += 20
		}
		score += slopeStrength*1.5 + adxScore*0.3
	}

	return direction, clampScore(score)
}

// detectBreakout fires when the close crosses outside a Bollinger band it
// was inside on the previous bar.
func detectBreakout(candles []exchange.Candle) (string, float64) {
	if len(candles) < 25 {
		return "", 0
	}

	curr := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	currBands := strategy.CalculateBollingerBands(candles, 20, 2.0)
	prevBands := strategy.CalculateBollingerBands(candles[:len(candles)-1], 20, 2.0)

	breakoutUp := prev.Close <= prevBands.Upper && curr.Close > currBands.Upper
	breakoutDown := prev.Close >= prevBands.Lower && curr.Close < currBands.Lower
	if !breakoutUp && !breakoutDown {
		return "", 0
	}

	volZ := strategy.VolumeZScore(candles, 20)
	volumeBonus := 0.0
	if volZ > 0 {
		volumeBonus = math.Min(volZ*10, 30)
	}

	adxSeries := strategy.CalculateADXSeries(candles, 14)
	adxBonus := 0.0
	if n := len(adxSeries); n >= 3 {
		recentMean := (adxSeries[n-1] + adxSeries[n-2] + adxSeries[n-3]) / 3
		if adxSeries[n-1] > recentMean {
			adxBonus = 20
		}
	}

	direction := SideLong
	if breakoutDown {
		direction = SideShort
	}
	return direction, clampScore(50 + volumeBonus + adxBonus)
}

// detectSnapback looks for a sharp move with an immediate V-shape reversal
// confirmed by an RSI swing through the 30/70 bands.
func detectSnapback(candles []exchange.Candle) (string, float64) {
	if len(candles) < 30 {
		return "", 0
	}

	returns := logReturns(candles, 5)
	if len(returns) < 5 {
		return "", 0
	}

	sharpDrop := false
	for _, r := range returns[:3] {
		if r < -0.02 {
			sharpDrop = true
			break
		}
	}
	quickRecovery := returns[len(returns)-1] > 0.01

	rsiSeries := strategy.CalculateRSISeries(candles, 14)
	if len(rsiSeries) < 3 {
		return "", 0
	}
	lastRSI := rsiSeries[len(rsiSeries)-1]
	recentMin, recentMax := lastRSI, lastRSI
	for _, r := range rsiSeries[len(rsiSeries)-3:] {
		if r < recentMin {
			recentMin = r
		}
		if r > recentMax {
			recentMax = r
		}
	}

	oversoldReversal := lastRSI > 30 && recentMin < 30
	overboughtReversal := lastRSI < 70 && recentMax > 70

	volZ := strategy.VolumeZScore(candles, 20)
	volumeSpike := volZ > 2.0

	spikeBonus := 0.0
	if volumeSpike {
		spikeBonus = 20
	}

	if sharpDrop && quickRecovery && oversoldReversal {
		return SideLong, clampScore(50 + spikeBonus + (lastRSI-30)*0.5)
	}
	if overboughtReversal && volumeSpike {
		return SideShort, clampScore(50 + spikeBonus + (70-lastRSI)*0.5)
	}
	return "", 0
}

func logReturns(candles []exchange.Candle, n int) []float64 {
	if len(candles) < n+1 {
		return nil
	}
	out := make([]float64, 0, n)
	for i := len(candles) - n; i < len(candles); i++ {
		if candles[i-1].Close <= 0 || candles[i].Close <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(candles[i].Close/candles[i-1].Close))
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
