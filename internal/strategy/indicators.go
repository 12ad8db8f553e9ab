package strategy

import (
	"math"

	"weex-trading-bot/internal/exchange"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average
func CalculateSMA(candles []exchange.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		sum += candles[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average
func CalculateEMA(candles []exchange.Candle, period int) float64 {
	series := CalculateEMASeries(candles, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// CalculateEMASeries returns the EMA value at each candle from the first
// full period onward. Empty when there is not enough data.
func CalculateEMASeries(candles []exchange.Candle, period int) []float64 {
	if len(candles) < period || period <= 0 {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	ema := CalculateSMA(candles[:period], period)

	series := make([]float64, 0, len(candles)-period+1)
	series = append(series, ema)

	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
		series = append(series, ema)
	}

	return series
}

// EMASlope returns the average change of an EMA over the last n steps.
func EMASlope(candles []exchange.Candle, period, steps int) float64 {
	series := CalculateEMASeries(candles, period)
	if len(series) < steps+1 || steps <= 0 {
		return 0
	}
	last := series[len(series)-1]
	prev := series[len(series)-1-steps]
	return (last - prev) / float64(steps)
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index
func CalculateRSI(candles []exchange.Candle, period int) float64 {
	series := CalculateRSISeries(candles, period)
	if len(series) == 0 {
		return 50.0 // Neutral RSI
	}
	return series[len(series)-1]
}

// CalculateRSISeries returns RSI at each candle from period+1 onward using
// Wilder smoothing.
func CalculateRSISeries(candles []exchange.Candle, period int) []float64 {
	if len(candles) < period+1 || period <= 0 {
		return nil
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	series := make([]float64, 0, len(candles)-period)
	series = append(series, rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series = append(series, rsiFromAverages(avgGain, avgLoss))
	}

	return series
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates MACD, Signal line, and Histogram
func CalculateMACD(candles []exchange.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{0, 0, 0}
	}

	fastSeries := CalculateEMASeries(candles, fastPeriod)
	slowSeries := CalculateEMASeries(candles, slowPeriod)

	// Align the fast series to the slow series start
	offset := len(fastSeries) - len(slowSeries)
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signal := emaOfValues(macdSeries, signalPeriod)
	macdLine := macdSeries[len(macdSeries)-1]

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signal,
		Histogram: macdLine - signal,
	}
}

func emaOfValues(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		if len(values) > 0 {
			return values[len(values)-1]
		}
		return 0
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBandsResult holds Bollinger Bands values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns the band width normalized by the middle band.
func (b *BollingerBandsResult) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// CalculateBollingerBands calculates Bollinger Bands
func CalculateBollingerBands(candles []exchange.Candle, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if len(candles) < period || period <= 0 {
		return &BollingerBandsResult{0, 0, 0}
	}

	middle := CalculateSMA(candles, period)

	variance := 0.0
	startIdx := len(candles) - period
	for i := startIdx; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// BandWidthPercentile ranks the current band width against the trailing
// lookback windows. Returns a value in [0,1]; 0 means tightest observed.
func BandWidthPercentile(candles []exchange.Candle, period, lookback int) float64 {
	if len(candles) < period+lookback || lookback <= 0 {
		return 1.0
	}

	current := CalculateBollingerBands(candles, period, 2.0).Width()

	below := 0
	for i := 1; i <= lookback; i++ {
		window := candles[:len(candles)-i]
		w := CalculateBollingerBands(window, period, 2.0).Width()
		if w < current {
			below++
		}
	}

	return float64(below) / float64(lookback)
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates Average True Range
func CalculateATR(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 0
	}

	trSum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(
			high-low,
			math.Max(
				math.Abs(high-prevClose),
				math.Abs(low-prevClose),
			),
		)

		trSum += tr
	}

	return trSum / float64(period)
}

// ============================================================================
// ADX (Average Directional Index)
// ============================================================================

// CalculateADX calculates Average Directional Index via +DI/-DI smoothing.
func CalculateADX(candles []exchange.Candle, period int) float64 {
	series := CalculateADXSeries(candles, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// CalculateADXSeries returns the DX values smoothed into ADX step by step.
func CalculateADXSeries(candles []exchange.Candle, period int) []float64 {
	if len(candles) < 2*period+1 || period <= 0 {
		return nil
	}

	var trs, plusDMs, minusDMs []float64
	for i := 1; i < len(candles); i++ {
		high, low := candles[i].High, candles[i].Low
		prevHigh, prevLow, prevClose := candles[i-1].High, candles[i-1].Low, candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)

		upMove := high - prevHigh
		downMove := prevLow - low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	smTR := sum(trs[:period])
	smPlus := sum(plusDMs[:period])
	smMinus := sum(minusDMs[:period])

	var dxs []float64
	for i := period; i < len(trs); i++ {
		smTR = smTR - smTR/float64(period) + trs[i]
		smPlus = smPlus - smPlus/float64(period) + plusDMs[i]
		smMinus = smMinus - smMinus/float64(period) + minusDMs[i]

		if smTR == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		if plusDI+minusDI == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/(plusDI+minusDI))
	}

	if len(dxs) < period {
		return nil
	}

	adx := sum(dxs[:period]) / float64(period)
	series := []float64{adx}
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
		series = append(series, adx)
	}
	return series
}

func sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

// ============================================================================
// VOLUME ANALYSIS
// ============================================================================

// CalculateAverageVolume calculates average volume over a period
func CalculateAverageVolume(candles []exchange.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	sum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		sum += candles[i].Volume
	}

	return sum / float64(period)
}

// IsVolumeSpike checks if current volume is significantly higher than average
func IsVolumeSpike(candles []exchange.Candle, period int, multiplier float64) bool {
	if len(candles) < period+1 {
		return false
	}

	avgVolume := CalculateAverageVolume(candles[:len(candles)-1], period)
	currentVolume := candles[len(candles)-1].Volume

	return currentVolume >= avgVolume*multiplier
}

// VolumeZScore measures how many standard deviations the latest volume sits
// above the trailing mean.
func VolumeZScore(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 1 {
		return 0
	}

	window := candles[len(candles)-1-period : len(candles)-1]
	mean := 0.0
	for _, c := range window {
		mean += c.Volume
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range window {
		diff := c.Volume - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))
	if stdDev == 0 {
		return 0
	}

	return (candles[len(candles)-1].Volume - mean) / stdDev
}

// ============================================================================
// VOLATILITY AND MOMENTUM
// ============================================================================

// RealizedVolatility is the standard deviation of log returns over a window.
func RealizedVolatility(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 1 {
		return 0
	}

	returns := make([]float64, 0, period)
	for i := len(candles) - period; i < len(candles); i++ {
		if candles[i-1].Close <= 0 || candles[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(candles[i].Close/candles[i-1].Close))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := sum(returns) / float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// CalculateMomentum calculates price momentum as percent change over period.
func CalculateMomentum(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	currentPrice := candles[len(candles)-1].Close
	pastPrice := candles[len(candles)-period-1].Close
	if pastPrice == 0 {
		return 0
	}

	return ((currentPrice - pastPrice) / pastPrice) * 100
}

// CalculateVWAP computes the volume weighted average price over a window.
func CalculateVWAP(candles []exchange.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	pvSum, vSum := 0.0, 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		typical := (candles[i].High + candles[i].Low + candles[i].Close) / 3
		pvSum += typical * candles[i].Volume
		vSum += candles[i].Volume
	}
	if vSum == 0 {
		return 0
	}
	return pvSum / vSum
}
