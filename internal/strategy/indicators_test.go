package strategy

import (
	"math"
	"testing"

	"weex-trading-bot/internal/exchange"
)

// candlesFromCloses builds a series where each bar ranges one unit around
// its close.
func candlesFromCloses(closes ...float64) []exchange.Candle {
	out := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		out[i] = exchange.Candle{
			OpenTime: int64(i),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestCalculateSMA(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)

	if got := CalculateSMA(candles, 5); got != 3 {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := CalculateSMA(candles, 2); got != 4.5 {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := CalculateSMA(candles, 10); got != 0 {
		t.Errorf("SMA with insufficient data = %v, want 0", got)
	}
	if got := CalculateSMA(candles, 0); got != 0 {
		t.Errorf("SMA with zero period = %v, want 0", got)
	}
}

func TestCalculateEMASeries(t *testing.T) {
	candles := candlesFromCloses(10, 10, 10, 10, 10)

	series := CalculateEMASeries(candles, 3)
	if len(series) != 3 {
		t.Fatalf("series length = %d, want 3", len(series))
	}
	for i, v := range series {
		if v != 10 {
			t.Errorf("series[%d] = %v, want 10 for a flat series", i, v)
		}
	}

	if got := CalculateEMASeries(candles, 6); got != nil {
		t.Errorf("insufficient data should return nil, got %v", got)
	}
	if got := CalculateEMA(candles, 3); got != 10 {
		t.Errorf("EMA of flat series = %v, want 10", got)
	}
	if got := CalculateEMA(candles[:1], 3); got != 0 {
		t.Errorf("EMA with insufficient data = %v, want 0", got)
	}
}

func TestEMASlope(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(rising...)

	if got := EMASlope(candles, 5, 3); got <= 0 {
		t.Errorf("slope of rising series = %v, want > 0", got)
	}
	if got := EMASlope(candles, 5, 0); got != 0 {
		t.Errorf("slope with zero steps = %v, want 0", got)
	}
}

func TestCalculateRSI(t *testing.T) {
	// Too little data answers neutral.
	if got := CalculateRSI(candlesFromCloses(1, 2, 3), 14); got != 50.0 {
		t.Errorf("RSI with insufficient data = %v, want 50", got)
	}

	// Monotone gains saturate at 100.
	up := make([]float64, 16)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	if got := CalculateRSI(candlesFromCloses(up...), 14); got != 100.0 {
		t.Errorf("RSI of all-gain series = %v, want 100", got)
	}

	// Monotone losses sit at 0.
	down := make([]float64, 16)
	for i := range down {
		down[i] = 100 - float64(i)
	}
	if got := CalculateRSI(candlesFromCloses(down...), 14); got != 0.0 {
		t.Errorf("RSI of all-loss series = %v, want 0", got)
	}

	// Alternating moves land strictly between the extremes.
	mixed := make([]float64, 30)
	for i := range mixed {
		mixed[i] = 100 + float64(i%2)
	}
	rsi := CalculateRSI(candlesFromCloses(mixed...), 14)
	if rsi <= 0 || rsi >= 100 {
		t.Errorf("RSI of alternating series = %v, want strictly inside (0, 100)", rsi)
	}
}

func TestCalculateATR(t *testing.T) {
	flat := make([]float64, 15)
	for i := range flat {
		flat[i] = 100
	}
	// High-low range is 2 on every bar and the close never moves.
	if got := CalculateATR(candlesFromCloses(flat...), 14); got != 2 {
		t.Errorf("ATR of flat 2-range series = %v, want 2", got)
	}
	if got := CalculateATR(candlesFromCloses(100, 100), 14); got != 0 {
		t.Errorf("ATR with insufficient data = %v, want 0", got)
	}
}

func TestCalculateMACD(t *testing.T) {
	short := candlesFromCloses(1, 2, 3)
	r := CalculateMACD(short, 12, 26, 9)
	if r.MACD != 0 || r.Signal != 0 || r.Histogram != 0 {
		t.Errorf("MACD with insufficient data = %+v, want zeros", r)
	}

	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	r = CalculateMACD(candlesFromCloses(rising...), 12, 26, 9)
	if r.MACD <= 0 {
		t.Errorf("MACD of rising series = %v, want > 0", r.MACD)
	}
	if !almostEqual(r.Histogram, r.MACD-r.Signal, 1e-9) {
		t.Errorf("histogram %v != macd-signal %v", r.Histogram, r.MACD-r.Signal)
	}
}

func TestCalculateBollingerBands(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	b := CalculateBollingerBands(candlesFromCloses(flat...), 20, 2.0)
	if b.Middle != 100 || b.Upper != 100 || b.Lower != 100 {
		t.Errorf("bands of flat series = %+v, want all 100", b)
	}
	if b.Width() != 0 {
		t.Errorf("width of flat series = %v, want 0", b.Width())
	}

	b = CalculateBollingerBands(candlesFromCloses(1, 2), 20, 2.0)
	if b.Upper != 0 || b.Middle != 0 || b.Lower != 0 {
		t.Errorf("bands with insufficient data = %+v, want zeros", b)
	}
}

func TestBandWidthPercentile(t *testing.T) {
	if got := BandWidthPercentile(candlesFromCloses(1, 2, 3), 20, 20); got != 1.0 {
		t.Errorf("percentile with insufficient data = %v, want 1.0", got)
	}

	// A flat history with a volatile tail puts the current width at the top.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	for i := 55; i < 60; i++ {
		closes[i] = 100 + float64(i%2)*10
	}
	pct := BandWidthPercentile(candlesFromCloses(closes...), 20, 20)
	if pct < 0 || pct > 1 {
		t.Errorf("percentile = %v, want within [0, 1]", pct)
	}
}

func TestVolumeZScore(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 25)...)
	// Constant volume has zero deviation.
	if got := VolumeZScore(candles, 20); got != 0 {
		t.Errorf("z-score of constant volume = %v, want 0", got)
	}

	candles[len(candles)-1].Volume = 5000
	if got := VolumeZScore(candles, 20); got != 0 {
		// Trailing window excludes the last bar, so the window is still flat.
		t.Errorf("z-score with flat trailing window = %v, want 0", got)
	}

	// Vary the window so the deviation is non-zero, then spike the last bar.
	for i := range candles {
		candles[i].Volume = 1000 + float64(i%2)*100
	}
	candles[len(candles)-1].Volume = 10000
	if got := VolumeZScore(candles, 20); got <= 2 {
		t.Errorf("z-score of 10x spike = %v, want > 2", got)
	}
}

func TestIsVolumeSpike(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 25)...)
	if IsVolumeSpike(candles, 20, 2.0) {
		t.Error("constant volume should not register as a spike")
	}
	candles[len(candles)-1].Volume = 3000
	if !IsVolumeSpike(candles, 20, 2.0) {
		t.Error("3x volume should register as a spike")
	}
}

func TestCalculateMomentum(t *testing.T) {
	if got := CalculateMomentum(candlesFromCloses(100, 105, 110), 2); got != 10 {
		t.Errorf("momentum = %v, want 10", got)
	}
	if got := CalculateMomentum(candlesFromCloses(100), 5); got != 0 {
		t.Errorf("momentum with insufficient data = %v, want 0", got)
	}
}

func TestCalculateVWAP(t *testing.T) {
	candles := []exchange.Candle{
		{High: 102, Low: 98, Close: 100, Volume: 10},
		{High: 102, Low: 98, Close: 100, Volume: 10},
	}
	if got := CalculateVWAP(candles, 2); got != 100 {
		t.Errorf("VWAP = %v, want 100", got)
	}
	if got := CalculateVWAP(nil, 2); got != 0 {
		t.Errorf("VWAP of empty series = %v, want 0", got)
	}
}

func TestCalculateADXSeries(t *testing.T) {
	if got := CalculateADXSeries(candlesFromCloses(1, 2, 3), 14); got != nil {
		t.Errorf("ADX with insufficient data = %v, want nil", got)
	}

	rising := make([]float64, 80)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	adx := CalculateADX(candlesFromCloses(rising...), 14)
	if adx <= 20 {
		t.Errorf("ADX of persistent trend = %v, want > 20", adx)
	}
	if adx > 100 {
		t.Errorf("ADX = %v, want <= 100", adx)
	}
}

func TestRealizedVolatility(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	if got := RealizedVolatility(candlesFromCloses(flat...), 20); got != 0 {
		t.Errorf("realized vol of flat series = %v, want 0", got)
	}

	choppy := make([]float64, 25)
	for i := range choppy {
		choppy[i] = 100 + float64(i%2)*5
	}
	if got := RealizedVolatility(candlesFromCloses(choppy...), 20); got <= 0 {
		t.Errorf("realized vol of choppy series = %v, want > 0", got)
	}
}
