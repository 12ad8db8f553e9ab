package regime

import (
	"math"
	"testing"

	"weex-trading-bot/internal/exchange"
)

func flatSeries(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		out[i] = exchange.Candle{
			OpenTime: int64(i) * 300000,
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	return out
}

// trendSeries has strictly rising highs and lows (one-sided directional
// movement) while close dispersion grows, so the current band width is the
// widest in the lookback.
func trendSeries(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		base := 100 + 0.05*float64(i)
		out[i] = exchange.Candle{
			OpenTime: int64(i) * 300000,
			Open:     base,
			High:     base + 15,
			Low:      base - 15,
			Close:    base + 0.1*float64(i)*math.Sin(float64(i)),
			Volume:   1000,
		}
	}
	return out
}

// chopSeries alternates direction every bar with growing amplitude: no
// directional movement dominates and realized volatility keeps rising.
func chopSeries(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		amp := 1 + 0.05*float64(i)
		close := 100 + amp
		if i%2 == 1 {
			close = 100 - amp
		}
		out[i] = exchange.Candle{
			OpenTime: int64(i) * 300000,
			Open:     100,
			High:     close + 1,
			Low:      close - 1,
			Close:    close,
			Volume:   1000,
		}
	}
	return out
}

func TestDetectCompressed(t *testing.T) {
	d := Detect(flatSeries(120))
	if d.Regime != Compressed {
		t.Fatalf("regime = %s, want COMPRESSED", d.Regime)
	}
	if d.WidthPct > 0.2 {
		t.Errorf("width percentile = %v, want at most 0.2", d.WidthPct)
	}
	if d.Confidence != 100 {
		t.Errorf("confidence = %v, want 100 for a fully flat squeeze", d.Confidence)
	}
}

func TestDetectTrending(t *testing.T) {
	d := Detect(trendSeries(120))
	if d.Regime != Trending {
		t.Fatalf("regime = %s (adx %.1f width %.2f), want TRENDING", d.Regime, d.ADX, d.WidthPct)
	}
	if d.ADX < 25 {
		t.Errorf("adx = %v, want at least 25", d.ADX)
	}
}

func TestDetectChaotic(t *testing.T) {
	d := Detect(chopSeries(120))
	if d.Regime != Chaotic {
		t.Fatalf("regime = %s (adx %.1f vol %.4f), want CHAOTIC", d.Regime, d.ADX, d.Volatility)
	}
	if d.ADX >= 20 {
		t.Errorf("adx = %v, want below 20 for pure chop", d.ADX)
	}
}

func TestDetectShortSeriesMeanReverting(t *testing.T) {
	d := Detect(flatSeries(30))
	if d.Regime != MeanReverting {
		t.Fatalf("regime = %s, want MEAN_REVERTING for a short series", d.Regime)
	}
	if d.Confidence != 80 {
		t.Errorf("confidence = %v, want 80 with adx 0", d.Confidence)
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		regime Regime
		kind   string
		want   bool
	}{
		{Trending, KindBreakout, true},
		{Trending, KindTrendFollow, true},
		{Trending, KindSnapback, false},
		{Compressed, KindBreakout, true},
		{Compressed, KindTrendFollow, false},
		{MeanReverting, KindSnapback, true},
		{MeanReverting, KindMeanReversion, true},
		{MeanReverting, KindBreakout, false},
		{Chaotic, KindBreakout, false},
		{Chaotic, KindTrendFollow, false},
		{Chaotic, KindSnapback, false},
	}
	for _, tc := range tests {
		d := Detection{Regime: tc.regime}
		if got := d.Allowed(tc.kind); got != tc.want {
			t.Errorf("%s allows %s = %v, want %v", tc.regime, tc.kind, got, tc.want)
		}
	}
}
