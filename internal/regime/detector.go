// Package regime classifies the current market regime and decides which
// signal kinds are tradeable in it.
package regime

import (
	"sort"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/strategy"
)

// Regime labels.
type Regime string

const (
	Trending      Regime = "TRENDING"
	MeanReverting Regime = "MEAN_REVERTING"
	Compressed    Regime = "COMPRESSED"
	Chaotic       Regime = "CHAOTIC"
)

// Signal kinds the detector gates.
const (
	KindBreakout      = "breakout"
	KindTrendFollow   = "trend_following"
	KindSnapback      = "liquidation_snapback"
	KindMeanReversion = "mean_reversion"
)

// Detection is the detector output.
type Detection struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"` // 0-100
	ADX        float64 `json:"adx"`
	WidthPct   float64 `json:"band_width_percentile"`
	Volatility float64 `json:"realized_volatility"`
}

var allowedKinds = map[Regime]map[string]bool{
	Trending:      {KindBreakout: true, KindTrendFollow: true},
	Compressed:    {KindBreakout: true},
	MeanReverting: {KindSnapback: true, KindMeanReversion: true},
	Chaotic:       {},
}

// Allowed reports whether a signal kind is tradeable in the regime.
func (d Detection) Allowed(kind string) bool {
	return allowedKinds[d.Regime][kind]
}

// Detect classifies the regime from a candle series. Priority order:
// compression, trend, chaos, mean reversion.
func Detect(candles []exchange.Candle) Detection {
	adx := strategy.CalculateADX(candles, 14)
	widthPct := strategy.BandWidthPercentile(candles, 20, 20)
	vol := strategy.RealizedVolatility(candles, 20)

	d := Detection{ADX: adx, WidthPct: widthPct, Volatility: vol}

	switch {
	case widthPct <= 0.2:
		d.Regime = Compressed
		d.Confidence = clamp((0.2-widthPct)/0.2*60+40, 0, 100)
	case adx >= 25:
		d.Regime = Trending
		d.Confidence = clamp((adx-25)/25*50+50, 0, 100)
	case adx < 20 && volInTopQuintile(candles, vol):
		d.Regime = Chaotic
		d.Confidence = clamp((20-adx)/20*40+50, 0, 100)
	default:
		d.Regime = MeanReverting
		d.Confidence = clamp((25-adx)/25*40+40, 0, 100)
	}

	return d
}

// volInTopQuintile ranks the current realized vol against trailing windows.
func volInTopQuintile(candles []exchange.Candle, current float64) bool {
	const lookback = 20
	if len(candles) < 40+lookback {
		return false
	}

	vols := make([]float64, 0, lookback)
	for i := 1; i <= lookback; i++ {
		vols = append(vols, strategy.RealizedVolatility(candles[:len(candles)-i], 20))
	}
	sort.Float64s(vols)

	cutoff := vols[int(float64(len(vols))*0.8)]
	return current >= cutoff
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
