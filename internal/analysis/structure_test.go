package analysis

import (
	"testing"

	"weex-trading-bot/internal/exchange"
)

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

func TestAnalyzeMarketStructureInsufficientData(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 50)...)
	if _, err := AnalyzeMarketStructure("cmt_btcusdt", candles); err == nil {
		t.Error("expected an error below the candle minimum")
	}
}

func TestAnalyzeMarketStructureTrend(t *testing.T) {
	rising := make([]float64, 60)
	falling := make([]float64, 60)
	flat := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 200 - float64(i)
		flat[i] = 100
	}

	tests := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"rising", rising, TrendBullish},
		{"falling", falling, TrendBearish},
		{"flat", flat, TrendNeutral},
	}

	for _, tc := range tests {
		snap, err := AnalyzeMarketStructure("cmt_btcusdt", candlesFromCloses(tc.closes...))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if snap.Trend != tc.want {
			t.Errorf("%s: trend = %q, want %q", tc.name, snap.Trend, tc.want)
		}
		if snap.Price != tc.closes[len(tc.closes)-1] {
			t.Errorf("%s: price = %v, want last close %v", tc.name, snap.Price, tc.closes[len(tc.closes)-1])
		}
		if snap.Symbol != "cmt_btcusdt" {
			t.Errorf("%s: symbol = %q", tc.name, snap.Symbol)
		}
	}
}

func TestAnalyzeMarketStructureVolumeSpike(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 60)...)
	for i := range candles {
		candles[i].Close = 100
		candles[i].High = 101
		candles[i].Low = 99
	}

	snap, err := AnalyzeMarketStructure("cmt_ethusdt", candles)
	if err != nil {
		t.Fatal(err)
	}
	if snap.VolumeSpike {
		t.Error("constant volume should not flag a spike")
	}

	candles[len(candles)-1].Volume = 10000
	snap, err = AnalyzeMarketStructure("cmt_ethusdt", candles)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.VolumeSpike {
		t.Error("10x last-bar volume should flag a spike")
	}
}

func TestAnalyzeMarketStructureRSIBounds(t *testing.T) {
	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	snap, err := AnalyzeMarketStructure("cmt_btcusdt", candlesFromCloses(rising...))
	if err != nil {
		t.Fatal(err)
	}
	if snap.RSI < 0 || snap.RSI > 100 {
		t.Errorf("RSI = %v, want within [0, 100]", snap.RSI)
	}
	if snap.Volatility <= 0 {
		t.Errorf("ATR = %v, want > 0", snap.Volatility)
	}
}
