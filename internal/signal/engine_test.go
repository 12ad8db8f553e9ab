package signal

import (
	"math"
	"testing"
	"time"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/regime"
)

func flatCandles(n int, close float64) []exchange.Candle {
	start := time.Now().Add(-time.Duration(n) * 5 * time.Minute).Unix() * 1000
	out := make([]exchange.Candle, n)
	for i := range out {
		out[i] = exchange.Candle{
			OpenTime: start + int64(i)*300000,
			Open:     close,
			High:     close + 1,
			Low:      close - 1,
			Close:    close,
			Volume:   1000,
		}
	}
	return out
}

func TestGenerateInsufficientCandles(t *testing.T) {
	e := NewEngine()
	result := e.Generate("cmt_btcusdt", flatCandles(30, 100))

	if result.Side != SideNeutral {
		t.Errorf("side = %q, want NEUTRAL", result.Side)
	}
	if result.Kind != "none" {
		t.Errorf("kind = %q, want none", result.Kind)
	}
	if result.Provenance != ProvenanceSynth {
		t.Errorf("provenance = %q, want %q", result.Provenance, ProvenanceSynth)
	}
	if result.Strength != 0 {
		t.Errorf("strength = %v, want 0", result.Strength)
	}
}

func TestGenerateFlatMarketStaysNeutral(t *testing.T) {
	e := NewEngine()
	result := e.Generate("cmt_btcusdt", flatCandles(120, 100))

	if result.Side != SideNeutral {
		t.Fatalf("flat market produced %q signal", result.Side)
	}
	if result.EntryPrice != 100 {
		t.Errorf("entry = %v, want 100", result.EntryPrice)
	}
	if result.ATR != 2 {
		t.Errorf("atr = %v, want 2 for a constant 2-point range", result.ATR)
	}
	if result.StopLoss != 0 || result.TakeProfit != 0 {
		t.Errorf("neutral signal should not carry levels: stop %v tp %v",
			result.StopLoss, result.TakeProfit)
	}

	for _, key := range []string{
		"volatility_compression", "momentum", "breakout",
		"liquidation_snapback", "volume_confirmation",
		"trend_strength", "swing_structure",
	} {
		if _, ok := result.ConfidenceFactors[key]; !ok {
			t.Errorf("missing confidence factor %q", key)
		}
	}
	// No swing structure in a flat series: the factor sits at its midpoint.
	if result.ConfidenceFactors["swing_structure"] != 50 {
		t.Errorf("swing_structure = %v, want 50",
			result.ConfidenceFactors["swing_structure"])
	}
}

func TestStopAndTarget(t *testing.T) {
	tests := []struct {
		side       string
		wantStop   float64
		wantTarget float64
	}{
		{SideLong, 97, 106},
		{SideShort, 103, 94},
	}
	for _, tc := range tests {
		stop, target := StopAndTarget(100, tc.side, 2, 2.0)
		if stop != tc.wantStop || target != tc.wantTarget {
			t.Errorf("%s: stop/target = %v/%v, want %v/%v",
				tc.side, stop, target, tc.wantStop, tc.wantTarget)
		}
	}
}

func TestScoreAssetComposite(t *testing.T) {
	sig := Result{
		Symbol:   "cmt_btcusdt",
		Side:     SideLong,
		Strength: 60,
		Regime:   regime.Detection{Regime: regime.Trending, Confidence: 80},
		ConfidenceFactors: map[string]float64{
			"momentum":               80,
			"trend_strength":         40,
			"volatility_compression": 20,
		},
	}

	score := ScoreAsset(sig)

	// 0.30*80 + 0.25*40 + 0.15*20 - 0.05*20 = 36, blended 50/50 with 60.
	if math.Abs(score.Score-48) > 1e-9 {
		t.Errorf("score = %v, want 48", score.Score)
	}
	if score.Confidence != 60 {
		t.Errorf("confidence = %v, want signal strength 60", score.Confidence)
	}
	if score.Regime != "TRENDING" {
		t.Errorf("regime = %q, want TRENDING", score.Regime)
	}
	if score.Side != SideLong {
		t.Errorf("side = %q, want LONG", score.Side)
	}
}

func TestScoreAssetMissingFactorsDefaultToZero(t *testing.T) {
	sig := Result{
		Symbol:   "cmt_ethusdt",
		Side:     SideNeutral,
		Strength: 0,
		Regime:   regime.Detection{Regime: regime.MeanReverting, Confidence: 100},
	}
	score := ScoreAsset(sig)
	if score.Score != 0 {
		t.Errorf("score = %v, want 0 with no factors and full regime confidence", score.Score)
	}
}

func TestGenerateRegimeGateZeroesDisallowedKind(t *testing.T) {
	// A hand-built snapback in a trending regime must be suppressed.
	det := regime.Detection{Regime: regime.Trending}
	if det.Allowed(regime.KindSnapback) {
		t.Fatal("snapback should not be allowed while trending")
	}
	if !det.Allowed(regime.KindBreakout) {
		t.Fatal("breakout should be allowed while trending")
	}
}
