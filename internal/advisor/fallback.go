package advisor

import (
	"time"

	"weex-trading-bot/internal/analysis"
	"weex-trading-bot/internal/sentiment"
)

// FallbackDecision is the deterministic technical engine used when the
// model is unavailable or over quota.
func FallbackDecision(snap *analysis.Snapshot, sent sentiment.Result) Advice {
	advice := Advice{
		Status:    StatusFallback,
		Source:    "technical_fallback",
		Timestamp: time.Now(),
	}

	if snap == nil {
		advice.Decision = DecisionWait
		advice.Confidence = 0
		advice.Reasoning = "No market structure available"
		advice.Status = StatusError
		return advice
	}

	rsi := snap.RSI

	switch {
	case snap.Trend == analysis.TrendBullish && rsi > 30 && rsi < 70:
		if rsi < 50 {
			advice.Decision = DecisionBuy
			advice.Confidence = minFloat(75, 50+(50-rsi))
			advice.Reasoning = "Bullish trend with RSI below midline, room to run"
		} else if snap.VolumeSpike {
			advice.Decision = DecisionBuy
			advice.Confidence = 70
			advice.Reasoning = "Bullish trend confirmed by volume spike"
		} else {
			advice.Decision = DecisionWait
			advice.Confidence = 40
			advice.Reasoning = "Bullish trend but extended, waiting for pullback"
		}

	case snap.Trend == analysis.TrendBearish && rsi > 30 && rsi < 70:
		if rsi > 50 {
			advice.Decision = DecisionSell
			advice.Confidence = minFloat(75, 50+(rsi-50))
			advice.Reasoning = "Bearish trend with RSI above midline, room to fall"
		} else if snap.VolumeSpike {
			advice.Decision = DecisionSell
			advice.Confidence = 70
			advice.Reasoning = "Bearish trend confirmed by volume spike"
		} else {
			advice.Decision = DecisionWait
			advice.Confidence = 40
			advice.Reasoning = "Bearish trend but extended, waiting for bounce"
		}

	case rsi > 75:
		advice.Decision = DecisionSell
		advice.Confidence = 65
		advice.Reasoning = "Overbought conditions, mean reversion expected"

	case rsi < 25:
		advice.Decision = DecisionBuy
		advice.Confidence = 65
		advice.Reasoning = "Oversold conditions, mean reversion expected"

	default:
		advice.Decision = DecisionWait
		advice.Confidence = 30
		advice.Reasoning = "No clear setup in current structure"
	}

	return advice
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
