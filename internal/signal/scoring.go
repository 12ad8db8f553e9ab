package signal

// MinSignalStrength is the floor a scored opportunity must clear before the
// orchestrator will consider it.
const MinSignalStrength = 25.0

// AssetScore is the composite opportunity score for one symbol.
type AssetScore struct {
	Symbol     string  `json:"symbol"`
	Score      float64 `json:"score"`
	Side       string  `json:"side"`
	Confidence float64 `json:"confidence"` // signal strength
	Regime     string  `json:"regime"`
	Signal     Result  `json:"-"`
}

// ScoreAsset combines the confidence factors of a generated signal into the
// composite opportunity score:
//
//	Score = 0.30*Trend + 0.25*Momentum + 0.15*Vol + 0.15*FP + 0.10*OBI - 0.05*Risk
//
// then blends the composite with raw signal strength 50/50. Funding and
// order book factors default to zero when the exchange does not supply them.
func ScoreAsset(sig Result) AssetScore {
	factor := func(name string) float64 {
		return sig.ConfidenceFactors[name] / 100
	}

	score := 0.0
	score += 0.30 * factor("momentum") * 100
	score += 0.25 * factor("trend_strength") * 100
	score += 0.15 * factor("volatility_compression") * 100
	score += 0.15 * factor("funding_pressure") * 100
	score += 0.10 * factor("orderbook_imbalance") * 100

	riskPenalty := (100 - sig.Regime.Confidence) / 100
	score -= 0.05 * riskPenalty * 100

	final := score*0.5 + sig.Strength*0.5

	return AssetScore{
		Symbol:     sig.Symbol,
		Score:      final,
		Side:       sig.Side,
		Confidence: sig.Strength,
		Regime:     string(sig.Regime.Regime),
		Signal:     sig,
	}
}
