package analysis

import (
	"weex-trading-bot/internal/exchange"
)

// SwingPoint is a confirmed local extreme in the candle series.
type SwingPoint struct {
	Price     float64 `json:"price"`
	Index     int     `json:"index"`
	Type      string  `json:"type"` // "high" or "low"
	Confirmed bool    `json:"confirmed"`
}

// SwingStructure summarizes the swing-point sequence of a candle series.
// HigherHighs together with HigherLows indicate an uptrend leg, LowerHighs
// with LowerLows a downtrend leg.
type SwingStructure struct {
	SwingHighs  []SwingPoint `json:"swing_highs"`
	SwingLows   []SwingPoint `json:"swing_lows"`
	HigherHighs int          `json:"higher_highs"`
	HigherLows  int          `json:"higher_lows"`
	LowerHighs  int          `json:"lower_highs"`
	LowerLows   int          `json:"lower_lows"`
}

const defaultSwingLookback = 5

// AnalyzeSwings finds swing points over a symmetric lookback window and
// counts the higher/lower sequence. Returns nil when the series is too short
// for even one swing window.
func AnalyzeSwings(candles []exchange.Candle, lookback int) *SwingStructure {
	if lookback <= 0 {
		lookback = defaultSwingLookback
	}
	if len(candles) < lookback*2+1 {
		return nil
	}

	s := &SwingStructure{}

	for i := lookback; i < len(candles)-lookback; i++ {
		high := candles[i].High
		low := candles[i].Low
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= high {
				isHigh = false
			}
			if candles[j].Low <= low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			s.SwingHighs = append(s.SwingHighs, SwingPoint{Price: high, Index: i, Type: "high", Confirmed: true})
		}
		if isLow {
			s.SwingLows = append(s.SwingLows, SwingPoint{Price: low, Index: i, Type: "low", Confirmed: true})
		}
	}

	for i := 1; i < len(s.SwingHighs); i++ {
		if s.SwingHighs[i].Price > s.SwingHighs[i-1].Price {
			s.HigherHighs++
		} else if s.SwingHighs[i].Price < s.SwingHighs[i-1].Price {
			s.LowerHighs++
		}
	}
	for i := 1; i < len(s.SwingLows); i++ {
		if s.SwingLows[i].Price > s.SwingLows[i-1].Price {
			s.HigherLows++
		} else if s.SwingLows[i].Price < s.SwingLows[i-1].Price {
			s.LowerLows++
		}
	}

	return s
}

// Bias maps the swing sequence to a directional score in [-1, 1]. Positive
// values mean the series is printing higher highs and higher lows.
func (s *SwingStructure) Bias() float64 {
	if s == nil {
		return 0
	}
	total := s.HigherHighs + s.HigherLows + s.LowerHighs + s.LowerLows
	if total == 0 {
		return 0
	}
	return float64((s.HigherHighs+s.HigherLows)-(s.LowerHighs+s.LowerLows)) / float64(total)
}

// NearestSupport returns the highest swing low below price, or 0.
func (s *SwingStructure) NearestSupport(price float64) float64 {
	if s == nil {
		return 0
	}
	best := 0.0
	for _, p := range s.SwingLows {
		if p.Price < price && p.Price > best {
			best = p.Price
		}
	}
	return best
}

// NearestResistance returns the lowest swing high above price, or 0.
func (s *SwingStructure) NearestResistance(price float64) float64 {
	if s == nil {
		return 0
	}
	best := 0.0
	for _, p := range s.SwingHighs {
		if p.Price > price && (best == 0 || p.Price < best) {
			best = p.Price
		}
	}
	return best
}
