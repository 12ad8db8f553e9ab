package analysis

import (
	"testing"

	"weex-trading-bot/internal/exchange"
)

// zigzag builds a series whose highs and lows both sit at the given values.
func zigzag(values ...float64) []exchange.Candle {
	out := make([]exchange.Candle, len(values))
	for i, v := range values {
		out[i] = exchange.Candle{OpenTime: int64(i), Open: v, High: v, Low: v, Close: v}
	}
	return out
}

func TestAnalyzeSwingsTooShort(t *testing.T) {
	if got := AnalyzeSwings(zigzag(1, 2, 3), 5); got != nil {
		t.Errorf("short series should return nil, got %+v", got)
	}
}

func TestAnalyzeSwingsUptrendStructure(t *testing.T) {
	// Peaks at 3, 5, 7 and troughs at 1, 3: higher highs and higher lows.
	s := AnalyzeSwings(zigzag(1, 2, 3, 2, 1, 2, 5, 4, 3, 4, 7, 6, 5), 2)
	if s == nil {
		t.Fatal("expected a swing structure")
	}

	if len(s.SwingHighs) != 3 {
		t.Fatalf("swing highs = %d, want 3", len(s.SwingHighs))
	}
	if len(s.SwingLows) != 2 {
		t.Fatalf("swing lows = %d, want 2", len(s.SwingLows))
	}
	if s.HigherHighs != 2 || s.LowerHighs != 0 {
		t.Errorf("higher highs = %d lower highs = %d, want 2 and 0", s.HigherHighs, s.LowerHighs)
	}
	if s.HigherLows != 1 || s.LowerLows != 0 {
		t.Errorf("higher lows = %d lower lows = %d, want 1 and 0", s.HigherLows, s.LowerLows)
	}
	if bias := s.Bias(); bias != 1.0 {
		t.Errorf("bias = %v, want 1.0 for a pure uptrend", bias)
	}

	if got := s.NearestSupport(6); got != 3 {
		t.Errorf("NearestSupport(6) = %v, want 3", got)
	}
	if got := s.NearestResistance(6); got != 7 {
		t.Errorf("NearestResistance(6) = %v, want 7", got)
	}
	if got := s.NearestResistance(10); got != 0 {
		t.Errorf("NearestResistance above all highs = %v, want 0", got)
	}
	if got := s.NearestSupport(0.5); got != 0 {
		t.Errorf("NearestSupport below all lows = %v, want 0", got)
	}
}

func TestAnalyzeSwingsDowntrendBias(t *testing.T) {
	// Mirror of the uptrend: lower highs and lower lows.
	s := AnalyzeSwings(zigzag(9, 8, 7, 8, 9, 8, 5, 6, 7, 6, 3, 4, 5), 2)
	if s == nil {
		t.Fatal("expected a swing structure")
	}
	if bias := s.Bias(); bias != -1.0 {
		t.Errorf("bias = %v, want -1.0 for a pure downtrend", bias)
	}
}

func TestSwingStructureNilSafe(t *testing.T) {
	var s *SwingStructure
	if got := s.Bias(); got != 0 {
		t.Errorf("nil Bias() = %v, want 0", got)
	}
	if got := s.NearestSupport(100); got != 0 {
		t.Errorf("nil NearestSupport = %v, want 0", got)
	}
	if got := s.NearestResistance(100); got != 0 {
		t.Errorf("nil NearestResistance = %v, want 0", got)
	}
}

func TestAnalyzeSwingsDefaultLookback(t *testing.T) {
	// lookback <= 0 falls back to the default window of 5.
	if got := AnalyzeSwings(zigzag(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 0); got != nil {
		t.Errorf("10 candles with default lookback should return nil, got %+v", got)
	}
}
