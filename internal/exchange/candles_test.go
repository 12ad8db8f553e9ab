package exchange

import (
	"testing"
)

func TestMirrorSymbol(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cmt_btcusdt", "BTCUSDT"},
		{"cmt_ethusdt", "ETHUSDT"},
		{"CMT_SOLUSDT", "SOLUSDT"},
		{"BTCUSDT_SPBL", "BTCUSDT"},
		{"dogeusdt", "DOGEUSDT"},
	}
	for _, tc := range tests {
		if got := MirrorSymbol(tc.in); got != tc.want {
			t.Errorf("MirrorSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseMirrorKlines(t *testing.T) {
	body := []byte(`[
		[1700000000000, "100.5", "101.0", "99.5", "100.8", "1234.5", 1700000299999, "0", 10, "0", "0", "0"],
		[1700000300000, "100.8", "102.0", "100.1", "101.9", "2000.0", 1700000599999, "0", 12, "0", "0", "0"]
	]`)

	candles, err := ParseMirrorKlines(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}

	first := candles[0]
	if first.OpenTime != 1700000000000 {
		t.Errorf("open time = %d", first.OpenTime)
	}
	if first.Open != 100.5 || first.High != 101.0 || first.Low != 99.5 || first.Close != 100.8 {
		t.Errorf("OHLC mismatch: %+v", first)
	}
	if first.Volume != 1234.5 {
		t.Errorf("volume = %v, want 1234.5", first.Volume)
	}
}

func TestParseMirrorKlinesErrors(t *testing.T) {
	if _, err := ParseMirrorKlines([]byte(`{"code":-1}`)); err == nil {
		t.Error("object payload should fail")
	}
	if _, err := ParseMirrorKlines([]byte(`[]`)); err == nil {
		t.Error("empty array should fail")
	}
	if _, err := ParseMirrorKlines([]byte(`[[1,2]]`)); err == nil {
		t.Error("short rows should leave nothing parseable")
	}
}

func TestParseMirrorKlinesSkipsBadRows(t *testing.T) {
	body := []byte(`[
		["bad", "1", "1", "1", "1", "1"],
		[1700000000000, "100", "101", "99", "100", "500", 0]
	]`)
	candles, err := ParseMirrorKlines(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 {
		t.Errorf("candles = %d, want 1 after skipping the bad row", len(candles))
	}
}

func TestNormalizeCandles(t *testing.T) {
	candles := []Candle{
		{OpenTime: 3000, Close: 3},
		{OpenTime: 1000, Close: 1},
		{OpenTime: 2000, Close: 2},
		{OpenTime: 2000, Close: 2.5}, // later duplicate wins
	}

	out := NormalizeCandles(candles)
	if len(out) != 3 {
		t.Fatalf("length = %d, want 3 after dedup", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].OpenTime <= out[i-1].OpenTime {
			t.Fatalf("open times not strictly increasing: %+v", out)
		}
	}
	if out[1].Close != 2.5 {
		t.Errorf("duplicate open time kept close %v, want the last seen 2.5", out[1].Close)
	}
}

func TestParseMirrorKlinesNormalizesOrder(t *testing.T) {
	body := []byte(`[
		[1700000300000, "100.8", "102.0", "100.1", "101.9", "2000.0"],
		[1700000000000, "100.5", "101.0", "99.5", "100.8", "1234.5"],
		[1700000300000, "100.9", "102.1", "100.2", "102.0", "2100.0"]
	]`)

	candles, err := ParseMirrorKlines(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2 after dedup", len(candles))
	}
	if candles[0].OpenTime != 1700000000000 || candles[1].OpenTime != 1700000300000 {
		t.Errorf("candles not ascending: %+v", candles)
	}
	if candles[1].Close != 102.0 {
		t.Errorf("duplicate bar close = %v, want the later 102.0", candles[1].Close)
	}
}

func TestGenerateMockCandles(t *testing.T) {
	candles := GenerateMockCandles("cmt_btcusdt", "5m", 100)
	if len(candles) != 100 {
		t.Fatalf("length = %d, want 100", len(candles))
	}

	for i, c := range candles {
		if c.High < c.Open || c.High < c.Close {
			t.Fatalf("candle %d: high %v below body", i, c.High)
		}
		if c.Low > c.Open || c.Low > c.Close {
			t.Fatalf("candle %d: low %v above body", i, c.Low)
		}
		if c.Close <= 0 {
			t.Fatalf("candle %d: non-positive close %v", i, c.Close)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			t.Fatalf("candle %d: open times not increasing", i)
		}
	}

	// Walks are seeded per symbol, so a rerun reproduces the same closes.
	again := GenerateMockCandles("cmt_btcusdt", "5m", 100)
	for i := range candles {
		if candles[i].Close != again[i].Close {
			t.Fatal("series should be deterministic per symbol")
		}
	}

	other := GenerateMockCandles("cmt_ethusdt", "5m", 100)
	if other[0].Open == candles[0].Open {
		t.Error("different symbols should start from different base prices")
	}
}
