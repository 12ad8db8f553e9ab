package sentiment

import (
	"context"
	"testing"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantLabel string
		wantScore float64
	}{
		{"too short", "hi", LabelNeutral, 0},
		{"no lexicon hits", "nothing relevant here today", LabelNeutral, 0},
		{"bullish", "bullish surge", LabelPositive, 0.85},
		{"bearish", "bitcoin crash and selloff spark fear", LabelNegative, -0.77},
		{"punctuation trimmed", "Rally! Gains, surge.", LabelPositive, 0.77},
		{"mixed washes out", "surge meets selloff", LabelNeutral, 0},
	}
	for _, tc := range tests {
		label, score := ClassifyText(tc.text)
		if label != tc.wantLabel {
			t.Errorf("%s: label = %q, want %q", tc.name, label, tc.wantLabel)
		}
		if score != tc.wantScore {
			t.Errorf("%s: score = %v, want %v", tc.name, score, tc.wantScore)
		}
	}
}

func TestLabelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.5, LabelPositive},
		{0.11, LabelPositive},
		{0.1, LabelNeutral},
		{0, LabelNeutral},
		{-0.1, LabelNeutral},
		{-0.11, LabelNegative},
	}
	for _, tc := range tests {
		if got := labelForScore(tc.score); got != tc.want {
			t.Errorf("labelForScore(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestAssetCode(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"cmt_btcusdt", "BTC"},
		{"cmt_ethusdt", "ETH"},
		{"CMT_SOLUSDT", "SOL"},
	}
	for _, tc := range tests {
		if got := assetCode(tc.symbol); got != tc.want {
			t.Errorf("assetCode(%q) = %q, want %q", tc.symbol, got, tc.want)
		}
	}
}

func TestAnalyzeSymbolLocalFallback(t *testing.T) {
	a := NewAnalyzer(&Config{Enabled: false})

	r := a.AnalyzeSymbol(context.Background(), "cmt_btcusdt")
	if r.Source != "local" {
		t.Errorf("source = %q, want local with news disabled", r.Source)
	}
	if r.Label != LabelPositive {
		t.Errorf("label = %q, want POSITIVE from the canonical BTC headline", r.Label)
	}
	if r.Score != 0.53 {
		t.Errorf("score = %v, want 0.53", r.Score)
	}
	if r.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped")
	}
}

func TestAnalyzeSymbolUnknownAssetUsesGenericHeadline(t *testing.T) {
	a := NewAnalyzer(&Config{Enabled: false})

	r := a.AnalyzeSymbol(context.Background(), "cmt_xrpusdt")
	if r.Label != LabelPositive || r.Score != 0.4 {
		t.Errorf("generic headline reading = %q/%v, want POSITIVE/0.4", r.Label, r.Score)
	}
}

func TestAnalyzeSymbolCaches(t *testing.T) {
	a := NewAnalyzer(&Config{Enabled: false})

	first := a.AnalyzeSymbol(context.Background(), "cmt_btcusdt")
	second := a.AnalyzeSymbol(context.Background(), "cmt_btcusdt")
	if !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Error("second read inside the TTL should come from cache")
	}
}
