// Package advisor wraps the generative-model trade advisor. It enforces
// quota cooldowns, daily call caps, response caching and call spacing, and
// degrades to a deterministic technical fallback when the model is
// unavailable.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"weex-trading-bot/internal/analysis"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/sentiment"
)

// Advice statuses.
const (
	StatusSuccess  = "SUCCESS"
	StatusFallback = "FALLBACK"
	StatusError    = "ERROR"
)

// Decisions the advisor can return.
const (
	DecisionBuy  = "BUY"
	DecisionSell = "SELL"
	DecisionWait = "WAIT"
)

const (
	quotaCooldown  = 3600 * time.Second
	cacheTTL       = 60 * time.Second
	minCallSpacing = 2 * time.Second
)

// Config holds advisor configuration.
type Config struct {
	Endpoint      string `json:"endpoint"`
	APIKey        string `json:"-"`
	Model         string `json:"model"`
	MaxDailyCalls int    `json:"max_daily_calls"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:         "gemini-2.0-flash",
		MaxDailyCalls: 15,
	}
}

// Advice is the advisor's output for one symbol.
type Advice struct {
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Status     string    `json:"status"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

type cachedAdvice struct {
	advice    Advice
	fetchedAt time.Time
}

// Advisor issues trade advice with quota protection.
type Advisor struct {
	config     *Config
	httpClient *http.Client
	logger     *logging.Logger

	mu             sync.Mutex
	cache          map[string]cachedAdvice
	cooldownUntil  time.Time
	lastCallAt     time.Time
	dailyCalls     int
	dailyResetDate string
}

// New creates an advisor.
func New(config *Config) *Advisor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxDailyCalls <= 0 {
		config.MaxDailyCalls = 15
	}
	return &Advisor{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.WithComponent("advisor"),
		cache:      make(map[string]cachedAdvice),
	}
}

// Advise returns a decision for the symbol. The model is only consulted
// when the cache misses and quota controls allow it; otherwise the
// technical fallback engine answers.
func (a *Advisor) Advise(ctx context.Context, symbol string, snap *analysis.Snapshot, sent sentiment.Result) Advice {
	a.mu.Lock()

	if cached, ok := a.cache[symbol]; ok && time.Since(cached.fetchedAt) < cacheTTL {
		a.mu.Unlock()
		return cached.advice
	}

	reason, allowed := a.canCallLocked()
	if allowed {
		a.dailyCalls++
		a.lastCallAt = time.Now()
	}
	a.mu.Unlock()

	var advice Advice
	if !allowed {
		advice = FallbackDecision(snap, sent)
		advice.Reasoning = fmt.Sprintf("%s (%s)", advice.Reasoning, reason)
	} else {
		advice = a.callModel(ctx, symbol, snap, sent)
	}

	a.mu.Lock()
	a.cache[symbol] = cachedAdvice{advice: advice, fetchedAt: time.Now()}
	a.mu.Unlock()

	return advice
}

// canCallLocked checks quota controls. Caller holds a.mu.
func (a *Advisor) canCallLocked() (string, bool) {
	if a.config.APIKey == "" || a.config.Endpoint == "" {
		return "model not configured", false
	}

	now := time.Now()
	if now.Before(a.cooldownUntil) {
		return fmt.Sprintf("quota cooldown active for %s", time.Until(a.cooldownUntil).Round(time.Second)), false
	}

	today := now.Format("2006-01-02")
	if a.dailyResetDate != today {
		a.dailyResetDate = today
		a.dailyCalls = 0
	}
	if a.dailyCalls >= a.config.MaxDailyCalls {
		return fmt.Sprintf("daily call cap reached (%d)", a.config.MaxDailyCalls), false
	}

	if !a.lastCallAt.IsZero() && now.Sub(a.lastCallAt) < minCallSpacing {
		return "minimum call spacing not elapsed", false
	}

	return "", true
}

func (a *Advisor) callModel(ctx context.Context, symbol string, snap *analysis.Snapshot, sent sentiment.Result) Advice {
	prompt := buildPrompt(symbol, snap, sent)

	raw, err := a.sendRequest(ctx, prompt)
	if err != nil {
		if isQuotaError(err) {
			a.mu.Lock()
			a.cooldownUntil = time.Now().Add(quotaCooldown)
			a.mu.Unlock()
			a.logger.Warn("Model quota exhausted, entering cooldown", "cooldown", quotaCooldown)
		} else {
			a.logger.Error("Model call failed", "symbol", symbol, "error", err)
		}
		advice := FallbackDecision(snap, sent)
		return advice
	}

	advice, err := parseAdvice(raw)
	if err != nil {
		a.logger.Warn("Unparseable model response", "error", err)
		fallback := FallbackDecision(snap, sent)
		fallback.Status = StatusError
		fallback.Reasoning = fmt.Sprintf("%s (malformed model response)", fallback.Reasoning)
		return fallback
	}

	if advice.Status == "" {
		advice.Status = StatusSuccess
	}
	advice.Source = a.config.Model
	advice.Timestamp = time.Now()
	return advice
}

func (a *Advisor) sendRequest(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error encoding request: %w", err)
	}

	endpoint := fmt.Sprintf("%s?key=%s", a.config.Endpoint, a.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("quota exceeded (429): %s", string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API error %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", fmt.Errorf("error parsing model envelope: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty model response")
	}
	return envelope.Candidates[0].Content.Parts[0].Text, nil
}

func buildPrompt(symbol string, snap *analysis.Snapshot, sent sentiment.Result) string {
	var b strings.Builder
	b.WriteString("You are a disciplined crypto futures analyst. Based on the market data below, ")
	b.WriteString("respond with a single JSON object: {\"decision\": \"BUY\"|\"SELL\"|\"WAIT\", ")
	b.WriteString("\"confidence\": 0-100, \"reasoning\": \"one sentence\"}.\n\n")
	fmt.Fprintf(&b, "Symbol: %s\n", symbol)
	fmt.Fprintf(&b, "Price: %.4f\n", snap.Price)
	fmt.Fprintf(&b, "RSI(14): %.2f\n", snap.RSI)
	fmt.Fprintf(&b, "Trend: %s\n", snap.Trend)
	fmt.Fprintf(&b, "EMA20: %.4f\n", snap.EMA20)
	fmt.Fprintf(&b, "ATR(14): %.4f\n", snap.Volatility)
	fmt.Fprintf(&b, "Volume spike: %t\n", snap.VolumeSpike)
	fmt.Fprintf(&b, "News sentiment: %s (%.2f)\n", sent.Label, sent.Score)
	return b.String()
}

// parseAdvice extracts the decision JSON from a model response, tolerating
// markdown code fences around the payload.
func parseAdvice(raw string) (Advice, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Advice{}, fmt.Errorf("error parsing advice JSON: %w", err)
	}

	// An unknown action is coerced to WAIT and flagged as a model error so
	// callers can tell a coerced answer from a clean one.
	status := ""
	decision := strings.ToUpper(strings.TrimSpace(payload.Decision))
	if decision != DecisionBuy && decision != DecisionSell && decision != DecisionWait {
		decision = DecisionWait
		status = StatusError
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return Advice{
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  payload.Reasoning,
		Status:     status,
	}, nil
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}

// Stats reports advisor usage counters.
func (a *Advisor) Stats() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]interface{}{
		"daily_calls":     a.dailyCalls,
		"max_daily_calls": a.config.MaxDailyCalls,
		"cooldown_until":  a.cooldownUntil,
		"cached_symbols":  len(a.cache),
	}
}
