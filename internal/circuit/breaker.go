// Package circuit implements the trading kill switch. The breaker trips on
// loss streaks or loss-rate limits, halts all order flow while open, and
// re-closes through a half-open probe after the cooldown.
package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// BreakerState is the kill switch state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // trading allowed
	StateOpen     BreakerState = "open"      // trading halted
	StateHalfOpen BreakerState = "half_open" // probing recovery
)

// Config holds the breaker thresholds.
type Config struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`      // percent of equity
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLoss         float64 `json:"max_daily_loss"` // percent of equity
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// DefaultConfig returns conservative defaults for leveraged futures.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   10,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       100,
	}
}

// Breaker is the trading kill switch. Safe for concurrent use.
type Breaker struct {
	config            *Config
	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	tradesLastMinute  int
	dailyTrades       int
	lastTripTime      time.Time
	lastTradeTime     time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	minuteResetTime   time.Time
	tripReason        string
	mu                sync.RWMutex
	onTrip            func(reason string)
	onReset           func()
}

// NewBreaker creates a kill switch; nil config uses defaults.
func NewBreaker(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	now := time.Now()
	return &Breaker{
		config:          config,
		state:           StateClosed,
		hourlyResetTime: now.Add(time.Hour),
		dailyResetTime:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
		minuteResetTime: now.Add(time.Minute),
	}
}

// OnTrip sets the callback invoked when the breaker opens.
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback invoked when the breaker closes again.
func (b *Breaker) OnReset(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// CanTrade reports whether order flow is allowed, with the blocking reason.
func (b *Breaker) CanTrade() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetCountersIfNeeded()

	if b.state == StateOpen {
		elapsed := time.Since(b.lastTripTime)
		cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute
		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("kill switch open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	if b.hourlyLoss >= b.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%",
			b.hourlyLoss, b.config.MaxLossPerHour)
	}
	if b.dailyLoss >= b.config.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: %.2f%% >= %.2f%%",
			b.dailyLoss, b.config.MaxDailyLoss)
	}
	if b.consecutiveLosses >= b.config.MaxConsecutiveLosses {
		return false, fmt.Sprintf("max consecutive losses reached: %d", b.consecutiveLosses)
	}
	if b.tradesLastMinute >= b.config.MaxTradesPerMinute {
		return false, fmt.Sprintf("rate limit reached: %d trades/minute", b.tradesLastMinute)
	}
	if b.dailyTrades >= b.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades", b.dailyTrades)
	}

	return true, ""
}

// RecordTrade feeds a realized trade result (PnL as percent of margin)
// into the breaker. A winning trade while half-open closes the breaker.
func (b *Breaker) RecordTrade(pnlPercent float64) {
	if !b.config.Enabled {
		return
	}
	// NaN or Inf would poison the loss counters.
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	b.mu.Lock()
	b.resetCountersIfNeeded()

	b.lastTradeTime = time.Now()
	b.tradesLastMinute++
	b.dailyTrades++

	if pnlPercent < 0 {
		b.consecutiveLosses++
		b.hourlyLoss += -pnlPercent
		b.dailyLoss += -pnlPercent
	} else {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			if b.onReset != nil {
				go b.onReset()
			}
		}
	}

	b.checkAndTrip()
	b.mu.Unlock()
}

// ManualTrip opens the breaker immediately with an operator reason.
func (b *Breaker) ManualTrip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reason == "" {
		reason = "manual trip"
	}
	b.trip(reason)
}

// checkAndTrip evaluates thresholds and opens the breaker. Caller holds b.mu.
func (b *Breaker) checkAndTrip() {
	var reason string
	switch {
	case b.consecutiveLosses >= b.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", b.consecutiveLosses)
	case b.hourlyLoss >= b.config.MaxLossPerHour:
		reason = fmt.Sprintf("hourly loss: %.2f%%", b.hourlyLoss)
	case b.dailyLoss >= b.config.MaxDailyLoss:
		reason = fmt.Sprintf("daily loss: %.2f%%", b.dailyLoss)
	}
	if reason != "" {
		b.trip(reason)
	}
}

// trip opens the breaker. Caller holds b.mu.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.lastTripTime = time.Now()
	b.tripReason = reason
	if b.onTrip != nil {
		go b.onTrip(reason)
	}
}

// resetCountersIfNeeded rolls the time-based counters. Caller holds b.mu.
func (b *Breaker) resetCountersIfNeeded() {
	now := time.Now()
	if now.After(b.minuteResetTime) {
		b.tradesLastMinute = 0
		b.minuteResetTime = now.Add(time.Minute)
	}
	if now.After(b.hourlyResetTime) {
		b.hourlyLoss = 0
		b.hourlyResetTime = now.Add(time.Hour)
	}
	if now.After(b.dailyResetTime) {
		b.dailyLoss = 0
		b.dailyTrades = 0
		b.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// ForceReset closes the breaker and clears the loss streak.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveLosses = 0
	b.tripReason = ""
	b.mu.Unlock()

	if b.onReset != nil {
		go b.onReset()
	}
}

// GetState returns the current breaker state.
func (b *Breaker) GetState() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// GetStats returns the breaker counters.
func (b *Breaker) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"hourly_loss":        b.hourlyLoss,
		"daily_loss":         b.dailyLoss,
		"trades_last_minute": b.tradesLastMinute,
		"daily_trades":       b.dailyTrades,
		"trip_reason":        b.tripReason,
		"last_trip_time":     b.lastTripTime,
	}
}

// IsEnabled reports whether the breaker is active.
func (b *Breaker) IsEnabled() bool {
	return b.config.Enabled
}

// SetEnabled enables or disables the breaker.
func (b *Breaker) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.Enabled = enabled
}
