// Package risk implements the portfolio risk controls: position sizing,
// stop placement, daily loss and drawdown limits, exposure caps and
// correlation-aware position gating.
package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"weex-trading-bot/internal/logging"
)

// Risk parameters.
const (
	RiskPerTrade = 0.0125
	MaxDailyLoss = 0.03
	MaxDrawdown  = 0.12
	MaxExposure  = 0.40
	MaxLeverage  = 20

	StopLossMinATR = 1.3
	StopLossMaxATR = 1.8

	TrailingStopATR = 2.0

	MaxHoldTime = 24 * time.Hour

	MaxConcurrentPositions = 1
)

// CorrelationGroups limit the book to one position per group.
var CorrelationGroups = map[string][]string{
	"A": {"cmt_btcusdt", "cmt_ethusdt"},
	"B": {"cmt_solusdt", "cmt_dogeusdt"},
	"C": {"cmt_bnbusdt", "cmt_ltcusdt"},
	"D": {"cmt_xrpusdt", "cmt_adausdt"},
}

// trackedPosition is the manager's internal view of an open position.
type trackedPosition struct {
	Symbol     string
	Direction  string // LONG or SHORT
	EntryPrice float64
	Size       float64
	MarginUsed float64
	OpenedAt   time.Time
}

// TradeRecord is the realized outcome of a closed position.
type TradeRecord struct {
	Symbol         string        `json:"symbol"`
	Direction      string        `json:"direction"`
	EntryPrice     float64       `json:"entry_price"`
	ExitPrice      float64       `json:"exit_price"`
	Size           float64       `json:"size"`
	RealizedPnL    float64       `json:"realized_pnl"`
	RealizedPnLPct float64       `json:"realized_pnl_pct"`
	HoldTime       time.Duration `json:"hold_time"`
	ExitReason     string        `json:"exit_reason"`
	ClosedAt       time.Time     `json:"closed_at"`
}

// Manager tracks equity and enforces the portfolio risk rules.
type Manager struct {
	mu sync.RWMutex

	initialEquity       float64
	peakEquity          float64
	currentEquity       float64
	dailyStartingEquity float64
	lastResetDate       string

	positions map[string]*trackedPosition
	history   []TradeRecord

	dailyPnL float64
	totalPnL float64

	logger *logging.Logger
}

// NewManager creates a risk manager seeded with the starting equity.
func NewManager(initialEquity float64) *Manager {
	return &Manager{
		initialEquity:       initialEquity,
		peakEquity:          initialEquity,
		currentEquity:       initialEquity,
		dailyStartingEquity: initialEquity,
		lastResetDate:       time.Now().Format("2006-01-02"),
		positions:           make(map[string]*trackedPosition),
		logger:              logging.WithComponent("risk"),
	}
}

// resetDailyTrackingLocked rolls the daily ledger at the first touch of a
// new calendar day. Caller holds m.mu.
func (m *Manager) resetDailyTrackingLocked() {
	today := time.Now().Format("2006-01-02")
	if today != m.lastResetDate {
		m.dailyStartingEquity = m.currentEquity
		m.dailyPnL = 0
		m.lastResetDate = today
	}
}

// UpdateEquity refreshes equity and the peak used for drawdown tracking.
func (m *Manager) UpdateEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentEquity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	m.totalPnL = equity - m.initialEquity
}

// Equity returns the current tracked equity.
func (m *Manager) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentEquity
}

// CalculatePositionSize sizes a trade so that a stop-out loses RiskPerTrade
// of equity. The stop distance is clamped to the ATR band, the size is
// scaled down to available margin, and the trade is refused entirely when
// it would push exposure past the cap.
// Returns (size, marginRequired, ok).
func (m *Manager) CalculatePositionSize(entryPrice, stopLoss, atr float64, symbol string) (float64, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyTrackingLocked()

	if ok, reason := m.canOpenPositionLocked(symbol); !ok {
		m.logger.Warn("Position sizing refused", "symbol", symbol, "reason", reason)
		return 0, 0, false
	}

	riskAmount := RiskPerTrade * m.currentEquity

	stopDistance := math.Abs(entryPrice - stopLoss)
	minStop := StopLossMinATR * atr
	maxStop := StopLossMaxATR * atr
	if stopDistance < minStop {
		stopDistance = minStop
	} else if stopDistance > maxStop {
		stopDistance = maxStop
	}
	if stopDistance <= 0 {
		return 0, 0, false
	}

	positionSize := riskAmount / stopDistance
	marginRequired := positionSize * entryPrice / MaxLeverage

	usedMargin := m.usedMarginLocked()
	availableMargin := m.currentEquity - usedMargin
	if marginRequired > availableMargin {
		maxNotional := availableMargin * MaxLeverage
		positionSize = maxNotional / entryPrice
		marginRequired = availableMargin
		m.logger.Warn("Position size reduced to fit available margin",
			"symbol", symbol, "size", positionSize)
	}

	totalExposure := usedMargin + marginRequired
	maxExposureAllowed := m.currentEquity * MaxExposure
	if totalExposure > maxExposureAllowed {
		m.logger.Warn("Position blocked by exposure limit",
			"symbol", symbol, "exposure", totalExposure, "limit", maxExposureAllowed)
		return 0, 0, false
	}

	return positionSize, marginRequired, true
}

// CalculateStopLoss places the stop k*ATR away, k clamped to [1.3, 1.8].
func CalculateStopLoss(entryPrice, atr float64, direction string, volatilityMultiplier float64) float64 {
	k := clampFloat(volatilityMultiplier, StopLossMinATR, StopLossMaxATR)
	if direction == "LONG" {
		return entryPrice - k*atr
	}
	return entryPrice + k*atr
}

// CalculateTakeProfit places the target at riskReward times the stop
// distance.
func CalculateTakeProfit(entryPrice, stopLoss float64, direction string, riskReward float64) float64 {
	stopDistance := math.Abs(entryPrice - stopLoss)
	if direction == "LONG" {
		return entryPrice + riskReward*stopDistance
	}
	return entryPrice - riskReward*stopDistance
}

// CalculateTrailingStop returns the trailing stop for a profitable
// position, or 0 when trailing has not activated. For longs the stop
// trails the high-water mark by 2*ATR and never drops below entry.
func CalculateTrailingStop(entryPrice, currentPrice, atr float64, direction string, waterMark float64) float64 {
	if direction == "LONG" {
		if currentPrice <= entryPrice {
			return 0
		}
		if waterMark == 0 {
			waterMark = currentPrice
		}
		return math.Max(waterMark-TrailingStopATR*atr, entryPrice)
	}

	if currentPrice >= entryPrice {
		return 0
	}
	if waterMark == 0 {
		waterMark = currentPrice
	}
	return math.Min(waterMark+TrailingStopATR*atr, entryPrice)
}

// CanOpenPosition checks daily loss, drawdown, the concurrent position cap,
// correlation conflicts and exposure. Returns false with the joined
// reasons when any rule blocks the trade.
func (m *Manager) CanOpenPosition(symbol string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyTrackingLocked()
	return m.canOpenPositionLocked(symbol)
}

func (m *Manager) canOpenPositionLocked(symbol string) (bool, string) {
	var reasons []string

	dailyLossPct := (m.currentEquity - m.dailyStartingEquity) / m.dailyStartingEquity
	if dailyLossPct < -MaxDailyLoss {
		reasons = append(reasons, fmt.Sprintf("daily loss limit reached: %.2f%%", dailyLossPct*100))
	}

	drawdown := (m.peakEquity - m.currentEquity) / m.peakEquity
	if drawdown > MaxDrawdown {
		reasons = append(reasons, fmt.Sprintf("max drawdown exceeded: %.2f%%", drawdown*100))
	}

	if group := correlationGroup(symbol); group != "" {
		for _, sym := range CorrelationGroups[group] {
			if sym == symbol {
				continue
			}
			if _, open := m.positions[sym]; open {
				reasons = append(reasons, fmt.Sprintf("position already open in correlation group %s: %s", group, sym))
			}
		}
	}

	if len(m.positions) >= MaxConcurrentPositions {
		reasons = append(reasons, fmt.Sprintf("maximum positions reached: %d/%d", len(m.positions), MaxConcurrentPositions))
	}

	exposurePct := m.usedMarginLocked() / m.currentEquity
	if exposurePct >= MaxExposure {
		reasons = append(reasons, fmt.Sprintf("max exposure reached: %.2f%%", exposurePct*100))
	}

	if len(reasons) > 0 {
		return false, strings.Join(reasons, "; ")
	}
	return true, ""
}

func correlationGroup(symbol string) string {
	for group, symbols := range CorrelationGroups {
		for _, s := range symbols {
			if s == symbol {
				return group
			}
		}
	}
	return ""
}

// RegisterOpen records a newly opened position in the risk ledger.
func (m *Manager) RegisterOpen(symbol, direction string, entryPrice, size, marginUsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = &trackedPosition{
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: entryPrice,
		Size:       size,
		MarginUsed: marginUsed,
		OpenedAt:   time.Now(),
	}
}

// RegisterClose settles a position, updates equity and returns the trade
// record. Returns nil when no position is tracked for the symbol.
func (m *Manager) RegisterClose(symbol string, exitPrice float64, reason string) *TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return nil
	}
	delete(m.positions, symbol)

	var realized float64
	if pos.Direction == "LONG" {
		realized = (exitPrice - pos.EntryPrice) * pos.Size
	} else {
		realized = (pos.EntryPrice - exitPrice) * pos.Size
	}

	pnlPct := 0.0
	if pos.MarginUsed > 0 {
		pnlPct = realized / pos.MarginUsed * 100
	}

	m.currentEquity += realized
	if m.currentEquity > m.peakEquity {
		m.peakEquity = m.currentEquity
	}
	m.dailyPnL += realized
	m.totalPnL = m.currentEquity - m.initialEquity

	record := TradeRecord{
		Symbol:         symbol,
		Direction:      pos.Direction,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      exitPrice,
		Size:           pos.Size,
		RealizedPnL:    realized,
		RealizedPnLPct: pnlPct,
		HoldTime:       time.Since(pos.OpenedAt),
		ExitReason:     reason,
		ClosedAt:       time.Now(),
	}
	m.history = append(m.history, record)
	return &record
}

// OpenPositionCount returns the number of tracked positions.
func (m *Manager) OpenPositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// DailyLossBreached reports whether the daily loss limit is hit.
func (m *Manager) DailyLossBreached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyTrackingLocked()
	dailyLossPct := (m.currentEquity - m.dailyStartingEquity) / m.dailyStartingEquity
	return dailyLossPct < -MaxDailyLoss
}

// DrawdownBreached reports whether the drawdown kill threshold is hit.
func (m *Manager) DrawdownBreached() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	drawdown := (m.peakEquity - m.currentEquity) / m.peakEquity
	return drawdown > MaxDrawdown
}

// UsedMargin returns the sum of margin held by open positions.
func (m *Manager) UsedMargin() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedMarginLocked()
}

func (m *Manager) usedMarginLocked() float64 {
	total := 0.0
	for _, p := range m.positions {
		total += p.MarginUsed
	}
	return total
}

// GetPortfolioRisk returns the portfolio risk snapshot.
func (m *Manager) GetPortfolioRisk() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyTrackingLocked()

	usedMargin := m.usedMarginLocked()
	marginRatio := 0.0
	if m.currentEquity > 0 {
		marginRatio = usedMargin / m.currentEquity
	}

	dailyPnLPct := 0.0
	if m.dailyStartingEquity > 0 {
		dailyPnLPct = (m.currentEquity - m.dailyStartingEquity) / m.dailyStartingEquity * 100
	}

	drawdown := 0.0
	if m.peakEquity > 0 {
		drawdown = (m.peakEquity - m.currentEquity) / m.peakEquity * 100
	}

	canTrade := true
	var alerts []string
	if dailyPnLPct < -MaxDailyLoss*100 {
		canTrade = false
		alerts = append(alerts, fmt.Sprintf("daily loss limit: %.2f%%", dailyPnLPct))
	}
	if drawdown > MaxDrawdown*100 {
		canTrade = false
		alerts = append(alerts, fmt.Sprintf("max drawdown: %.2f%%", drawdown))
	}
	if marginRatio > MaxExposure {
		alerts = append(alerts, fmt.Sprintf("high exposure: %.2f%%", marginRatio*100))
	}

	return map[string]interface{}{
		"total_equity":       m.currentEquity,
		"available_equity":   m.currentEquity - usedMargin,
		"used_margin":        usedMargin,
		"margin_ratio":       marginRatio,
		"exposure_pct":       marginRatio * 100,
		"daily_pnl":          m.dailyPnL,
		"daily_pnl_pct":      dailyPnLPct,
		"open_positions":     len(m.positions),
		"max_positions":      MaxConcurrentPositions,
		"drawdown_from_peak": drawdown,
		"can_trade":          canTrade,
		"risk_alerts":        alerts,
	}
}

// TradeHistory returns a copy of the realized trade records.
func (m *Manager) TradeHistory() []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TradeRecord, len(m.history))
	copy(out, m.history)
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
