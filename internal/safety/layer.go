// Package safety is the final pre-trade gate. Every order passes an ordered
// battery of checks; a critical failure aborts the trade, a warning is
// logged and the trade proceeds.
package safety

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/risk"
)

// Check severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

// minOrderSizes is the per-symbol minimum contract size accepted by the
// exchange.
var minOrderSizes = map[string]float64{
	"cmt_btcusdt":  0.001,
	"cmt_ethusdt":  0.01,
	"cmt_solusdt":  0.1,
	"cmt_dogeusdt": 10.0,
	"cmt_xrpusdt":  1.0,
	"cmt_adausdt":  1.0,
	"cmt_bnbusdt":  0.01,
	"cmt_ltcusdt":  0.01,
}

// liquidationBuffer approximates the maintenance margin cushion.
const liquidationBuffer = 0.9

// minLiquidationDistancePct is the minimum distance between entry and
// estimated liquidation price.
const minLiquidationDistancePct = 4.0

// CheckResult is the outcome of one safety check.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// TradeRequest describes the order to validate.
type TradeRequest struct {
	Symbol     string
	Side       string // LONG or SHORT
	Size       float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Leverage   int
}

// Verdict is the aggregate outcome of a validation run.
type Verdict struct {
	Approved bool          `json:"approved"`
	Reason   string        `json:"reason"`
	Results  []CheckResult `json:"results"`
}

// KillSwitch is any halt mechanism consulted as the final check.
type KillSwitch interface {
	CanTrade() (bool, string)
}

// Layer runs the ordered pre-trade checks.
type Layer struct {
	riskManager    *risk.Manager
	killSwitch     KillSwitch
	enabledSymbols map[string]bool
	logger         *logging.Logger

	mu               sync.Mutex
	totalValidations int
	totalRejections  int
	rejectionReasons map[string]int
}

// NewLayer creates a safety layer over the given risk manager and kill
// switch. killSwitch may be nil.
func NewLayer(riskManager *risk.Manager, killSwitch KillSwitch, enabledSymbols []string) *Layer {
	enabled := make(map[string]bool, len(enabledSymbols))
	for _, s := range enabledSymbols {
		enabled[s] = true
	}
	return &Layer{
		riskManager:      riskManager,
		killSwitch:       killSwitch,
		enabledSymbols:   enabled,
		logger:           logging.WithComponent("safety"),
		rejectionReasons: make(map[string]int),
	}
}

// ValidateTrade runs all checks in order. The first critical failure
// aborts the run; warnings are logged and execution continues.
func (l *Layer) ValidateTrade(req TradeRequest, availableMargin float64) Verdict {
	l.mu.Lock()
	l.totalValidations++
	l.mu.Unlock()

	checks := []func(TradeRequest, float64) CheckResult{
		l.checkSymbolValidity,
		l.checkMinimumOrderSize,
		l.checkPriceReasonableness,
		l.checkMarginAvailability,
		l.checkLiquidationDistance,
		l.checkDailyLossLimit,
		l.checkMaxDrawdown,
		l.checkExposureLimit,
		l.checkCorrelationConflict,
		l.checkKillSwitch,
	}

	verdict := Verdict{Approved: true}
	for _, check := range checks {
		result := check(req, availableMargin)
		verdict.Results = append(verdict.Results, result)

		if result.Passed {
			continue
		}
		if result.Severity == SeverityCritical {
			verdict.Approved = false
			verdict.Reason = fmt.Sprintf("%s: %s", result.Name, result.Message)
			l.recordRejection(result.Name)
			l.logger.Warn("Trade rejected by safety layer",
				"symbol", req.Symbol, "check", result.Name, "message", result.Message)
			return verdict
		}
		l.logger.Warn("Safety warning", "symbol", req.Symbol, "check", result.Name, "message", result.Message)
	}

	return verdict
}

func (l *Layer) recordRejection(check string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalRejections++
	l.rejectionReasons[check]++
}

func (l *Layer) checkSymbolValidity(req TradeRequest, _ float64) CheckResult {
	if !l.enabledSymbols[strings.ToLower(req.Symbol)] {
		return CheckResult{
			Name:     "SymbolValidity",
			Passed:   false,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("symbol %s is not in the enabled set", req.Symbol),
		}
	}
	return CheckResult{Name: "SymbolValidity", Passed: true, Severity: SeverityInfo, Message: "symbol enabled"}
}

func (l *Layer) checkMinimumOrderSize(req TradeRequest, _ float64) CheckResult {
	minSize, known := minOrderSizes[strings.ToLower(req.Symbol)]
	if !known {
		return CheckResult{
			Name:     "MinimumOrderSize",
			Passed:   false,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("no minimum size on record for %s", req.Symbol),
		}
	}
	if req.Size < minSize {
		return CheckResult{
			Name:     "MinimumOrderSize",
			Passed:   false,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("size %.6f below minimum %.6f", req.Size, minSize),
		}
	}
	return CheckResult{Name: "MinimumOrderSize", Passed: true, Severity: SeverityInfo,
		Message: fmt.Sprintf("size %.6f >= minimum %.6f", req.Size, minSize)}
}

func (l *Layer) checkPriceReasonableness(req TradeRequest, _ float64) CheckResult {
	name := "PriceReasonableness"

	if req.EntryPrice <= 0 {
		return CheckResult{Name: name, Passed: false, Severity: SeverityCritical, Message: "entry price must be positive"}
	}

	if req.Side == "LONG" && req.StopLoss >= req.EntryPrice {
		return CheckResult{Name: name, Passed: false, Severity: SeverityCritical,
			Message: fmt.Sprintf("long stop %.4f must be below entry %.4f", req.StopLoss, req.EntryPrice)}
	}
	if req.Side == "SHORT" && req.StopLoss <= req.EntryPrice {
		return CheckResult{Name: name, Passed: false, Severity: SeverityCritical,
			Message: fmt.Sprintf("short stop %.4f must be above entry %.4f", req.StopLoss, req.EntryPrice)}
	}

	riskDist := math.Abs(req.EntryPrice - req.StopLoss)
	rewardDist := math.Abs(req.TakeProfit - req.EntryPrice)
	if riskDist > 0 && rewardDist/riskDist < 1.0 {
		return CheckResult{Name: name, Passed: false, Severity: SeverityCritical,
			Message: fmt.Sprintf("risk:reward %.2f below 1.0", rewardDist/riskDist)}
	}

	return CheckResult{Name: name, Passed: true, Severity: SeverityInfo, Message: "levels consistent"}
}

func (l *Layer) checkMarginAvailability(req TradeRequest, availableMargin float64) CheckResult {
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = risk.MaxLeverage
	}
	required := req.Size * req.EntryPrice / float64(leverage)
	if required > availableMargin {
		return CheckResult{
			Name:     "MarginAvailability",
			Passed:   false,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("insufficient margin: required %.2f, available %.2f", required, availableMargin),
		}
	}
	return CheckResult{Name: "MarginAvailability", Passed: true, Severity: SeverityInfo,
		Message: fmt.Sprintf("margin ok: %.2f required, %.2f available", required, availableMargin)}
}

// checkLiquidationDistance estimates the liquidation price as
// entry*(1 -/+ 0.9/leverage) and requires it to be at least 4% away.
func (l *Layer) checkLiquidationDistance(req TradeRequest, _ float64) CheckResult {
	name := "LiquidationDistance"
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = risk.MaxLeverage
	}

	var liqPrice float64
	if req.Side == "LONG" {
		liqPrice = req.EntryPrice * (1 - liquidationBuffer/float64(leverage))
	} else {
		liqPrice = req.EntryPrice * (1 + liquidationBuffer/float64(leverage))
	}

	distancePct := math.Abs(req.EntryPrice-liqPrice) / req.EntryPrice * 100
	if distancePct < minLiquidationDistancePct {
		return CheckResult{Name: name, Passed: false, Severity: SeverityCritical,
			Message: fmt.Sprintf("liquidation only %.2f%% away (min %.1f%%)", distancePct, minLiquidationDistancePct)}
	}
	return CheckResult{Name: name, Passed: true, Severity: SeverityInfo,
		Message: fmt.Sprintf("liquidation %.2f%% away", distancePct)}
}

func (l *Layer) checkDailyLossLimit(_ TradeRequest, _ float64) CheckResult {
	if l.riskManager.DailyLossBreached() {
		return CheckResult{Name: "DailyLossLimit", Passed: false, Severity: SeverityCritical,
			Message: "daily loss limit reached, trading paused until next day"}
	}
	return CheckResult{Name: "DailyLossLimit", Passed: true, Severity: SeverityInfo, Message: "within daily loss budget"}
}

func (l *Layer) checkMaxDrawdown(_ TradeRequest, _ float64) CheckResult {
	if l.riskManager.DrawdownBreached() {
		return CheckResult{Name: "MaxDrawdown", Passed: false, Severity: SeverityCritical,
			Message: "drawdown kill threshold exceeded"}
	}
	return CheckResult{Name: "MaxDrawdown", Passed: true, Severity: SeverityInfo, Message: "drawdown acceptable"}
}

func (l *Layer) checkExposureLimit(req TradeRequest, _ float64) CheckResult {
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = risk.MaxLeverage
	}
	required := req.Size * req.EntryPrice / float64(leverage)

	equity := l.riskManager.Equity()
	if equity <= 0 {
		return CheckResult{Name: "ExposureLimit", Passed: false, Severity: SeverityCritical,
			Message: "no equity tracked"}
	}

	exposure := (l.riskManager.UsedMargin() + required) / equity
	if exposure > risk.MaxExposure {
		return CheckResult{Name: "ExposureLimit", Passed: false, Severity: SeverityCritical,
			Message: fmt.Sprintf("exposure %.1f%% would exceed %.0f%% cap", exposure*100, risk.MaxExposure*100)}
	}
	return CheckResult{Name: "ExposureLimit", Passed: true, Severity: SeverityInfo,
		Message: fmt.Sprintf("exposure %.1f%% within cap", exposure*100)}
}

func (l *Layer) checkCorrelationConflict(req TradeRequest, _ float64) CheckResult {
	ok, reason := l.riskManager.CanOpenPosition(req.Symbol)
	if !ok && strings.Contains(reason, "correlation group") {
		return CheckResult{Name: "CorrelationConflict", Passed: false, Severity: SeverityCritical, Message: reason}
	}
	return CheckResult{Name: "CorrelationConflict", Passed: true, Severity: SeverityInfo, Message: "no group conflict"}
}

func (l *Layer) checkKillSwitch(_ TradeRequest, _ float64) CheckResult {
	if l.killSwitch == nil {
		return CheckResult{Name: "KillSwitch", Passed: true, Severity: SeverityInfo, Message: "kill switch not configured"}
	}
	if ok, reason := l.killSwitch.CanTrade(); !ok {
		return CheckResult{Name: "KillSwitch", Passed: false, Severity: SeverityCritical, Message: reason}
	}
	return CheckResult{Name: "KillSwitch", Passed: true, Severity: SeverityInfo, Message: "trading allowed"}
}

// MinOrderSize returns the exchange minimum for a symbol, or 0 when
// unknown.
func MinOrderSize(symbol string) float64 {
	return minOrderSizes[strings.ToLower(symbol)]
}

// Stats returns validation counters.
func (l *Layer) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	reasons := make(map[string]int, len(l.rejectionReasons))
	for k, v := range l.rejectionReasons {
		reasons[k] = v
	}
	return map[string]interface{}{
		"total_validations": l.totalValidations,
		"total_rejections":  l.totalRejections,
		"rejection_reasons": reasons,
	}
}
