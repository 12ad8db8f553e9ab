// Package sentinel runs the single-symbol advised trading loop: each cycle
// it rebuilds the market picture, consults the rule strategies and the LLM
// advisor, cross-checks the ML analyst, and executes through the safety
// layer.
package sentinel

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"weex-trading-bot/internal/advisor"
	"weex-trading-bot/internal/analysis"
	"weex-trading-bot/internal/database"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/ml"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/strategy"
)

const (
	tickInterval = 30 * time.Second
	candleLimit  = 500
	granularity  = "5m"
)

// Decision provenance labels.
const (
	ProvenanceRule            = "Rule_Triggered"
	ProvenanceAdvisorOK       = "Advisor_OK"
	ProvenanceAdvisorFallback = "Advisor_Fallback"
	ProvenanceAdvisorError    = "Advisor_Error"
)

// Store is the persistence surface the loop needs.
type Store interface {
	InsertMarketLog(ctx context.Context, entry *database.MarketLog) error
	InsertAIAnalysis(ctx context.Context, entry *database.AIAnalysis) error
	GetActiveStrategies(ctx context.Context) ([]*database.Strategy, error)
	GetTradeSettings(ctx context.Context) (*database.TradeSettings, error)
}

// Config holds the loop parameters.
type Config struct {
	Symbol        string
	Leverage      int
	RiskTolerance int // subtracted from the 90 confidence gate
}

// Loop is the sentinel trading loop.
type Loop struct {
	config    Config
	client    exchange.API
	store     Store
	advisor   *advisor.Advisor
	analyst   *ml.Analyst
	sentiment *sentiment.Analyzer
	evaluator *strategy.Evaluator
	riskMgr   *risk.Manager
	safety    *safety.Layer
	executor  *execution.Engine
	positions *position.Manager
	logger    *logging.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	cycleCount int
	startedAt  time.Time
}

// New wires the sentinel loop.
func New(cfg Config, client exchange.API, store Store, adv *advisor.Advisor,
	analyst *ml.Analyst, sent *sentiment.Analyzer, eval *strategy.Evaluator,
	riskMgr *risk.Manager, safetyLayer *safety.Layer, executor *execution.Engine,
	positions *position.Manager) *Loop {
	if cfg.Leverage <= 0 {
		cfg.Leverage = risk.MaxLeverage
	}
	return &Loop{
		config:    cfg,
		client:    client,
		store:     store,
		advisor:   adv,
		analyst:   analyst,
		sentiment: sent,
		evaluator: eval,
		riskMgr:   riskMgr,
		safety:    safetyLayer,
		executor:  executor,
		positions: positions,
		logger:    logging.WithComponent("sentinel"),
	}
}

// Start launches the 30 second loop. Returns an error when already running.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("sentinel loop already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.startedAt = time.Now()

	go l.run(ctx)
	l.logger.Info("Sentinel loop started", "symbol", l.config.Symbol)
	return nil
}

// Stop halts the loop. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.cancel()
	l.running = false
	l.logger.Info("Sentinel loop stopped", "symbol", l.config.Symbol)
}

// IsRunning reports whether the loop is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Status returns the loop status snapshot.
func (l *Loop) Status() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := map[string]interface{}{
		"running": l.running,
		"symbol":  l.config.Symbol,
		"cycles":  l.cycleCount,
	}
	if l.running {
		status["uptime"] = time.Since(l.startedAt).String()
	}
	return status
}

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

// cycle is one full analyze-decide-execute pass. The operator settings row
// is re-read every cycle so symbol, risk tolerance and the auto-trading
// switch take effect without a restart.
func (l *Loop) cycle(ctx context.Context) {
	l.mu.Lock()
	l.cycleCount++
	l.mu.Unlock()

	symbol, riskTolerance, autoTrading := l.currentSettings(ctx)

	candles, err := l.client.GetCandles(ctx, symbol, granularity, candleLimit)
	if err != nil {
		l.logger.Error("Candle fetch failed", "symbol", symbol, "error", err)
		return
	}

	snap, err := analysis.AnalyzeMarketStructure(symbol, candles)
	if err != nil {
		l.logger.Warn("Structure analysis skipped", "symbol", symbol, "error", err)
		return
	}

	prediction := l.analyst.TrainAndPredict(candles)
	sent := l.sentiment.AnalyzeSymbol(ctx, symbol)

	decision, confidence, reason, provenance := l.decide(ctx, symbol, snap, sent)

	l.recordAnalysis(ctx, symbol, decision, confidence, reason, provenance)

	// Execution gate.
	threshold := float64(90 - riskTolerance)
	if decision == advisor.DecisionWait || confidence < threshold {
		l.logMarket(ctx, snap, "Monitoring", decision, confidence, reason)
		return
	}

	if !autoTrading {
		l.logMarket(ctx, snap, "AutoTrade-Off", advisor.DecisionWait, confidence,
			fmt.Sprintf("%s signal not executed: auto-trading disabled", decision))
		return
	}

	// RSI guard against chasing exhausted moves.
	if decision == advisor.DecisionBuy && snap.RSI > 70 {
		l.logMarket(ctx, snap, "RSI-Guard", advisor.DecisionWait, confidence,
			fmt.Sprintf("BUY blocked: RSI %.2f overbought", snap.RSI))
		return
	}
	if decision == advisor.DecisionSell && snap.RSI < 30 {
		l.logMarket(ctx, snap, "RSI-Guard", advisor.DecisionWait, confidence,
			fmt.Sprintf("SELL blocked: RSI %.2f oversold", snap.RSI))
		return
	}

	// ML confluence check.
	if conflict(decision, prediction.Direction) {
		msg := fmt.Sprintf("Confluence check failed: Advisor %s vs ML %s. Waiting for alignment.",
			decision, prediction.Direction)
		l.logMarket(ctx, snap, "Confluence-Check", "WAIT-CONFLICT", confidence, msg)
		l.logger.Info("Confluence conflict", "symbol", symbol,
			"advisor", decision, "ml", string(prediction.Direction))
		return
	}

	if l.positions.Has(symbol) {
		l.logMarket(ctx, snap, "Position-Open", advisor.DecisionWait, confidence,
			"Position already open, skipping entry")
		return
	}

	l.execute(ctx, symbol, decision, confidence, reason, snap)
}

// decide produces the cycle decision: first triggered rule strategy wins,
// otherwise the LLM advisor (or its fallback) is consulted.
func (l *Loop) decide(ctx context.Context, symbol string, snap *analysis.Snapshot, sent sentiment.Result) (string, float64, string, string) {
	if rules := l.activeRules(ctx); len(rules) > 0 {
		env := strategy.Env{
			RSI:         snap.RSI,
			Price:       snap.Price,
			EMA20:       snap.EMA20,
			Volatility:  snap.Volatility,
			Trend:       snap.Trend,
			VolumeSpike: snap.VolumeSpike,
		}
		if triggered := l.evaluator.EvaluateAll(rules, env); triggered != nil {
			return triggered.Action, triggered.Confidence, triggered.Reason, ProvenanceRule
		}
	}

	advice := l.advisor.Advise(ctx, symbol, snap, sent)
	provenance := ProvenanceAdvisorOK
	switch advice.Status {
	case advisor.StatusFallback:
		provenance = ProvenanceAdvisorFallback
	case advisor.StatusError:
		provenance = ProvenanceAdvisorError
	}
	return advice.Decision, advice.Confidence, advice.Reasoning, provenance
}

// currentSettings reads the operator settings row. Without a store, or when
// the read fails, the static config applies and auto-trading stays on (the
// loop only runs once the operator has started it).
func (l *Loop) currentSettings(ctx context.Context) (string, int, bool) {
	if l.store == nil {
		return l.config.Symbol, l.config.RiskTolerance, true
	}
	settings, err := l.store.GetTradeSettings(ctx)
	if err != nil {
		l.logger.Warn("Trade settings read failed, using static config", "error", err)
		return l.config.Symbol, l.config.RiskTolerance, true
	}
	symbol := settings.CurrentSymbol
	if symbol == "" {
		symbol = l.config.Symbol
	}
	return symbol, settings.RiskTolerance, settings.AutoTrading
}

func (l *Loop) activeRules(ctx context.Context) []strategy.RuleStrategy {
	if l.store == nil {
		return nil
	}
	rows, err := l.store.GetActiveStrategies(ctx)
	if err != nil {
		l.logger.Warn("Could not load rule strategies", "error", err)
		return nil
	}
	rules := make([]strategy.RuleStrategy, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, strategy.RuleStrategy{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Logic:       row.Logic,
			Action:      row.Action,
			IsActive:    row.IsActive,
		})
	}
	return rules
}

// execute sizes, validates and places the order, then hands the position to
// the manager.
func (l *Loop) execute(ctx context.Context, symbol, decision string, confidence float64, reason string, snap *analysis.Snapshot) {
	size, ok := l.positionSize(ctx, snap)
	if !ok {
		return
	}

	direction := "LONG"
	side := "buy"
	typeCode := exchange.TypeOpenLong
	if decision == advisor.DecisionSell {
		direction = "SHORT"
		side = "sell"
		typeCode = exchange.TypeOpenShort
	}

	atr := snap.Volatility
	stopLoss := snap.Price - 1.5*atr
	takeProfit := snap.Price + 2.0*atr
	if direction == "SHORT" {
		stopLoss = snap.Price + 1.5*atr
		takeProfit = snap.Price - 2.0*atr
	}

	verdict := l.safety.ValidateTrade(safety.TradeRequest{
		Symbol:     symbol,
		Side:       direction,
		Size:       size,
		EntryPrice: snap.Price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Leverage:   l.config.Leverage,
	}, l.availableMargin())
	if !verdict.Approved {
		l.logMarket(ctx, snap, "Safety-Reject", advisor.DecisionWait, confidence, verdict.Reason)
		return
	}

	if err := l.client.SetLeverage(ctx, symbol, l.config.Leverage); err != nil {
		l.logger.Warn("Leverage update failed", "symbol", symbol, "error", err)
	}

	result, err := l.executor.ExecuteOrder(ctx, execution.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Size:     size,
		TypeCode: typeCode,
		Source:   position.SourceSentinel,
		Reason:   reason,
	})
	if err != nil {
		l.logger.Error("Order execution failed", "symbol", symbol, "error", err)
		l.logMarket(ctx, snap, "Execution-Failed", decision, confidence, err.Error())
		return
	}

	margin := size * snap.Price / float64(l.config.Leverage)
	l.riskMgr.RegisterOpen(symbol, direction, snap.Price, size, margin)
	l.positions.Open(position.ManagedPosition{
		Symbol:     symbol,
		Side:       direction,
		Size:       size,
		EntryPrice: snap.Price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		ATR:        atr,
		Leverage:   l.config.Leverage,
		Source:     position.SourceSentinel,
	})

	l.logMarket(ctx, snap, "Trade-Executed", decision, confidence,
		fmt.Sprintf("%s %s size %.4f order %s", decision, symbol, size, result.OrderID))
	l.logger.Info("Sentinel trade executed",
		"symbol", symbol, "decision", decision, "size", size, "order_id", result.OrderID)
}

// positionSize derives the order size from the account balance:
// 3% of balance clamped to [5, 30] USDT of notional, rounded to 4 decimals,
// floored at 0.001 contracts.
func (l *Loop) positionSize(ctx context.Context, snap *analysis.Snapshot) (float64, bool) {
	assets, err := l.client.GetAccountAssets(ctx)
	if err != nil {
		l.logger.Warn("Balance fetch failed, using fallback size", "error", err)
		return 0.01, true
	}

	balance := assets.Available
	if balance < 1 {
		l.logMarket(ctx, snap, "Balance-Check", "WAIT-INSUFFICIENT-BALANCE", 0,
			fmt.Sprintf("Available balance %.2f below minimum", balance))
		return 0, false
	}

	notional := clamp(0.03*balance, 5, 30)
	size := round4(notional / snap.Price)
	if size < 0.001 {
		size = 0.001
	}
	return size, true
}

func (l *Loop) availableMargin() float64 {
	return l.riskMgr.Equity() - l.riskMgr.UsedMargin()
}

// conflict reports an advisor/ML disagreement worth waiting out.
func conflict(decision, direction string) bool {
	if decision == advisor.DecisionBuy && direction == ml.DirectionDown {
		return true
	}
	if decision == advisor.DecisionSell && direction == ml.DirectionUp {
		return true
	}
	return false
}

func (l *Loop) logMarket(ctx context.Context, snap *analysis.Snapshot, structure, decision string, confidence float64, reason string) {
	if l.store == nil {
		return
	}
	entry := &database.MarketLog{
		Symbol:     snap.Symbol,
		Trend:      snap.Trend,
		Structure:  structure,
		Price:      snap.Price,
		RSI:        snap.RSI,
		Decision:   decision,
		Confidence: confidence,
		Reason:     reason,
	}
	if err := l.store.InsertMarketLog(ctx, entry); err != nil {
		l.logger.Warn("Market log insert failed", "error", err)
	}
}

func (l *Loop) recordAnalysis(ctx context.Context, symbol, decision string, confidence float64, reason, provenance string) {
	if l.store == nil {
		return
	}
	status := "OK"
	if strings.HasPrefix(provenance, "Advisor_") {
		status = strings.TrimPrefix(provenance, "Advisor_")
	}
	entry := &database.AIAnalysis{
		Symbol:     symbol,
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reason,
		Source:     provenance,
		Status:     status,
	}
	if err := l.store.InsertAIAnalysis(ctx, entry); err != nil {
		l.logger.Warn("AI analysis insert failed", "error", err)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
