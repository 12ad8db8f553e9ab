// Package orchestrator runs the multi-symbol institutional loop: scan the
// universe, score opportunities, and deploy the single best one through the
// risk and safety gates.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
	"weex-trading-bot/internal/signal"
)

const (
	cycleInterval = 30 * time.Second
	candleLimit   = 200
	granularity   = "5m"
)

// Config holds the orchestrator parameters.
type Config struct {
	Symbols  []string
	Leverage int
}

// Orchestrator is the institutional trading loop.
type Orchestrator struct {
	config    Config
	client    exchange.API
	engine    *signal.Engine
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
	lastScan   []signal.AssetScore
}

// New wires the orchestrator.
func New(cfg Config, client exchange.API, engine *signal.Engine, riskMgr *risk.Manager,
	safetyLayer *safety.Layer, executor *execution.Engine, positions *position.Manager) *Orchestrator {
	if cfg.Leverage <= 0 {
		cfg.Leverage = risk.MaxLeverage
	}
	return &Orchestrator{
		config:    cfg,
		client:    client,
		engine:    engine,
		riskMgr:   riskMgr,
		safety:    safetyLayer,
		executor:  executor,
		positions: positions,
		logger:    logging.WithComponent("orchestrator"),
	}
}

// Start launches the 30 second cycle. Returns an error when already
// running.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.startedAt = time.Now()

	go o.run(ctx)
	o.logger.Info("Institutional orchestrator started", "symbols", len(o.config.Symbols))
	return nil
}

// Stop halts the loop. Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.cancel()
	o.running = false
	o.logger.Info("Institutional orchestrator stopped")
}

// IsRunning reports whether the loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status returns the loop status snapshot.
func (o *Orchestrator) Status() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := map[string]interface{}{
		"running": o.running,
		"symbols": o.config.Symbols,
		"cycles":  o.cycleCount,
	}
	if o.running {
		status["uptime"] = time.Since(o.startedAt).String()
	}
	return status
}

// LastScan returns the scores from the most recent scan.
func (o *Orchestrator) LastScan() []signal.AssetScore {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]signal.AssetScore, len(o.lastScan))
	copy(out, o.lastScan)
	return out
}

func (o *Orchestrator) run(ctx context.Context) {
	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	o.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.cycle(ctx)
		}
	}
}

// cycle manages open positions when any exist, otherwise scans the universe
// for the best opportunity.
func (o *Orchestrator) cycle(ctx context.Context) {
	o.mu.Lock()
	o.cycleCount++
	o.mu.Unlock()

	if o.positions.Count() > 0 {
		o.managePositions(ctx)
		return
	}

	// Candidates come back best-first. When the risk or safety gate blocks
	// one, the next is tried instead of idling the whole cycle.
	for _, candidate := range o.scan(ctx) {
		if o.deploy(ctx, candidate) {
			return
		}
	}
}

// managePositions refreshes marks outside the monitor cadence so exit
// checks see fresh prices every cycle.
func (o *Orchestrator) managePositions(ctx context.Context) {
	for _, p := range o.positions.List() {
		live, err := o.client.GetPosition(ctx, p.Symbol)
		if err != nil {
			o.logger.Warn("Position refresh failed", "symbol", p.Symbol, "error", err)
			continue
		}
		if live != nil && live.MarkPrice > 0 {
			o.positions.UpdatePrice(p.Symbol, live.MarkPrice)
		}
		if reason := o.positions.CheckExitConditions(p.Symbol); reason != "" {
			if _, err := o.positions.Close(ctx, p.Symbol, reason); err != nil {
				o.logger.Error("Position close failed", "symbol", p.Symbol, "error", err)
			}
		}
	}
}

// scan scores every enabled symbol and returns the tradeable opportunities
// above the composite-score floor, best first.
func (o *Orchestrator) scan(ctx context.Context) []signal.AssetScore {
	var scores []signal.AssetScore

	for _, symbol := range o.config.Symbols {
		candles, err := o.client.GetCandles(ctx, symbol, granularity, candleLimit)
		if err != nil {
			o.logger.Warn("Candle fetch failed during scan", "symbol", symbol, "error", err)
			continue
		}

		sig := o.engine.Generate(symbol, candles)
		if sig.Side == signal.SideNeutral || sig.Strength <= 0 {
			continue
		}

		score := signal.ScoreAsset(sig)
		if score.Score < signal.MinSignalStrength {
			continue
		}
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	o.mu.Lock()
	o.lastScan = scores
	o.mu.Unlock()

	if len(scores) > 0 {
		best := scores[0]
		o.logger.Info("Best opportunity selected",
			"symbol", best.Symbol, "side", best.Side, "score", best.Score,
			"kind", best.Signal.Kind, "regime", best.Regime)
	}
	return scores
}

// deploy sizes, validates and executes the selected opportunity. Returns
// false when a gate blocked the trade so the caller can try the next
// candidate.
func (o *Orchestrator) deploy(ctx context.Context, score signal.AssetScore) bool {
	sig := score.Signal

	size, margin, ok := o.riskMgr.CalculatePositionSize(sig.EntryPrice, sig.StopLoss, sig.ATR, sig.Symbol)
	if !ok || size <= 0 {
		o.logger.Warn("Risk manager refused position", "symbol", sig.Symbol)
		return false
	}

	verdict := o.safety.ValidateTrade(safety.TradeRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Size:       size,
		EntryPrice: sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Leverage:   o.config.Leverage,
	}, o.riskMgr.Equity()-o.riskMgr.UsedMargin())
	if !verdict.Approved {
		o.logger.Warn("Safety layer rejected trade", "symbol", sig.Symbol, "reason", verdict.Reason)
		return false
	}

	side := "buy"
	typeCode := exchange.TypeOpenLong
	if sig.Side == signal.SideShort {
		side = "sell"
		typeCode = exchange.TypeOpenShort
	}

	if err := o.client.SetLeverage(ctx, sig.Symbol, o.config.Leverage); err != nil {
		o.logger.Warn("Leverage update failed", "symbol", sig.Symbol, "error", err)
	}

	result, err := o.executor.ExecuteOrder(ctx, execution.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     side,
		Size:     size,
		TypeCode: typeCode,
		Source:   position.SourceInstitutional,
		Reason:   fmt.Sprintf("%s signal, score %.1f", sig.Kind, score.Score),
	})
	if err != nil {
		o.logger.Error("Order execution failed", "symbol", sig.Symbol, "error", err)
		return false
	}

	o.riskMgr.RegisterOpen(sig.Symbol, sig.Side, sig.EntryPrice, size, margin)
	o.positions.Open(position.ManagedPosition{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Size:       size,
		EntryPrice: sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		ATR:        sig.ATR,
		Leverage:   o.config.Leverage,
		Source:     position.SourceInstitutional,
	})

	o.logger.Info("Institutional trade executed",
		"symbol", sig.Symbol, "side", sig.Side, "size", size,
		"order_id", result.OrderID, "score", score.Score)
	return true
}

// Shutdown stops the loop and closes all open positions.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.Stop()
	o.positions.CloseAll(ctx, position.ExitShutdown)
}
