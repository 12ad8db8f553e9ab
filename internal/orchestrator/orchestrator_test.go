package orchestrator

import (
	"context"
	"testing"

	"weex-trading-bot/internal/circuit"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
	"weex-trading-bot/internal/signal"
)

func newTestOrchestrator(symbols []string, client exchange.API) (*Orchestrator, *position.Manager) {
	riskMgr := risk.NewManager(10000)
	breaker := circuit.NewBreaker(nil)
	safetyLayer := safety.NewLayer(riskMgr, breaker, symbols)
	positions := position.NewManager(client, riskMgr, nil)

	o := New(Config{Symbols: symbols, Leverage: 20},
		client, signal.NewEngine(), riskMgr, safetyLayer,
		execution.NewEngine(client), positions)
	return o, positions
}

func TestStartStop(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, _ := newTestOrchestrator(nil, client)

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !o.IsRunning() {
		t.Fatal("orchestrator should be running")
	}
	if err := o.Start(context.Background()); err == nil {
		t.Error("double start should fail")
	}

	o.Stop()
	if o.IsRunning() {
		t.Error("orchestrator should be stopped")
	}
	o.Stop() // idempotent
}

func TestScanEmptyUniverse(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, _ := newTestOrchestrator(nil, client)

	if scores := o.scan(context.Background()); len(scores) != 0 {
		t.Errorf("empty universe scan = %v, want no opportunities", scores)
	}
	if len(o.LastScan()) != 0 {
		t.Errorf("last scan = %v, want empty", o.LastScan())
	}
}

func TestScanSkipsNeutralSignals(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, _ := newTestOrchestrator([]string{"cmt_btcusdt"}, client)

	// A flat seeded series generates no directional signal.
	flat := make([]exchange.Candle, 200)
	for i := range flat {
		flat[i] = exchange.Candle{
			OpenTime: int64(i) * 300000,
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	client.SetCandles("cmt_btcusdt", flat)

	if scores := o.scan(context.Background()); len(scores) != 0 {
		t.Errorf("flat market scan = %v, want no opportunities", scores)
	}
}

func testCandidate(symbol string) signal.AssetScore {
	sig := signal.Result{
		Symbol:     symbol,
		Side:       signal.SideLong,
		Kind:       "breakout",
		Strength:   60,
		EntryPrice: 100,
		StopLoss:   97,
		TakeProfit: 106,
		ATR:        2,
	}
	return signal.AssetScore{
		Symbol:     symbol,
		Score:      55,
		Side:       sig.Side,
		Confidence: sig.Strength,
		Signal:     sig,
	}
}

func TestDeployBlockedCandidateReturnsFalse(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, positions := newTestOrchestrator([]string{"cmt_btcusdt"}, client)

	// cmt_dogeusdt is outside the enabled universe, so the safety layer
	// rejects it and the caller can move to the next candidate.
	if o.deploy(context.Background(), testCandidate("cmt_dogeusdt")) {
		t.Fatal("deploy should report a blocked candidate")
	}
	if positions.Count() != 0 {
		t.Errorf("positions = %d, want 0 after a blocked deploy", positions.Count())
	}
}

func TestCycleFallsThroughBlockedCandidates(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, positions := newTestOrchestrator([]string{"cmt_btcusdt"}, client)

	candidates := []signal.AssetScore{
		testCandidate("cmt_dogeusdt"), // blocked by the safety layer
		testCandidate("cmt_btcusdt"),
	}
	for _, c := range candidates {
		if o.deploy(context.Background(), c) {
			break
		}
	}

	if positions.Count() != 1 {
		t.Fatalf("positions = %d, want the second candidate deployed", positions.Count())
	}
	if _, ok := positions.Get("cmt_btcusdt"); !ok {
		t.Error("deployed position should be the allowed symbol")
	}
}

func TestCycleManagesOpenPositionsFirst(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, positions := newTestOrchestrator([]string{"cmt_btcusdt"}, client)

	client.SetPosition(exchange.Position{
		Symbol: "cmt_btcusdt", Side: "LONG", Size: 0.5, MarkPrice: 104,
	})
	positions.Open(position.ManagedPosition{
		Symbol:     "cmt_btcusdt",
		Side:       "LONG",
		Size:       0.5,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 110,
		ATR:        1,
		Leverage:   20,
		Source:     position.SourceInstitutional,
	})

	o.cycle(context.Background())

	// The mark refresh lands and no exit fires at 104.
	p, ok := positions.Get("cmt_btcusdt")
	if !ok {
		t.Fatal("position should survive the manage cycle")
	}
	if p.CurrentPrice != 104 {
		t.Errorf("current price = %v, want refreshed 104", p.CurrentPrice)
	}
}

func TestShutdownClosesPositions(t *testing.T) {
	client := exchange.NewMockClient(10000)
	o, positions := newTestOrchestrator([]string{"cmt_btcusdt"}, client)

	client.SetPosition(exchange.Position{Symbol: "cmt_btcusdt", Side: "LONG", Size: 0.5})
	positions.Open(position.ManagedPosition{
		Symbol:     "cmt_btcusdt",
		Side:       "LONG",
		Size:       0.5,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 110,
		ATR:        1,
		Leverage:   20,
		Source:     position.SourceInstitutional,
	})

	o.Shutdown(context.Background())

	if o.IsRunning() {
		t.Error("shutdown should stop the loop")
	}
	if positions.Count() != 0 {
		t.Errorf("positions = %d, want 0 after shutdown", positions.Count())
	}
}
