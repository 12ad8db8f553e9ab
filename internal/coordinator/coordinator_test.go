package coordinator

import (
	"context"
	"testing"
	"time"

	"weex-trading-bot/internal/advisor"
	"weex-trading-bot/internal/circuit"
	"weex-trading-bot/internal/events"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/ml"
	"weex-trading-bot/internal/orchestrator"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/sentinel"
	"weex-trading-bot/internal/signal"
	"weex-trading-bot/internal/strategy"
)

func newTestCoordinator(bus *events.EventBus) *Coordinator {
	client := exchange.NewMockClient(10000)
	riskMgr := risk.NewManager(10000)
	breaker := circuit.NewBreaker(nil)
	safetyLayer := safety.NewLayer(riskMgr, breaker, []string{"cmt_btcusdt"})
	positions := position.NewManager(client, riskMgr, nil)
	executor := execution.NewEngine(client)

	// RiskTolerance 0 keeps the confidence gate at 90 so no trade fires
	// from mock data while the loops spin.
	loop := sentinel.New(sentinel.Config{Symbol: "cmt_btcusdt", Leverage: 20},
		client, nil,
		advisor.New(nil), ml.NewAnalyst(), sentiment.NewAnalyzer(&sentiment.Config{Enabled: false}),
		strategy.NewEvaluator(), riskMgr, safetyLayer, executor, positions)

	orch := orchestrator.New(orchestrator.Config{Leverage: 20},
		client, signal.NewEngine(), riskMgr, safetyLayer, executor, positions)

	return New(loop, orch, bus)
}

func TestModeTransitions(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	if c.Mode() != ModeIdle {
		t.Fatalf("initial mode = %s, want IDLE", c.Mode())
	}

	if err := c.StartSentinel(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Mode() != ModeSentinel {
		t.Fatalf("mode = %s, want SENTINEL", c.Mode())
	}

	if err := c.StartSentinel(ctx); err == nil {
		t.Error("restarting sentinel mode should fail")
	}

	c.StopSentinel()
	if c.Mode() != ModeIdle {
		t.Fatalf("mode = %s, want IDLE after stop", c.Mode())
	}
	c.StopSentinel() // idempotent
}

func TestMutualExclusion(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	if err := c.StartInstitutional(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.StopAll()

	err := c.StartSentinel(ctx)
	if err == nil {
		t.Fatal("sentinel mode must be refused while institutional mode runs")
	}
	want := "cannot start sentinel mode while institutional mode is active"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
	if c.Mode() != ModeInstitutional {
		t.Errorf("mode = %s, want INSTITUTIONAL", c.Mode())
	}
}

func TestInstitutionalHandover(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	if err := c.StartSentinel(ctx); err != nil {
		t.Fatal(err)
	}
	// Institutional takeover stops the sentinel loop first.
	if err := c.StartInstitutional(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.StopAll()

	if c.Mode() != ModeInstitutional {
		t.Fatalf("mode = %s, want INSTITUTIONAL after handover", c.Mode())
	}
	status := c.Status()
	sentStatus := status["sentinel"].(map[string]interface{})
	if sentStatus["running"] != false {
		t.Error("sentinel loop should be stopped after handover")
	}
}

func TestStopAll(t *testing.T) {
	c := newTestCoordinator(nil)
	if err := c.StartInstitutional(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.StopAll()
	if c.Mode() != ModeIdle {
		t.Errorf("mode = %s, want IDLE", c.Mode())
	}
	c.StopAll() // no-op when idle
}

func TestModeChangeEvents(t *testing.T) {
	bus := events.NewEventBus()
	ch := make(chan events.Event, 4)
	bus.Subscribe(events.EventTradingModeChanged, func(e events.Event) { ch <- e })

	c := newTestCoordinator(bus)
	if err := c.StartSentinel(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.StopAll()

	select {
	case e := <-ch:
		if e.Data["from"] != ModeIdle || e.Data["to"] != ModeSentinel {
			t.Errorf("transition payload = %v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("mode change event never delivered")
	}
}

func TestStatusSnapshot(t *testing.T) {
	c := newTestCoordinator(nil)
	status := c.Status()

	if status["mode"] != ModeIdle {
		t.Errorf("mode = %v, want IDLE", status["mode"])
	}
	if _, ok := status["institutional"].(map[string]interface{}); !ok {
		t.Error("status should embed the institutional loop snapshot")
	}
}
