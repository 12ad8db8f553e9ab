package events

import (
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
		return Event{}
	}
}

func TestSubscribeByType(t *testing.T) {
	bus := NewEventBus()
	opened := make(chan Event, 1)
	other := make(chan Event, 1)

	bus.Subscribe(EventTradeOpened, func(e Event) { opened <- e })
	bus.Subscribe(EventTradeClosed, func(e Event) { other <- e })

	bus.PublishTradeOpened("cmt_btcusdt", "LONG", "SENTINEL", 50000, 0.01)

	e := waitEvent(t, opened)
	if e.Type != EventTradeOpened {
		t.Errorf("type = %s, want %s", e.Type, EventTradeOpened)
	}
	if e.Data["symbol"] != "cmt_btcusdt" || e.Data["side"] != "LONG" {
		t.Errorf("data = %v", e.Data)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be stamped on publish")
	}

	select {
	case e := <-other:
		t.Errorf("trade-closed subscriber received %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	all := make(chan Event, 4)
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishTradeClosed("cmt_btcusdt", "Stop loss hit", 49000, -10, false)
	bus.PublishSignal("cmt_ethusdt", "SHORT", "breakout", 72, 3400)
	bus.PublishModeChanged("IDLE", "SENTINEL")
	bus.PublishCircuitBreaker("open", "tripped", "consecutive losses: 5")

	seen := map[EventType]bool{}
	for i := 0; i < 4; i++ {
		e := waitEvent(t, all)
		seen[e.Type] = true
	}
	for _, want := range []EventType{EventTradeClosed, EventSignalGenerated, EventTradingModeChanged, EventCircuitBreaker} {
		if !seen[want] {
			t.Errorf("missing event type %s", want)
		}
	}
}

func TestPublishTradeClosedPayload(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EventTradeClosed, func(e Event) { ch <- e })

	bus.PublishTradeClosed("cmt_solusdt", "Take profit hit", 215.5, 12.5, true)
	e := waitEvent(t, ch)

	if e.Data["exit_reason"] != "Take profit hit" {
		t.Errorf("exit_reason = %v", e.Data["exit_reason"])
	}
	if e.Data["pnl"] != 12.5 {
		t.Errorf("pnl = %v", e.Data["pnl"])
	}
	if e.Data["externally_closed"] != true {
		t.Errorf("externally_closed = %v", e.Data["externally_closed"])
	}
}

func TestPublishError(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { ch <- e })

	bus.PublishError("orchestrator", "scan failed", nil)
	e := waitEvent(t, ch)
	if e.Data["source"] != "orchestrator" {
		t.Errorf("source = %v", e.Data["source"])
	}
	if _, present := e.Data["error"]; present {
		t.Error("nil error should not add an error field")
	}
}
