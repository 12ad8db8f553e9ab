// Package events is the in-process publish/subscribe bus feeding the
// websocket stream and any other listeners.
package events

import (
	"sync"
	"time"
)

// EventType labels the events the system emits.
type EventType string

const (
	EventTradeOpened        EventType = "TRADE_OPENED"
	EventTradeClosed        EventType = "TRADE_CLOSED"
	EventOrderPlaced        EventType = "ORDER_PLACED"
	EventOrderFailed        EventType = "ORDER_FAILED"
	EventSignalGenerated    EventType = "SIGNAL_GENERATED"
	EventPositionUpdate     EventType = "POSITION_UPDATE"
	EventTradingModeChanged EventType = "TRADING_MODE_CHANGED"
	EventCircuitBreaker     EventType = "CIRCUIT_BREAKER_UPDATE"
	EventAnalysisComplete   EventType = "ANALYSIS_COMPLETE"
	EventError              EventType = "ERROR"
)

// Event is one bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles delivered events.
type Subscriber func(Event)

// EventBus fans events out to subscribers. Delivery is asynchronous so a
// slow subscriber cannot stall a trading loop.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event.
func (eb *EventBus) PublishTradeOpened(symbol, side, source string, entryPrice, size float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"source":      source,
			"entry_price": entryPrice,
			"size":        size,
		},
	})
}

// PublishTradeClosed publishes a trade closed event.
func (eb *EventBus) PublishTradeClosed(symbol, reason string, exitPrice, pnl float64, external bool) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":            symbol,
			"exit_reason":       reason,
			"exit_price":        exitPrice,
			"pnl":               pnl,
			"externally_closed": external,
		},
	})
}

// PublishSignal publishes a generated signal.
func (eb *EventBus) PublishSignal(symbol, side, kind string, strength, price float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"side":     side,
			"kind":     kind,
			"strength": strength,
			"price":    price,
		},
	})
}

// PublishModeChanged publishes a trading mode transition.
func (eb *EventBus) PublishModeChanged(from, to string) {
	eb.Publish(Event{
		Type: EventTradingModeChanged,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishCircuitBreaker publishes a kill switch state change.
func (eb *EventBus) PublishCircuitBreaker(state, action, reason string) {
	eb.Publish(Event{
		Type: EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":  state,
			"action": action,
			"reason": reason,
		},
	})
}

// PublishError publishes an error event.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
