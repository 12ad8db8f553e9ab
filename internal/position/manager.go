// Package position tracks every open position regardless of which loop
// opened it, applies trailing stops, and enforces exit conditions from a
// single monitor loop.
package position

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"weex-trading-bot/internal/database"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/risk"
)

// Store mirrors open positions to persistent storage. The in-memory map
// stays authoritative; mirror failures are logged and never block trading.
type Store interface {
	UpsertOpenPosition(ctx context.Context, pos *database.OpenPosition) error
	DeleteOpenPosition(ctx context.Context, symbol string) error
	GetOpenPositions(ctx context.Context) ([]*database.OpenPosition, error)
}

// Position sources.
const (
	SourceSentinel      = "SENTINEL"
	SourceInstitutional = "INSTITUTIONAL"
	SourceManual        = "MANUAL"
)

// Exit reasons.
const (
	ExitStopLoss   = "Stop loss hit"
	ExitTakeProfit = "Take profit hit"
	ExitTimeStop   = "Max hold time exceeded"
	ExitShutdown   = "System shutdown"
	ExitManual     = "Manual close"
	ExitExternal   = "ExternallyClosed"
)

const monitorInterval = 5 * time.Second

// ManagedPosition is one tracked open position.
type ManagedPosition struct {
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"` // LONG or SHORT
	Size           float64   `json:"size"`
	EntryPrice     float64   `json:"entry_price"`
	CurrentPrice   float64   `json:"current_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	ATR            float64   `json:"atr"`
	Leverage       int       `json:"leverage"`
	Source         string    `json:"source"`
	HighWaterMark  float64   `json:"high_water_mark"`
	LowWaterMark   float64   `json:"low_water_mark"`
	TrailingActive bool      `json:"trailing_active"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	OpenedAt       time.Time `json:"opened_at"`
}

// ClosedTrade is the record emitted when a position is closed.
type ClosedTrade struct {
	Position   ManagedPosition `json:"position"`
	ExitPrice  float64         `json:"exit_price"`
	ExitReason string          `json:"exit_reason"`
	PnL        float64         `json:"pnl"`
	OrderID    string          `json:"order_id,omitempty"`
	External   bool            `json:"externally_closed"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// CloseFunc is called after every close, external or not.
type CloseFunc func(ClosedTrade)

// Manager is the unified position manager.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*ManagedPosition
	closed    []ClosedTrade

	client      exchange.API
	riskManager *risk.Manager
	onClose     CloseFunc
	store       Store
	logger      *logging.Logger

	cancel context.CancelFunc
}

// NewManager creates a position manager over the exchange client and risk
// ledger. onClose may be nil.
func NewManager(client exchange.API, riskManager *risk.Manager, onClose CloseFunc) *Manager {
	return &Manager{
		positions:   make(map[string]*ManagedPosition),
		client:      client,
		riskManager: riskManager,
		onClose:     onClose,
		logger:      logging.WithComponent("position"),
	}
}

// SetStore attaches the open-position mirror. May be left unset when the
// database is unavailable.
func (m *Manager) SetStore(store Store) {
	m.mu.Lock()
	m.store = store
	m.mu.Unlock()
}

// Restore re-adopts mirrored positions after a restart. Positions that were
// closed on the exchange while the process was down surface as external
// closes on the next monitor pass. Returns the number restored.
func (m *Manager) Restore(ctx context.Context) int {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()
	if store == nil {
		return 0
	}

	rows, err := store.GetOpenPositions(ctx)
	if err != nil {
		m.logger.Warn("Could not load mirrored positions", "error", err)
		return 0
	}
	for _, row := range rows {
		m.Open(ManagedPosition{
			Symbol:     row.Symbol,
			Side:       row.Side,
			Size:       row.Size,
			EntryPrice: row.EntryPrice,
			StopLoss:   row.StopLoss,
			TakeProfit: row.TakeProfit,
			Leverage:   row.Leverage,
			Source:     row.Source,
			OpenedAt:   row.OpenedAt,
		})
	}
	if len(rows) > 0 {
		m.logger.Info("Restored mirrored positions", "count", len(rows))
	}
	return len(rows)
}

// Open registers a position under management. An existing entry for the
// same symbol is replaced, not stacked.
func (m *Manager) Open(pos ManagedPosition) {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}
	pos.CurrentPrice = pos.EntryPrice
	pos.HighWaterMark = pos.EntryPrice
	pos.LowWaterMark = pos.EntryPrice

	m.mu.Lock()
	if _, exists := m.positions[pos.Symbol]; exists {
		m.logger.Warn("Replacing tracked position", "symbol", pos.Symbol)
	}
	m.positions[pos.Symbol] = &pos
	m.mu.Unlock()

	m.logger.Info("Position under management",
		"symbol", pos.Symbol, "side", pos.Side, "size", pos.Size,
		"entry", pos.EntryPrice, "stop", pos.StopLoss, "target", pos.TakeProfit,
		"source", pos.Source)

	m.mirrorOpen(&pos)
}

// mirrorOpen writes the position snapshot to the database mirror.
func (m *Manager) mirrorOpen(pos *ManagedPosition) {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := store.UpsertOpenPosition(ctx, &database.OpenPosition{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Leverage:   pos.Leverage,
		Source:     pos.Source,
		OpenedAt:   pos.OpenedAt,
	})
	if err != nil {
		m.logger.Error("Failed to mirror open position", "symbol", pos.Symbol, "error", err)
	}
}

// mirrorClose removes the persisted snapshot after a close.
func (m *Manager) mirrorClose(ctx context.Context, symbol string) {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()
	if store == nil {
		return
	}
	if err := store.DeleteOpenPosition(ctx, symbol); err != nil {
		m.logger.Error("Failed to remove mirrored position", "symbol", symbol, "error", err)
	}
}

// Get returns a copy of the tracked position for a symbol.
func (m *Manager) Get(symbol string) (ManagedPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return ManagedPosition{}, false
	}
	return *p, true
}

// Has reports whether a position is tracked for the symbol.
func (m *Manager) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[symbol]
	return ok
}

// List returns copies of all tracked positions.
func (m *Manager) List() []ManagedPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ManagedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of tracked positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// UpdatePrice refreshes the mark for one position, advances the water
// marks, and promotes the stop to a trailing stop once the trade is at
// least 1R in profit. The trailing stop only ever tightens.
func (m *Manager) UpdatePrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[symbol]
	if !ok {
		return
	}

	p.CurrentPrice = price
	if price > p.HighWaterMark {
		p.HighWaterMark = price
	}
	if price < p.LowWaterMark {
		p.LowWaterMark = price
	}

	if p.Side == "LONG" {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Size
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Size
	}

	riskDist := math.Abs(p.EntryPrice - p.StopLoss)
	if riskDist <= 0 {
		return
	}

	if !p.TrailingActive {
		profit := price - p.EntryPrice
		if p.Side == "SHORT" {
			profit = p.EntryPrice - price
		}
		if profit >= riskDist {
			p.TrailingActive = true
			m.logger.Info("Trailing stop activated", "symbol", symbol, "price", price)
		}
	}

	if p.TrailingActive {
		var waterMark float64
		if p.Side == "LONG" {
			waterMark = p.HighWaterMark
		} else {
			waterMark = p.LowWaterMark
		}
		trail := risk.CalculateTrailingStop(p.EntryPrice, price, p.ATR, p.Side, waterMark)
		if trail == 0 {
			return
		}
		if p.Side == "LONG" && trail > p.StopLoss {
			p.StopLoss = trail
		} else if p.Side == "SHORT" && trail < p.StopLoss {
			p.StopLoss = trail
		}
	}
}

// CheckExitConditions returns the exit reason for a position, or "" when
// it should stay open.
func (m *Manager) CheckExitConditions(symbol string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[symbol]
	if !ok {
		return ""
	}

	if p.Side == "LONG" {
		if p.CurrentPrice <= p.StopLoss {
			return ExitStopLoss
		}
		if p.TakeProfit > 0 && p.CurrentPrice >= p.TakeProfit {
			return ExitTakeProfit
		}
	} else {
		if p.CurrentPrice >= p.StopLoss {
			return ExitStopLoss
		}
		if p.TakeProfit > 0 && p.CurrentPrice <= p.TakeProfit {
			return ExitTakeProfit
		}
	}

	if time.Since(p.OpenedAt) > risk.MaxHoldTime {
		return ExitTimeStop
	}
	return ""
}

// Close exits a position. The exchange is consulted first: if the position
// no longer exists there it was closed externally, and the trade is
// recorded without placing an order.
func (m *Manager) Close(ctx context.Context, symbol, reason string) (*ClosedTrade, error) {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("no tracked position for %s", symbol)
	}
	snapshot := *p
	m.mu.Unlock()

	live, err := m.client.GetPosition(ctx, symbol)
	if err != nil {
		m.logger.Warn("Could not verify position on exchange, attempting close anyway",
			"symbol", symbol, "error", err)
	}

	trade := ClosedTrade{
		Position:   snapshot,
		ExitPrice:  snapshot.CurrentPrice,
		ExitReason: reason,
		ClosedAt:   time.Now(),
	}

	if err == nil && live == nil {
		trade.External = true
		trade.ExitReason = fmt.Sprintf("%s (%s)", reason, ExitExternal)
		m.logger.Warn("Position already closed on exchange", "symbol", symbol)
	} else {
		side := "sell"
		if snapshot.Side == "SHORT" {
			side = "buy"
		}
		resp, err := m.client.ClosePosition(ctx, symbol, side, strconv.FormatFloat(snapshot.Size, 'f', -1, 64))
		if err != nil {
			return nil, fmt.Errorf("close order for %s: %w", symbol, err)
		}
		trade.OrderID = resp.OrderID()
	}

	if snapshot.Side == "LONG" {
		trade.PnL = (trade.ExitPrice - snapshot.EntryPrice) * snapshot.Size
	} else {
		trade.PnL = (snapshot.EntryPrice - trade.ExitPrice) * snapshot.Size
	}

	m.mu.Lock()
	delete(m.positions, symbol)
	m.closed = append(m.closed, trade)
	m.mu.Unlock()

	m.mirrorClose(ctx, symbol)

	if m.riskManager != nil {
		m.riskManager.RegisterClose(symbol, trade.ExitPrice, trade.ExitReason)
	}

	m.logger.Info("Position closed",
		"symbol", symbol, "reason", trade.ExitReason, "pnl", trade.PnL,
		"external", trade.External)

	if m.onClose != nil {
		m.onClose(trade)
	}
	return &trade, nil
}

// CloseAll closes every tracked position with the given reason.
func (m *Manager) CloseAll(ctx context.Context, reason string) []ClosedTrade {
	var out []ClosedTrade
	for _, p := range m.List() {
		trade, err := m.Close(ctx, p.Symbol, reason)
		if err != nil {
			m.logger.Error("Close failed during close-all", "symbol", p.Symbol, "error", err)
			continue
		}
		out = append(out, *trade)
	}
	return out
}

// StartMonitor launches the 5 second monitor loop. It stops when the
// context is cancelled or Shutdown is called.
func (m *Manager) StartMonitor(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		m.logger.Info("Position monitor started", "interval", monitorInterval.String())

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("Position monitor stopped")
				return
			case <-ticker.C:
				m.monitorCycle(ctx)
			}
		}
	}()
}

// monitorCycle refreshes marks from the exchange, collects positions whose
// exit conditions fire, and closes them after the scan.
func (m *Manager) monitorCycle(ctx context.Context) {
	var exits []struct{ symbol, reason string }

	for _, p := range m.List() {
		live, err := m.client.GetPosition(ctx, p.Symbol)
		if err != nil {
			m.logger.Warn("Monitor could not fetch position", "symbol", p.Symbol, "error", err)
			continue
		}
		if live != nil && live.MarkPrice > 0 {
			m.UpdatePrice(p.Symbol, live.MarkPrice)
		}

		if reason := m.CheckExitConditions(p.Symbol); reason != "" {
			exits = append(exits, struct{ symbol, reason string }{p.Symbol, reason})
		}
	}

	for _, e := range exits {
		if _, err := m.Close(ctx, e.symbol, e.reason); err != nil {
			m.logger.Error("Monitor close failed", "symbol", e.symbol, "error", err)
		}
	}
}

// Shutdown stops the monitor and closes every open position.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.CloseAll(ctx, ExitShutdown)
}

// ClosedTrades returns a copy of the closed trade records.
func (m *Manager) ClosedTrades() []ClosedTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClosedTrade, len(m.closed))
	copy(out, m.closed)
	return out
}
