package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MockClient implements API in memory for paper trading and tests.
type MockClient struct {
	mu        sync.RWMutex
	balance   float64
	positions map[string]Position
	candles   map[string][]Candle
	orders    []MockOrder
	failNext  error
}

// MockOrder records an order submitted to the mock.
type MockOrder struct {
	Symbol   string
	Side     string
	Size     string
	TypeCode string
}

// NewMockClient creates a mock exchange with the given starting balance.
func NewMockClient(balance float64) *MockClient {
	return &MockClient{
		balance:   balance,
		positions: make(map[string]Position),
		candles:   make(map[string][]Candle),
	}
}

// SetCandles seeds the candle series returned for a symbol.
func (m *MockClient) SetCandles(symbol string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = candles
}

// SetPosition seeds an open position.
func (m *MockClient) SetPosition(pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Symbol] = pos
}

// RemovePosition drops a position, simulating an external close.
func (m *MockClient) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

// FailNext makes the next API call return the given error.
func (m *MockClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Orders returns all orders submitted so far.
func (m *MockClient) Orders() []MockOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *MockClient) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *MockClient) GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if candles, ok := m.candles[symbol]; ok {
		if len(candles) > limit {
			return candles[len(candles)-limit:], nil
		}
		return candles, nil
	}
	return GenerateMockCandles(symbol, granularity, limit), nil
}

func (m *MockClient) GetAccountAssets(ctx context.Context) (*AccountAssets, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	return &AccountAssets{Coin: "USDT", Available: m.balance, Equity: m.balance}, nil
}

func (m *MockClient) GetPositions(ctx context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (m *MockClient) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if pos, ok := m.positions[symbol]; ok {
		return &pos, nil
	}
	return nil, nil
}

func (m *MockClient) PlaceOrder(ctx context.Context, symbol, side, size, typeCode string) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	m.orders = append(m.orders, MockOrder{Symbol: symbol, Side: side, Size: size, TypeCode: typeCode})

	sz, _ := strconv.ParseFloat(size, 64)
	switch typeCode {
	case TypeOpenLong:
		m.positions[symbol] = Position{Symbol: symbol, Side: "LONG", Size: sz}
	case TypeOpenShort:
		m.positions[symbol] = Position{Symbol: symbol, Side: "SHORT", Size: sz}
	case TypeCloseLong, TypeCloseShort:
		delete(m.positions, symbol)
	}

	return &OrderResponse{
		Code: codeSuccess,
		Msg:  "success",
		Data: map[string]interface{}{"orderId": fmt.Sprintf("mock-%d", len(m.orders))},
	}, nil
}

func (m *MockClient) ClosePosition(ctx context.Context, symbol, side, size string) (*OrderResponse, error) {
	typeCode := TypeCloseLong
	if side == "buy" {
		typeCode = TypeCloseShort
	}
	return m.PlaceOrder(ctx, symbol, side, size, typeCode)
}

func (m *MockClient) CloseAllPositions(ctx context.Context) ([]OrderResponse, error) {
	positions, err := m.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	var results []OrderResponse
	for _, pos := range positions {
		side := "sell"
		if pos.Side == "SHORT" {
			side = "buy"
		}
		resp, err := m.ClosePosition(ctx, pos.Symbol, side, formatSize(pos.Size))
		if err != nil {
			return results, err
		}
		results = append(results, *resp)
	}
	return results, nil
}

func (m *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeFailure()
}
