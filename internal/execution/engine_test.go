package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"weex-trading-bot/internal/exchange"
)

// rejectingAPI always returns an exchange-level rejection.
type rejectingAPI struct {
	exchange.API
	calls int
}

func (r *rejectingAPI) PlaceOrder(ctx context.Context, symbol, side, size, typeCode string) (*exchange.OrderResponse, error) {
	r.calls++
	return &exchange.OrderResponse{Code: "40001", Msg: "insufficient balance"}, nil
}

func openLongRequest() OrderRequest {
	return OrderRequest{
		Symbol:   "cmt_btcusdt",
		Side:     "buy",
		Size:     0.01,
		TypeCode: exchange.TypeOpenLong,
		Source:   "SENTINEL",
		Reason:   "test entry",
	}
}

func TestExecuteOrderSuccess(t *testing.T) {
	client := exchange.NewMockClient(10000)
	e := NewEngine(client)

	result, err := e.ExecuteOrder(context.Background(), openLongRequest())
	if err != nil {
		t.Fatal(err)
	}
	if result.OrderID == "" {
		t.Error("order id should be populated")
	}
	if result.ClientOrderID == "" {
		t.Error("client order id should be populated")
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}

	stats := e.Stats()
	if stats["successes"].(int) != 1 || stats["failures"].(int) != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestExecuteOrderRetriesTransientError(t *testing.T) {
	client := exchange.NewMockClient(10000)
	client.FailNext(errors.New("connection reset"))
	e := NewEngine(client)

	result, err := e.ExecuteOrder(context.Background(), openLongRequest())
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 after one transient failure", result.Attempts)
	}
	stats := e.Stats()
	if stats["retries"].(int) != 1 {
		t.Errorf("retries = %v, want 1", stats["retries"])
	}
}

func TestExecuteOrderExhaustsRetriesOnRejection(t *testing.T) {
	api := &rejectingAPI{API: exchange.NewMockClient(10000)}
	e := NewEngine(api)

	_, err := e.ExecuteOrder(context.Background(), openLongRequest())
	if err == nil {
		t.Fatal("expected an error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "order failed after 3 attempts") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "exchange rejected order") {
		t.Errorf("error %v should carry the rejection cause", err)
	}
	if api.calls != MaxRetries {
		t.Errorf("attempts = %d, want %d", api.calls, MaxRetries)
	}
	stats := e.Stats()
	if stats["failures"].(int) != 1 {
		t.Errorf("failures = %v, want 1", stats["failures"])
	}
}

func TestExecuteOrderHonorsContextCancel(t *testing.T) {
	client := exchange.NewMockClient(10000)
	client.FailNext(errors.New("connection reset"))
	e := NewEngine(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExecuteOrder(ctx, openLongRequest())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
