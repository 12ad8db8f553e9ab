package exchange

import (
	"context"
	"errors"
	"testing"
)

func TestMockClientOrderLifecycle(t *testing.T) {
	m := NewMockClient(5000)
	ctx := context.Background()

	resp, err := m.PlaceOrder(ctx, "cmt_btcusdt", "buy", "0.01", TypeOpenLong)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK() {
		t.Fatalf("mock order rejected: %+v", resp)
	}
	if resp.OrderID() != "mock-1" {
		t.Errorf("order id = %q, want mock-1", resp.OrderID())
	}

	pos, err := m.GetPosition(ctx, "cmt_btcusdt")
	if err != nil {
		t.Fatal(err)
	}
	if pos == nil || pos.Side != "LONG" || pos.Size != 0.01 {
		t.Fatalf("position = %+v, want a 0.01 long", pos)
	}

	if _, err := m.PlaceOrder(ctx, "cmt_btcusdt", "sell", "0.01", TypeCloseLong); err != nil {
		t.Fatal(err)
	}
	pos, err = m.GetPosition(ctx, "cmt_btcusdt")
	if err != nil {
		t.Fatal(err)
	}
	if pos != nil {
		t.Errorf("position should be gone after close, got %+v", pos)
	}

	orders := m.Orders()
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	if orders[1].TypeCode != TypeCloseLong {
		t.Errorf("second order type = %q, want %q", orders[1].TypeCode, TypeCloseLong)
	}
}

func TestMockClientFailNextIsOneShot(t *testing.T) {
	m := NewMockClient(5000)
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailNext(boom)
	if _, err := m.GetCandles(ctx, "cmt_btcusdt", "5m", 10); !errors.Is(err, boom) {
		t.Errorf("first call error = %v, want boom", err)
	}
	if _, err := m.GetCandles(ctx, "cmt_btcusdt", "5m", 10); err != nil {
		t.Errorf("second call should succeed, got %v", err)
	}
}

func TestMockClientSeededCandles(t *testing.T) {
	m := NewMockClient(5000)
	ctx := context.Background()

	seeded := GenerateMockCandles("cmt_btcusdt", "5m", 50)
	m.SetCandles("cmt_btcusdt", seeded)

	got, err := m.GetCandles(ctx, "cmt_btcusdt", "5m", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("trimmed length = %d, want 20", len(got))
	}
	if got[19].Close != seeded[49].Close {
		t.Error("trimming should keep the latest candles")
	}

	// Unseeded symbols fall back to generated data.
	got, err = m.GetCandles(ctx, "cmt_adausdt", "5m", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 30 {
		t.Errorf("fallback length = %d, want 30", len(got))
	}
}

func TestMockClientAccountAndPositions(t *testing.T) {
	m := NewMockClient(1234.5)
	ctx := context.Background()

	assets, err := m.GetAccountAssets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if assets.Equity != 1234.5 || assets.Available != 1234.5 {
		t.Errorf("assets = %+v", assets)
	}

	if pos, err := m.GetPosition(ctx, "cmt_btcusdt"); err != nil || pos != nil {
		t.Errorf("absent position = (%+v, %v), want (nil, nil)", pos, err)
	}

	m.SetPosition(Position{Symbol: "cmt_btcusdt", Side: "LONG", Size: 1})
	m.SetPosition(Position{Symbol: "cmt_solusdt", Side: "SHORT", Size: 2})
	all, err := m.GetPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("positions = %d, want 2", len(all))
	}

	m.RemovePosition("cmt_btcusdt")
	if pos, _ := m.GetPosition(ctx, "cmt_btcusdt"); pos != nil {
		t.Error("removed position should be gone")
	}
}

func TestMockClientCloseAllPositions(t *testing.T) {
	m := NewMockClient(5000)
	ctx := context.Background()

	m.SetPosition(Position{Symbol: "cmt_btcusdt", Side: "LONG", Size: 1})
	m.SetPosition(Position{Symbol: "cmt_solusdt", Side: "SHORT", Size: 2})

	results, err := m.CloseAllPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	remaining, _ := m.GetPositions(ctx)
	if len(remaining) != 0 {
		t.Errorf("remaining positions = %d, want 0", len(remaining))
	}

	sides := map[string]string{}
	for _, o := range m.Orders() {
		sides[o.Symbol] = o.Side
	}
	if sides["cmt_btcusdt"] != "sell" || sides["cmt_solusdt"] != "buy" {
		t.Errorf("close sides = %v", sides)
	}
}

func TestOrderResponseHelpers(t *testing.T) {
	ok := &OrderResponse{Code: "00000", Data: map[string]interface{}{"orderId": "abc"}}
	if !ok.OK() {
		t.Error("code 00000 should be OK")
	}
	if ok.OrderID() != "abc" {
		t.Errorf("order id = %q, want abc", ok.OrderID())
	}

	rejected := &OrderResponse{Code: "40001"}
	if rejected.OK() {
		t.Error("non-success code should not be OK")
	}
	if rejected.OrderID() != "" {
		t.Errorf("order id without data = %q, want empty", rejected.OrderID())
	}

	alt := &OrderResponse{Code: "00000", Data: map[string]interface{}{"clientOid": "xyz"}}
	if alt.OrderID() != "xyz" {
		t.Errorf("order id from clientOid = %q, want xyz", alt.OrderID())
	}

	var nilResp *OrderResponse
	if nilResp.OK() {
		t.Error("nil response should not be OK")
	}
	if nilResp.OrderID() != "" {
		t.Error("nil response order id should be empty")
	}
}
