package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
)

// newTestServer wires the routes against a mock exchange, without a
// database or auth.
func newTestServer(client exchange.API) *Server {
	return NewServer(ServerConfig{Port: 0, ProductionMode: true},
		nil, nil, nil, nil, nil, nil, nil, nil, nil,
		execution.NewEngine(client), nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestManualTradeBuy(t *testing.T) {
	client := exchange.NewMockClient(10000)
	s := newTestServer(client)

	w := doJSON(t, s, http.MethodPost, "/api/trade", `{"action": "buy", "symbol": "cmt_btcusdt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	orders := client.Orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	o := orders[0]
	if o.Symbol != "cmt_btcusdt" || o.Side != "buy" || o.TypeCode != exchange.TypeOpenLong {
		t.Errorf("order = %+v", o)
	}
	if o.Size != "10" {
		t.Errorf("size = %q, want the default 10", o.Size)
	}
}

func TestManualTradeShortOpensShort(t *testing.T) {
	client := exchange.NewMockClient(10000)
	s := newTestServer(client)

	w := doJSON(t, s, http.MethodPost, "/api/trade", `{"action": "short", "symbol": "cmt_ethusdt", "size": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	orders := client.Orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	o := orders[0]
	if o.Side != "sell" || o.TypeCode != exchange.TypeOpenShort || o.Size != "2" {
		t.Errorf("order = %+v", o)
	}
}

func TestManualTradeValidation(t *testing.T) {
	client := exchange.NewMockClient(10000)
	s := newTestServer(client)

	tests := []struct {
		name string
		body string
	}{
		{"missing action", `{"symbol": "cmt_btcusdt"}`},
		{"unknown action", `{"action": "hodl", "symbol": "cmt_btcusdt"}`},
		{"no symbol and no database fallback", `{"action": "buy"}`},
	}
	for _, tc := range tests {
		w := doJSON(t, s, http.MethodPost, "/api/trade", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
	if len(client.Orders()) != 0 {
		t.Errorf("rejected requests must not place orders, got %d", len(client.Orders()))
	}
}

func TestManualTradeWithoutExecutor(t *testing.T) {
	s := NewServer(ServerConfig{ProductionMode: true},
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/api/trade", `{"action": "buy", "symbol": "cmt_btcusdt"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without an executor", w.Code)
	}
}

func TestSettingsWithoutDatabase(t *testing.T) {
	s := newTestServer(exchange.NewMockClient(10000))

	if w := doJSON(t, s, http.MethodGet, "/api/settings", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET status = %d, want 503", w.Code)
	}
	if w := doJSON(t, s, http.MethodPut, "/api/settings", `{"auto_trading": true}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("PUT status = %d, want 503", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("k") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("other") {
		t.Error("keys are limited independently")
	}
}
