package exchange

import "context"

// Candle represents a single OHLCV bar.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Position represents an open contract position on the exchange.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // LONG or SHORT
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	Leverage      int     `json:"leverage"`
}

// AccountAssets holds the futures account balance snapshot.
type AccountAssets struct {
	Coin      string  `json:"coinName"`
	Available float64 `json:"available"`
	Equity    float64 `json:"equity"`
	Frozen    float64 `json:"frozen"`
}

// OrderResponse is the raw envelope returned by the order endpoints.
// Code "00000" indicates success.
type OrderResponse struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"msg"`
	Data map[string]interface{} `json:"data"`
}

// OK reports whether the exchange accepted the request.
func (r *OrderResponse) OK() bool {
	return r != nil && r.Code == codeSuccess
}

// OrderID extracts the exchange order id from the response data, if present.
func (r *OrderResponse) OrderID() string {
	if r == nil || r.Data == nil {
		return ""
	}
	for _, key := range []string{"orderId", "order_id", "clientOid"} {
		if v, ok := r.Data[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Order type codes on the contract order endpoint.
const (
	TypeOpenLong   = "1"
	TypeOpenShort  = "2"
	TypeCloseLong  = "3"
	TypeCloseShort = "4"
)

const codeSuccess = "00000"

// API is the surface the trading loops depend on. *Client implements it
// against the live exchange; MockClient implements it in memory.
type API interface {
	GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error)
	GetAccountAssets(ctx context.Context) (*AccountAssets, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	PlaceOrder(ctx context.Context, symbol, side, size, typeCode string) (*OrderResponse, error)
	ClosePosition(ctx context.Context, symbol, side, size string) (*OrderResponse, error)
	CloseAllPositions(ctx context.Context) ([]OrderResponse, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
