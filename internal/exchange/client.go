package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"weex-trading-bot/internal/logging"
)

const (
	defaultBaseURL   = "https://api-contract.weex.com"
	defaultMirrorURL = "https://api.binance.com"

	pathPlaceOrder = "/capi/v2/order/placeOrder"
	pathPositions  = "/capi/v2/position/list"
	pathAssets     = "/capi/v2/account/assets"
	pathLeverage   = "/capi/v2/account/leverage"
)

// Client talks to the WEEX USDT-margined contract API. Chart data comes
// from the public Binance mirror because the contract candle endpoint is
// unreliable; see candles.go.
type Client struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	mirrorURL  string
	httpClient *http.Client
	cache      CandleCache
	logger     *logging.Logger
}

// Credentials holds the exchange API credential set.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the contract API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithMirrorURL overrides the public candle mirror base URL.
func WithMirrorURL(u string) Option {
	return func(c *Client) { c.mirrorURL = u }
}

// WithCandleCache attaches a cache consulted before hitting the mirror.
func WithCandleCache(cache CandleCache) Option {
	return func(c *Client) { c.cache = cache }
}

// NewClient creates a new exchange client.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		apiKey:     creds.APIKey,
		secretKey:  creds.SecretKey,
		passphrase: creds.Passphrase,
		baseURL:    defaultBaseURL,
		mirrorURL:  defaultMirrorURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logging.WithComponent("exchange"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sign produces the ACCESS-SIGN header value:
// base64(HMAC-SHA256(secret, timestamp + METHOD + path + queryString + body)).
// The query string, when present, includes its leading "?".
func (c *Client) sign(method, path, queryString, body, timestamp string) string {
	message := timestamp + strings.ToUpper(method) + path + queryString + body
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	queryString := ""
	if len(query) > 0 {
		queryString = "?" + query.Encode()
	}

	bodyStr := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
		bodyStr = string(raw)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := c.sign(method, path, queryString, bodyStr, timestamp)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+queryString, bytes.NewBufferString(bodyStr))
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}

	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty response from exchange (status %d)", resp.StatusCode)
	}

	return body, nil
}

// GetAccountAssets returns the USDT futures balance.
func (c *Client) GetAccountAssets(ctx context.Context) (*AccountAssets, error) {
	body, err := c.doRequest(ctx, http.MethodGet, pathAssets, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Code string            `json:"code"`
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing assets response: %w", err)
	}
	if envelope.Code != codeSuccess {
		return nil, fmt.Errorf("assets request rejected: %s", envelope.Msg)
	}

	for _, raw := range envelope.Data {
		var entry struct {
			CoinName  string `json:"coinName"`
			Available string `json:"available"`
			Equity    string `json:"equity"`
			Frozen    string `json:"frozen"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if strings.EqualFold(entry.CoinName, "USDT") {
			return &AccountAssets{
				Coin:      "USDT",
				Available: parseFloat(entry.Available),
				Equity:    parseFloat(entry.Equity),
				Frozen:    parseFloat(entry.Frozen),
			}, nil
		}
	}

	return nil, fmt.Errorf("no USDT asset entry in response")
}

// GetPositions returns all open contract positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	body, err := c.doRequest(ctx, http.MethodGet, pathPositions, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"` // long or short
			Size          string `json:"size"`
			EntryPrice    string `json:"averageOpenPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealizedPnL string `json:"unrealizePnl"`
			Leverage      string `json:"leverage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing positions response: %w", err)
	}
	if envelope.Code != codeSuccess {
		return nil, fmt.Errorf("positions request rejected: %s", envelope.Msg)
	}

	positions := make([]Position, 0, len(envelope.Data))
	for _, p := range envelope.Data {
		size := parseFloat(p.Size)
		if size == 0 {
			continue
		}
		side := "LONG"
		if strings.EqualFold(p.Side, "short") {
			side = "SHORT"
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(p.EntryPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealizedPnL: parseFloat(p.UnrealizedPnL),
			Leverage:      int(parseFloat(p.Leverage)),
		})
	}

	return positions, nil
}

// GetPosition returns the open position for a symbol, or nil when flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// PlaceOrder submits a market order. typeCode 1 opens long, 2 opens short.
func (c *Client) PlaceOrder(ctx context.Context, symbol, side, size, typeCode string) (*OrderResponse, error) {
	payload := map[string]string{
		"symbol":      symbol,
		"client_oid":  uuid.New().String(),
		"side":        strings.ToLower(side),
		"orderType":   "market",
		"size":        size,
		"type":        typeCode,
		"match_price": "1",
	}

	c.logger.Info("Placing order", "symbol", symbol, "side", side, "size", size, "type", typeCode)

	body, err := c.doRequest(ctx, http.MethodPost, pathPlaceOrder, nil, payload)
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	if !resp.OK() {
		c.logger.Warn("Order rejected by exchange", "symbol", symbol, "code", resp.Code, "msg", resp.Msg)
	}
	return &resp, nil
}

// ClosePosition submits a market order that reduces an existing position.
// side "sell" closes a long (type 3), side "buy" closes a short (type 4).
func (c *Client) ClosePosition(ctx context.Context, symbol, side, size string) (*OrderResponse, error) {
	typeCode := TypeCloseLong
	if strings.EqualFold(side, "buy") {
		typeCode = TypeCloseShort
	}
	return c.PlaceOrder(ctx, symbol, side, size, typeCode)
}

// CloseAllPositions closes every open position with opposing market orders.
func (c *Client) CloseAllPositions(ctx context.Context) ([]OrderResponse, error) {
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing positions: %w", err)
	}

	var results []OrderResponse
	for _, pos := range positions {
		closeSide := "sell"
		if pos.Side == "SHORT" {
			closeSide = "buy"
		}
		resp, err := c.ClosePosition(ctx, pos.Symbol, closeSide, formatSize(pos.Size))
		if err != nil {
			c.logger.Error("Failed to close position", "symbol", pos.Symbol, "error", err)
			continue
		}
		results = append(results, *resp)
	}
	return results, nil
}

// SetLeverage sets the leverage for a symbol in both hold directions.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	payload := map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	}
	body, err := c.doRequest(ctx, http.MethodPost, pathLeverage, nil, payload)
	if err != nil {
		return err
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("error parsing leverage response: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("leverage request rejected: %s", resp.Msg)
	}
	return nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func formatSize(size float64) string {
	return strconv.FormatFloat(size, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
