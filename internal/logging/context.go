package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TradeContext creates a logger context for trade operations
func TradeContext(symbol, side string, quantity, price float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
	}).WithComponent("trade")
}

// OrderContext creates a logger context for order operations
func OrderContext(orderID, symbol, side, orderType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"order_id":   orderID,
		"symbol":     symbol,
		"side":       side,
		"order_type": orderType,
	}).WithComponent("order")
}

// PositionContext creates a logger context for position operations
func PositionContext(symbol, side string, entryPrice, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("position")
}

// SignalContext creates a logger context for trading signals
func SignalContext(symbol, side string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"confidence": confidence,
	}).WithComponent("signal")
}

// RiskContext creates a logger context for risk management
func RiskContext(symbol string, riskPercent, positionSize float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":        symbol,
		"risk_percent":  riskPercent,
		"position_size": positionSize,
	}).WithComponent("risk")
}

// ExchangeAPIContext creates a logger context for exchange API calls
func ExchangeAPIContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithFields(map[string]interface{}{
		"endpoint": endpoint,
	}).WithComponent("exchange")

	// Add safe params (exclude sensitive data)
	for k, v := range params {
		if k != "signature" && k != "apiKey" && k != "passphrase" {
			l = l.WithField(k, v)
		}
	}

	return l
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}
