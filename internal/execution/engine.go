// Package execution submits orders to the exchange with bounded retries
// and keeps a structured audit trail of every attempt.
package execution

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
)

const (
	// MaxRetries is the number of attempts per order.
	MaxRetries = 3
	// RetryDelay separates attempts.
	RetryDelay = time.Second
)

// OrderRequest describes an order to execute.
type OrderRequest struct {
	Symbol   string
	Side     string // buy or sell
	Size     float64
	TypeCode string // exchange type code 1-4
	Source   string
	Reason   string
}

// OrderResult is the outcome of a successful execution.
type OrderResult struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Size          float64   `json:"size"`
	Attempts      int       `json:"attempts"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// Engine wraps the exchange client with retry and audit behavior.
type Engine struct {
	client exchange.API
	logger *logging.Logger
	audit  zerolog.Logger

	mu        sync.Mutex
	attempts  int
	successes int
	failures  int
	retries   int
}

// NewEngine creates an execution engine. The audit trail is written as
// zerolog JSON lines to stdout.
func NewEngine(client exchange.API) *Engine {
	audit := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("stream", "order_audit").
		Logger()
	return &Engine{
		client: client,
		logger: logging.WithComponent("execution"),
		audit:  audit,
	}
}

// ExecuteOrder submits the order, retrying transport errors and rejected
// responses up to MaxRetries times.
func (e *Engine) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	clientOrderID := uuid.New().String()
	sizeStr := strconv.FormatFloat(req.Size, 'f', -1, 64)

	e.audit.Info().
		Str("event", "order_submitted").
		Str("client_order_id", clientOrderID).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("type", req.TypeCode).
		Float64("size", req.Size).
		Str("source", req.Source).
		Str("reason", req.Reason).
		Msg("order submitted")

	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		e.mu.Lock()
		e.attempts++
		if attempt > 1 {
			e.retries++
		}
		e.mu.Unlock()

		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(RetryDelay):
			}
		}

		resp, err := e.client.PlaceOrder(ctx, req.Symbol, req.Side, sizeStr, req.TypeCode)
		if err != nil {
			lastErr = err
			e.audit.Warn().
				Str("event", "order_attempt_failed").
				Str("client_order_id", clientOrderID).
				Str("symbol", req.Symbol).
				Int("attempt", attempt).
				Err(err).
				Msg("order attempt failed")
			continue
		}
		if !resp.OK() {
			lastErr = fmt.Errorf("exchange rejected order: code=%s msg=%s", resp.Code, resp.Msg)
			e.audit.Warn().
				Str("event", "order_rejected").
				Str("client_order_id", clientOrderID).
				Str("symbol", req.Symbol).
				Int("attempt", attempt).
				Str("code", resp.Code).
				Str("msg", resp.Msg).
				Msg("order rejected")
			continue
		}

		result := &OrderResult{
			OrderID:       resp.OrderID(),
			ClientOrderID: clientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Size:          req.Size,
			Attempts:      attempt,
			ExecutedAt:    time.Now(),
		}

		e.mu.Lock()
		e.successes++
		e.mu.Unlock()

		e.audit.Info().
			Str("event", "order_filled").
			Str("client_order_id", clientOrderID).
			Str("order_id", result.OrderID).
			Str("symbol", req.Symbol).
			Int("attempts", attempt).
			Msg("order filled")

		e.logger.Info("Order executed",
			"symbol", req.Symbol, "side", req.Side, "size", req.Size,
			"order_id", result.OrderID, "attempts", attempt)
		return result, nil
	}

	e.mu.Lock()
	e.failures++
	e.mu.Unlock()

	e.audit.Error().
		Str("event", "order_failed").
		Str("client_order_id", clientOrderID).
		Str("symbol", req.Symbol).
		Int("attempts", MaxRetries).
		Err(lastErr).
		Msg("order failed")

	return nil, fmt.Errorf("order failed after %d attempts: %w", MaxRetries, lastErr)
}

// Stats returns execution counters.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]interface{}{
		"attempts":  e.attempts,
		"successes": e.successes,
		"failures":  e.failures,
		"retries":   e.retries,
	}
}
