package database

import (
	"context"
	"fmt"
)

// Repository provides data access methods over the pool.
type Repository struct {
	db *DB
}

// NewRepository creates a repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// MARKET LOG
// ============================================================================

// InsertMarketLog records one analysis cycle.
func (r *Repository) InsertMarketLog(ctx context.Context, entry *MarketLog) error {
	query := `
		INSERT INTO market_log (symbol, trend, structure, price, rsi, decision, confidence, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, ts
	`
	return r.db.Pool.QueryRow(ctx, query,
		entry.Symbol, entry.Trend, entry.Structure, entry.Price, entry.RSI,
		entry.Decision, entry.Confidence, entry.Reason,
	).Scan(&entry.ID, &entry.Timestamp)
}

// GetMarketLog returns the newest market log rows.
func (r *Repository) GetMarketLog(ctx context.Context, limit int) ([]*MarketLog, error) {
	query := `
		SELECT id, symbol, trend, structure, price, rsi, decision, confidence, reason, ts
		FROM market_log
		ORDER BY ts DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying market log: %w", err)
	}
	defer rows.Close()

	var out []*MarketLog
	for rows.Next() {
		entry := &MarketLog{}
		if err := rows.Scan(&entry.ID, &entry.Symbol, &entry.Trend, &entry.Structure,
			&entry.Price, &entry.RSI, &entry.Decision, &entry.Confidence,
			&entry.Reason, &entry.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ============================================================================
// AI ANALYSIS
// ============================================================================

// InsertAIAnalysis records an advisor consultation.
func (r *Repository) InsertAIAnalysis(ctx context.Context, entry *AIAnalysis) error {
	query := `
		INSERT INTO ai_analysis (symbol, decision, confidence, reasoning, source, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, ts
	`
	return r.db.Pool.QueryRow(ctx, query,
		entry.Symbol, entry.Decision, entry.Confidence, entry.Reasoning,
		entry.Source, entry.Status,
	).Scan(&entry.ID, &entry.Timestamp)
}

// ============================================================================
// TRADE HISTORY
// ============================================================================

// InsertTradeHistory records an executed or failed order.
func (r *Repository) InsertTradeHistory(ctx context.Context, entry *TradeHistory) error {
	query := `
		INSERT INTO trade_history (symbol, side, size, price, order_id, status, pnl, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, ts
	`
	return r.db.Pool.QueryRow(ctx, query,
		entry.Symbol, entry.Side, entry.Size, entry.Price, entry.OrderID,
		entry.Status, entry.PnL, entry.Notes,
	).Scan(&entry.ID, &entry.Timestamp)
}

// GetTradeHistory returns closed trade rows, newest first.
func (r *Repository) GetTradeHistory(ctx context.Context, limit, offset int) ([]*TradeHistory, error) {
	query := `
		SELECT id, symbol, side, size, price, order_id, status, pnl, notes, ts
		FROM trade_history
		ORDER BY ts DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying trade history: %w", err)
	}
	defer rows.Close()

	var out []*TradeHistory
	for rows.Next() {
		entry := &TradeHistory{}
		if err := rows.Scan(&entry.ID, &entry.Symbol, &entry.Side, &entry.Size,
			&entry.Price, &entry.OrderID, &entry.Status, &entry.PnL,
			&entry.Notes, &entry.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ============================================================================
// OPEN POSITIONS
// ============================================================================

// UpsertOpenPosition stores or refreshes the persisted position snapshot.
func (r *Repository) UpsertOpenPosition(ctx context.Context, pos *OpenPosition) error {
	query := `
		INSERT INTO open_positions (symbol, side, size, entry_price, stop_loss, take_profit, leverage, source, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol) DO UPDATE SET
			side = EXCLUDED.side,
			size = EXCLUDED.size,
			entry_price = EXCLUDED.entry_price,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			leverage = EXCLUDED.leverage,
			source = EXCLUDED.source,
			opened_at = EXCLUDED.opened_at,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Pool.Exec(ctx, query,
		pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, pos.StopLoss,
		pos.TakeProfit, pos.Leverage, pos.Source, pos.OpenedAt)
	return err
}

// DeleteOpenPosition removes the persisted snapshot after a close.
func (r *Repository) DeleteOpenPosition(ctx context.Context, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM open_positions WHERE symbol = $1`, symbol)
	return err
}

// GetOpenPositions returns all persisted position snapshots.
func (r *Repository) GetOpenPositions(ctx context.Context) ([]*OpenPosition, error) {
	query := `
		SELECT symbol, side, size, entry_price, stop_loss, take_profit, leverage, source, opened_at
		FROM open_positions
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var out []*OpenPosition
	for rows.Next() {
		pos := &OpenPosition{}
		if err := rows.Scan(&pos.Symbol, &pos.Side, &pos.Size, &pos.EntryPrice,
			&pos.StopLoss, &pos.TakeProfit, &pos.Leverage, &pos.Source,
			&pos.OpenedAt); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// ============================================================================
// STRATEGIES
// ============================================================================

// GetActiveStrategies returns active rule strategies in creation order.
func (r *Repository) GetActiveStrategies(ctx context.Context) ([]*Strategy, error) {
	return r.queryStrategies(ctx, `
		SELECT id, name, description, logic, action, is_active, created_at
		FROM strategies
		WHERE is_active
		ORDER BY id
	`)
}

// GetStrategies returns all rule strategies.
func (r *Repository) GetStrategies(ctx context.Context) ([]*Strategy, error) {
	return r.queryStrategies(ctx, `
		SELECT id, name, description, logic, action, is_active, created_at
		FROM strategies
		ORDER BY id
	`)
}

func (r *Repository) queryStrategies(ctx context.Context, query string) ([]*Strategy, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying strategies: %w", err)
	}
	defer rows.Close()

	var out []*Strategy
	for rows.Next() {
		s := &Strategy{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Logic, &s.Action,
			&s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateStrategy inserts a rule strategy.
func (r *Repository) CreateStrategy(ctx context.Context, s *Strategy) error {
	query := `
		INSERT INTO strategies (name, description, logic, action, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		s.Name, s.Description, s.Logic, s.Action, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt)
}

// SetStrategyActive toggles a strategy.
func (r *Repository) SetStrategyActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE strategies SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

// ============================================================================
// SETTINGS
// ============================================================================

// GetTradeSettings returns the single-row trading settings.
func (r *Repository) GetTradeSettings(ctx context.Context) (*TradeSettings, error) {
	s := &TradeSettings{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT auto_trading, risk_tolerance, current_symbol FROM trade_settings WHERE id = 1`,
	).Scan(&s.AutoTrading, &s.RiskTolerance, &s.CurrentSymbol)
	if err != nil {
		return nil, fmt.Errorf("querying trade settings: %w", err)
	}
	return s, nil
}

// UpdateTradeSettings saves the trading settings row.
func (r *Repository) UpdateTradeSettings(ctx context.Context, s *TradeSettings) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE trade_settings
		SET auto_trading = $1, risk_tolerance = $2, current_symbol = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, s.AutoTrading, s.RiskTolerance, s.CurrentSymbol)
	return err
}

// GetSetting reads one key from the settings table.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting upserts one key in the settings table.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}
