// Package database provides the PostgreSQL persistence layer.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"weex-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB opens the connection pool and verifies connectivity.
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("Connected to PostgreSQL", "database", cfg.Database)
	return &DB{Pool: pool, logger: logger}, nil
}

// Close shuts down the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations creates the schema and seeds defaults.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS market_log (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(24) NOT NULL,
			trend VARCHAR(16),
			structure VARCHAR(32),
			price DECIMAL(20, 8),
			rsi DECIMAL(10, 4),
			decision VARCHAR(32),
			confidence DECIMAL(10, 4),
			reason TEXT,
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_log_symbol ON market_log(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_market_log_ts ON market_log(ts)`,

		`CREATE TABLE IF NOT EXISTS ai_analysis (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(24) NOT NULL,
			decision VARCHAR(16),
			confidence DECIMAL(10, 4),
			reasoning TEXT,
			source VARCHAR(32),
			status VARCHAR(16),
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_analysis_symbol ON ai_analysis(symbol)`,

		`CREATE TABLE IF NOT EXISTS trade_history (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(24) NOT NULL,
			side VARCHAR(8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			order_id VARCHAR(64),
			status VARCHAR(24) NOT NULL,
			pnl DECIMAL(20, 8),
			notes TEXT,
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_history_symbol ON trade_history(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_history_ts ON trade_history(ts)`,

		`CREATE TABLE IF NOT EXISTS open_positions (
			symbol VARCHAR(24) PRIMARY KEY,
			side VARCHAR(8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			leverage INT,
			source VARCHAR(16),
			opened_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS strategies (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			description TEXT,
			logic TEXT NOT NULL,
			action VARCHAR(8) NOT NULL,
			is_active BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS trade_settings (
			id INT PRIMARY KEY DEFAULT 1,
			auto_trading BOOLEAN DEFAULT FALSE,
			risk_tolerance INT DEFAULT 10,
			current_symbol VARCHAR(24) DEFAULT 'cmt_btcusdt',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row CHECK (id = 1)
		)`,
		`INSERT INTO trade_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,

		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR(64) PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	if err := db.seedDefaultStrategies(ctx); err != nil {
		return err
	}

	db.logger.Info("Database migrations completed")
	return nil
}

// seedDefaultStrategies inserts the starter rule strategies once.
func (db *DB) seedDefaultStrategies(ctx context.Context) error {
	defaults := []struct {
		name, description, logic, action string
	}{
		{
			name:        "RSI Oversold Bounce",
			description: "Buy when RSI drops below 30 in a bullish structure",
			logic:       "rsi < 30 and trend == 'BULLISH'",
			action:      "BUY",
		},
		{
			name:        "RSI Overbought Fade",
			description: "Sell when RSI exceeds 70 in a bearish structure",
			logic:       "rsi > 70 and trend == 'BEARISH'",
			action:      "SELL",
		},
		{
			name:        "Volume Breakout",
			description: "Buy a volume spike above the 20 EMA",
			logic:       "volume_spike and price > ema_20",
			action:      "BUY",
		},
	}

	for _, s := range defaults {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO strategies (name, description, logic, action, is_active)
			 VALUES ($1, $2, $3, $4, FALSE)
			 ON CONFLICT (name) DO NOTHING`,
			s.name, s.description, s.logic, s.action)
		if err != nil {
			return fmt.Errorf("seeding strategy %q: %w", s.name, err)
		}
	}
	return nil
}
