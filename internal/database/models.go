package database

import "time"

// MarketLog is one row of the per-cycle analysis log.
type MarketLog struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Trend      string    `json:"trend"`
	Structure  string    `json:"structure"`
	Price      float64   `json:"price"`
	RSI        float64   `json:"rsi"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"ts"`
}

// AIAnalysis records one advisor consultation.
type AIAnalysis struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"ts"`
}

// TradeHistory is one executed (or failed) order record.
type TradeHistory struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	PnL       float64   `json:"pnl"`
	Notes     string    `json:"notes"`
	Timestamp time.Time `json:"ts"`
}

// OpenPosition mirrors a managed position for crash recovery.
type OpenPosition struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Leverage   int       `json:"leverage"`
	Source     string    `json:"source"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Strategy is one operator-defined rule strategy.
type Strategy struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Logic       string    `json:"logic"`
	Action      string    `json:"action"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// TradeSettings is the single-row operator trading configuration.
type TradeSettings struct {
	AutoTrading   bool   `json:"auto_trading"`
	RiskTolerance int    `json:"risk_tolerance"`
	CurrentSymbol string `json:"current_symbol"`
}
