package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.ServerConfig.Port)
	}
	if cfg.DatabaseConfig.Database != "weex_bot" {
		t.Errorf("database = %q, want weex_bot", cfg.DatabaseConfig.Database)
	}
	if cfg.TradingConfig.Symbol != "cmt_btcusdt" {
		t.Errorf("symbol = %q, want cmt_btcusdt", cfg.TradingConfig.Symbol)
	}
	if cfg.TradingConfig.Leverage != 20 {
		t.Errorf("leverage = %d, want 20", cfg.TradingConfig.Leverage)
	}
	if len(cfg.TradingConfig.EnabledSymbols) != len(DefaultEnabledSymbols) {
		t.Errorf("enabled symbols = %v", cfg.TradingConfig.EnabledSymbols)
	}
	if cfg.AuthConfig.AccessTokenDuration != 15*time.Minute {
		t.Errorf("token duration = %v, want 15m", cfg.AuthConfig.AccessTokenDuration)
	}
	if cfg.CircuitConfig.MaxConsecutiveLosses != 5 {
		t.Errorf("max consecutive losses = %d, want 5", cfg.CircuitConfig.MaxConsecutiveLosses)
	}
	if !cfg.CircuitConfig.Enabled {
		t.Error("circuit breaker should default to enabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "9999")
	t.Setenv("TRADING_SYMBOL", "cmt_ethusdt")
	t.Setenv("TRADING_RISK_TOLERANCE", "25")
	t.Setenv("MOCK_MODE", "true")
	t.Setenv("AUTH_ACCESS_TOKEN_DURATION", "1h")
	t.Setenv("CIRCUIT_MAX_LOSS_PER_HOUR", "2.5")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.ServerConfig.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.ServerConfig.Port)
	}
	if cfg.TradingConfig.Symbol != "cmt_ethusdt" {
		t.Errorf("symbol = %q", cfg.TradingConfig.Symbol)
	}
	if cfg.TradingConfig.RiskTolerance != 25 {
		t.Errorf("risk tolerance = %d, want 25", cfg.TradingConfig.RiskTolerance)
	}
	if !cfg.ExchangeConfig.MockMode {
		t.Error("mock mode should be on")
	}
	if cfg.AuthConfig.AccessTokenDuration != time.Hour {
		t.Errorf("token duration = %v, want 1h", cfg.AuthConfig.AccessTokenDuration)
	}
	if cfg.CircuitConfig.MaxLossPerHour != 2.5 {
		t.Errorf("hourly loss limit = %v, want 2.5", cfg.CircuitConfig.MaxLossPerHour)
	}
}

func TestFileValuesSurviveWithoutEnv(t *testing.T) {
	cfg := &Config{}
	cfg.ServerConfig.Port = 3000
	cfg.TradingConfig.Leverage = 10
	applyEnvOverrides(cfg)

	if cfg.ServerConfig.Port != 3000 {
		t.Errorf("port = %d, file value should survive", cfg.ServerConfig.Port)
	}
	if cfg.TradingConfig.Leverage != 10 {
		t.Errorf("leverage = %d, file value should survive", cfg.TradingConfig.Leverage)
	}
}

func TestBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("WEB_PORT", "not-a-number")
	t.Setenv("AUTH_ACCESS_TOKEN_DURATION", "soon")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("port = %d, want default on a bad value", cfg.ServerConfig.Port)
	}
	if cfg.AuthConfig.AccessTokenDuration != 15*time.Minute {
		t.Errorf("token duration = %v, want default on a bad value", cfg.AuthConfig.AccessTokenDuration)
	}
}
