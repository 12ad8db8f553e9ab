// Package config loads the application configuration from config.json with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	ExchangeConfig  ExchangeConfig  `json:"exchange"`
	AdvisorConfig   AdvisorConfig   `json:"advisor"`
	SentimentConfig SentimentConfig `json:"sentiment"`
	TradingConfig   TradingConfig   `json:"trading"`
	AuthConfig      AuthConfig      `json:"auth"`
	CircuitConfig   CircuitConfig   `json:"circuit_breaker"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ExchangeConfig holds WEEX contract API configuration.
type ExchangeConfig struct {
	BaseURL   string `json:"base_url"`
	MirrorURL string `json:"mirror_url"` // candle mirror endpoint
	MockMode  bool   `json:"mock_mode"`  // trade against the in-memory client
}

// AdvisorConfig holds LLM advisor configuration.
type AdvisorConfig struct {
	Enabled       bool   `json:"enabled"`
	Endpoint      string `json:"endpoint"`
	APIKey        string `json:"api_key"`
	Model         string `json:"model"`
	MaxDailyCalls int    `json:"max_daily_calls"`
}

// SentimentConfig holds news sentiment configuration.
type SentimentConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// TradingConfig holds the trading loop configuration.
type TradingConfig struct {
	Symbol         string   `json:"symbol"`          // sentinel symbol
	Leverage       int      `json:"leverage"`
	RiskTolerance  int      `json:"risk_tolerance"`  // 0-30, lowers the confidence gate
	EnabledSymbols []string `json:"enabled_symbols"` // institutional universe
	InitialEquity  float64  `json:"initial_equity"`
}

// AuthConfig holds operator authentication configuration.
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	OperatorUser        string        `json:"operator_user"`
	OperatorPassHash    string        `json:"operator_pass_hash"` // bcrypt
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// CircuitConfig holds kill switch configuration.
type CircuitConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// DefaultEnabledSymbols is the institutional trading universe.
var DefaultEnabledSymbols = []string{
	"cmt_btcusdt", "cmt_ethusdt", "cmt_solusdt", "cmt_dogeusdt",
	"cmt_xrpusdt", "cmt_adausdt", "cmt_bnbusdt", "cmt_ltcusdt",
}

// Load reads config.json (optional) and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "weex_bot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "weex/api"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", boolStr(cfg.VaultConfig.TLSEnabled)) == "true"

	// Exchange config
	cfg.ExchangeConfig.BaseURL = getEnvOrDefault("WEEX_BASE_URL", defaultStr(cfg.ExchangeConfig.BaseURL, "https://api-contract.weex.com"))
	cfg.ExchangeConfig.MirrorURL = getEnvOrDefault("CANDLE_MIRROR_URL", defaultStr(cfg.ExchangeConfig.MirrorURL, "https://api.binance.com"))
	cfg.ExchangeConfig.MockMode = getEnvOrDefault("MOCK_MODE", boolStr(cfg.ExchangeConfig.MockMode)) == "true"

	// Advisor config
	cfg.AdvisorConfig.Enabled = getEnvOrDefault("ADVISOR_ENABLED", "true") == "true"
	cfg.AdvisorConfig.Endpoint = getEnvOrDefault("ADVISOR_ENDPOINT", cfg.AdvisorConfig.Endpoint)
	cfg.AdvisorConfig.APIKey = getEnvOrDefault("GEMINI_API_KEY", cfg.AdvisorConfig.APIKey)
	cfg.AdvisorConfig.Model = getEnvOrDefault("ADVISOR_MODEL", defaultStr(cfg.AdvisorConfig.Model, "gemini-2.0-flash"))
	cfg.AdvisorConfig.MaxDailyCalls = getEnvIntOrDefault("ADVISOR_MAX_DAILY_CALLS", defaultInt(cfg.AdvisorConfig.MaxDailyCalls, 15))

	// Sentiment config
	cfg.SentimentConfig.Enabled = getEnvOrDefault("SENTIMENT_ENABLED", "true") == "true"
	cfg.SentimentConfig.APIKey = getEnvOrDefault("CRYPTOPANIC_API_KEY", cfg.SentimentConfig.APIKey)
	cfg.SentimentConfig.BaseURL = getEnvOrDefault("CRYPTOPANIC_BASE_URL", defaultStr(cfg.SentimentConfig.BaseURL, "https://cryptopanic.com/api/v1"))

	// Trading config
	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", defaultStr(cfg.TradingConfig.Symbol, "cmt_btcusdt"))
	cfg.TradingConfig.Leverage = getEnvIntOrDefault("TRADING_LEVERAGE", defaultInt(cfg.TradingConfig.Leverage, 20))
	cfg.TradingConfig.RiskTolerance = getEnvIntOrDefault("TRADING_RISK_TOLERANCE", defaultInt(cfg.TradingConfig.RiskTolerance, 10))
	cfg.TradingConfig.InitialEquity = getEnvFloatOrDefault("TRADING_INITIAL_EQUITY", cfg.TradingConfig.InitialEquity)
	if len(cfg.TradingConfig.EnabledSymbols) == 0 {
		cfg.TradingConfig.EnabledSymbols = DefaultEnabledSymbols
	}

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolStr(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", defaultStr(cfg.AuthConfig.OperatorUser, "operator"))
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", defaultDuration(cfg.AuthConfig.AccessTokenDuration, 15*time.Minute))

	// Circuit breaker config
	cfg.CircuitConfig.Enabled = getEnvOrDefault("CIRCUIT_BREAKER_ENABLED", "true") == "true"
	cfg.CircuitConfig.MaxLossPerHour = getEnvFloatOrDefault("CIRCUIT_MAX_LOSS_PER_HOUR", defaultFloat(cfg.CircuitConfig.MaxLossPerHour, 3.0))
	cfg.CircuitConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", defaultInt(cfg.CircuitConfig.MaxConsecutiveLosses, 5))
	cfg.CircuitConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", defaultInt(cfg.CircuitConfig.CooldownMinutes, 30))
	cfg.CircuitConfig.MaxTradesPerMinute = getEnvIntOrDefault("CIRCUIT_MAX_TRADES_PER_MINUTE", defaultInt(cfg.CircuitConfig.MaxTradesPerMinute, 10))
	cfg.CircuitConfig.MaxDailyLoss = getEnvFloatOrDefault("CIRCUIT_MAX_DAILY_LOSS", defaultFloat(cfg.CircuitConfig.MaxDailyLoss, 5.0))
	cfg.CircuitConfig.MaxDailyTrades = getEnvIntOrDefault("CIRCUIT_MAX_DAILY_TRADES", defaultInt(cfg.CircuitConfig.MaxDailyTrades, 100))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultDuration(v, fallback time.Duration) time.Duration {
	if v == 0 {
		return fallback
	}
	return v
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
