package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weex-trading-bot/config"
	"weex-trading-bot/internal/advisor"
	"weex-trading-bot/internal/analysis"
	"weex-trading-bot/internal/api"
	"weex-trading-bot/internal/auth"
	"weex-trading-bot/internal/cache"
	"weex-trading-bot/internal/circuit"
	"weex-trading-bot/internal/coordinator"
	"weex-trading-bot/internal/database"
	"weex-trading-bot/internal/events"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/ml"
	"weex-trading-bot/internal/orchestrator"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/sentinel"
	tradesignal "weex-trading-bot/internal/signal"
	"weex-trading-bot/internal/strategy"
	"weex-trading-bot/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Resolve exchange credentials through Vault (env fallback when disabled)
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to initialize Vault client", "error", err)
	}
	creds, err := vaultClient.GetCredentials(ctx)
	if err != nil {
		logger.Fatal("Failed to resolve exchange credentials", "error", err)
	}
	logger.Info("Exchange credentials resolved", "vault_enabled", vaultClient.IsEnabled())

	// Redis cache; degraded mode on connection failure
	var cacheService *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewService(cache.Config{
			Enabled:  true,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err != nil {
			logger.Warn("Cache unavailable, continuing without it", "error", err)
			cacheService = nil
		}
	}

	// Exchange client
	var client exchange.API
	if cfg.ExchangeConfig.MockMode {
		logger.Warn("MOCK MODE: orders will not reach the exchange")
		mockBalance := cfg.TradingConfig.InitialEquity
		if mockBalance <= 0 {
			mockBalance = 10000
		}
		client = exchange.NewMockClient(mockBalance)
	} else {
		opts := []exchange.Option{
			exchange.WithBaseURL(cfg.ExchangeConfig.BaseURL),
			exchange.WithMirrorURL(cfg.ExchangeConfig.MirrorURL),
		}
		if cacheService != nil {
			opts = append(opts, exchange.WithCandleCache(cacheService))
		}
		client = exchange.NewClient(exchange.Credentials{
			APIKey:     creds.APIKey,
			SecretKey:  creds.SecretKey,
			Passphrase: creds.Passphrase,
		}, opts...)
	}

	// PostgreSQL; the bot trades without persistence when the database is
	// unreachable, history endpoints answer 503.
	var repo *database.Repository
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Warn("Database unavailable, running without persistence", "error", err)
		db = nil
	} else {
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("Database migration failed", "error", err)
		}
		repo = database.NewRepository(db)
		logger.Info("Database connected and migrated")
	}

	// Risk ledger seeded from the live account balance when available
	initialEquity := cfg.TradingConfig.InitialEquity
	if assets, err := client.GetAccountAssets(ctx); err == nil && assets.Equity > 0 {
		initialEquity = assets.Equity
	}
	if initialEquity <= 0 {
		initialEquity = 1000
	}
	riskMgr := risk.NewManager(initialEquity)
	logger.Info("Risk manager initialized", "equity", initialEquity)

	// Kill switch
	breaker := circuit.NewBreaker(&circuit.Config{
		Enabled:              cfg.CircuitConfig.Enabled,
		MaxLossPerHour:       cfg.CircuitConfig.MaxLossPerHour,
		MaxConsecutiveLosses: cfg.CircuitConfig.MaxConsecutiveLosses,
		CooldownMinutes:      cfg.CircuitConfig.CooldownMinutes,
		MaxTradesPerMinute:   cfg.CircuitConfig.MaxTradesPerMinute,
		MaxDailyLoss:         cfg.CircuitConfig.MaxDailyLoss,
		MaxDailyTrades:       cfg.CircuitConfig.MaxDailyTrades,
	})
	breaker.OnTrip(func(reason string) {
		eventBus.PublishCircuitBreaker("open", "tripped", reason)
	})
	breaker.OnReset(func() {
		eventBus.PublishCircuitBreaker("closed", "reset", "")
	})

	safetyLayer := safety.NewLayer(riskMgr, breaker, cfg.TradingConfig.EnabledSymbols)
	executor := execution.NewEngine(client)

	// Unified position manager; every close feeds the kill switch, the
	// event stream and trade history.
	positions := position.NewManager(client, riskMgr, func(trade position.ClosedTrade) {
		equity := riskMgr.Equity()
		pnlPct := 0.0
		if equity > 0 {
			pnlPct = trade.PnL / equity * 100
		}
		breaker.RecordTrade(pnlPct)
		eventBus.PublishTradeClosed(trade.Position.Symbol, trade.ExitReason, trade.ExitPrice, trade.PnL, trade.External)
		if repo != nil {
			side := "sell"
			if trade.Position.Side == "SHORT" {
				side = "buy"
			}
			entry := &database.TradeHistory{
				Symbol:  trade.Position.Symbol,
				Side:    side,
				Size:    trade.Position.Size,
				Price:   trade.ExitPrice,
				OrderID: trade.OrderID,
				Status:  "closed",
				PnL:     trade.PnL,
				Notes:   trade.ExitReason,
			}
			insertCtx, insertCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer insertCancel()
			if err := repo.InsertTradeHistory(insertCtx, entry); err != nil {
				logging.WithComponent("main").Error("Failed to persist closed trade", "error", err)
			}
		}
	})
	if repo != nil {
		positions.SetStore(repo)
		positions.Restore(ctx)
	}
	positions.StartMonitor(ctx)

	// Decision inputs
	adv := advisor.New(&advisor.Config{
		Endpoint:      cfg.AdvisorConfig.Endpoint,
		APIKey:        cfg.AdvisorConfig.APIKey,
		Model:         cfg.AdvisorConfig.Model,
		MaxDailyCalls: cfg.AdvisorConfig.MaxDailyCalls,
	})
	analyst := ml.NewAnalyst()
	sentimentAnalyzer := sentiment.NewAnalyzer(&sentiment.Config{
		Enabled: cfg.SentimentConfig.Enabled,
		APIKey:  cfg.SentimentConfig.APIKey,
		BaseURL: cfg.SentimentConfig.BaseURL,
	})
	evaluator := strategy.NewEvaluator()

	// Trading loops
	var store sentinel.Store
	if repo != nil {
		store = repo
	}
	sentinelLoop := sentinel.New(sentinel.Config{
		Symbol:        cfg.TradingConfig.Symbol,
		Leverage:      cfg.TradingConfig.Leverage,
		RiskTolerance: cfg.TradingConfig.RiskTolerance,
	}, client, store, adv, analyst, sentimentAnalyzer, evaluator, riskMgr, safetyLayer, executor, positions)

	orch := orchestrator.New(orchestrator.Config{
		Symbols:  cfg.TradingConfig.EnabledSymbols,
		Leverage: cfg.TradingConfig.Leverage,
	}, client, tradesignal.NewEngine(), riskMgr, safetyLayer, executor, positions)

	coord := coordinator.New(sentinelLoop, orch, eventBus)

	// Operator API
	authService, err := auth.NewService(cfg.AuthConfig)
	if err != nil {
		logger.Fatal("Failed to initialize auth service", "error", err)
	}

	analyzer := &oneShotAnalyzer{
		client:    client,
		analyst:   analyst,
		sentiment: sentimentAnalyzer,
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: os.Getenv("GIN_MODE") == "release",
	}, repo, eventBus, coord, positions, riskMgr, safetyLayer, adv, breaker, analyzer, executor, authService)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("API server failed", "error", err)
		}
	}

	// Graceful shutdown: stop the loops, flatten positions, drain the API.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	coord.StopAll()
	positions.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	cancel()
	if cacheService != nil {
		cacheService.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("Shutdown complete")
}

// oneShotAnalyzer serves the on-demand analysis endpoint without touching
// the trading loops.
type oneShotAnalyzer struct {
	client    exchange.API
	analyst   *ml.Analyst
	sentiment *sentiment.Analyzer
}

func (a *oneShotAnalyzer) AnalyzeOnce(ctx context.Context, symbol string) (map[string]interface{}, error) {
	candles, err := a.client.GetCandles(ctx, symbol, "5m", 500)
	if err != nil {
		return nil, err
	}
	snap, err := analysis.AnalyzeMarketStructure(symbol, candles)
	if err != nil {
		return nil, err
	}

	prediction := a.analyst.TrainAndPredict(candles)
	sent := a.sentiment.AnalyzeSymbol(ctx, symbol)
	swings := analysis.AnalyzeSwings(candles, 5)

	return map[string]interface{}{
		"structure":  snap,
		"prediction": prediction,
		"sentiment":  sent,
		"swings":     swings,
	}, nil
}
