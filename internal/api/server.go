// Package api exposes the operator HTTP surface: mode control, status,
// positions, trades, strategies and the websocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"weex-trading-bot/internal/advisor"
	"weex-trading-bot/internal/auth"
	"weex-trading-bot/internal/circuit"
	"weex-trading-bot/internal/coordinator"
	"weex-trading-bot/internal/database"
	"weex-trading-bot/internal/events"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/safety"
)

// RateLimiter is a simple in-memory per-key request limiter.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether another request for key fits in the window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
	ProductionMode bool
}

// Analyzer runs a one-shot analysis for a symbol on demand.
type Analyzer interface {
	AnalyzeOnce(ctx context.Context, symbol string) (map[string]interface{}, error)
}

// Server is the operator API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	repo        *database.Repository
	eventBus    *events.EventBus
	coord       *coordinator.Coordinator
	positions   *position.Manager
	riskMgr     *risk.Manager
	safetyLayer *safety.Layer
	advisor     *advisor.Advisor
	breaker     *circuit.Breaker
	analyzer    Analyzer
	executor    *execution.Engine
	authService *auth.Service
	rateLimiter *RateLimiter
	hub         *WSHub
	logger      *logging.Logger
}

// NewServer wires the routes. repo, advisor and analyzer may be nil.
func NewServer(
	cfg ServerConfig,
	repo *database.Repository,
	eventBus *events.EventBus,
	coord *coordinator.Coordinator,
	positions *position.Manager,
	riskMgr *risk.Manager,
	safetyLayer *safety.Layer,
	adv *advisor.Advisor,
	breaker *circuit.Breaker,
	analyzer Analyzer,
	executor *execution.Engine,
	authService *auth.Service,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      cfg,
		repo:        repo,
		eventBus:    eventBus,
		coord:       coord,
		positions:   positions,
		riskMgr:     riskMgr,
		safetyLayer: safetyLayer,
		advisor:     adv,
		breaker:     breaker,
		analyzer:    analyzer,
		executor:    executor,
		authService: authService,
		rateLimiter: NewRateLimiter(30, time.Minute),
		hub:         NewWSHub(eventBus),
		logger:      logging.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

// rateLimitMiddleware throttles mutating endpoints per path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if !s.rateLimiter.Allow(c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/auth/login", s.handleLogin)

	api := s.router.Group("/api")
	if s.authService != nil {
		api.Use(s.authService.Middleware())
	}
	api.Use(s.rateLimitMiddleware())
	{
		api.POST("/sentinel/start", s.handleSentinelStart)
		api.POST("/sentinel/stop", s.handleSentinelStop)
		api.POST("/institutional/start", s.handleInstitutionalStart)
		api.POST("/institutional/stop", s.handleInstitutionalStop)

		api.GET("/status", s.handleStatus)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
		api.POST("/analysis/trigger", s.handleAnalysisTrigger)
		api.POST("/trade", s.handleManualTrade)

		api.GET("/positions", s.handlePositions)
		api.POST("/positions/close", s.handleClosePosition)
		api.POST("/positions/close-all", s.handleCloseAll)

		api.GET("/trades", s.handleTrades)
		api.GET("/market-log", s.handleMarketLog)

		api.GET("/strategies", s.handleGetStrategies)
		api.POST("/strategies", s.handleCreateStrategy)
		api.POST("/strategies/:id/toggle", s.handleToggleStrategy)

		api.POST("/circuit/reset", s.handleCircuitReset)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go s.hub.Run(ctx)

	s.logger.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
