package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"weex-trading-bot/internal/database"
	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/execution"
	"weex-trading-bot/internal/position"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.authService == nil || !s.authService.Enabled() {
		c.JSON(http.StatusOK, gin.H{"token": "", "auth": "disabled"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleSentinelStart(c *gin.Context) {
	if err := s.coord.StartSentinel(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": s.coord.Mode()})
}

func (s *Server) handleSentinelStop(c *gin.Context) {
	s.coord.StopSentinel()
	c.JSON(http.StatusOK, gin.H{"mode": s.coord.Mode()})
}

func (s *Server) handleInstitutionalStart(c *gin.Context) {
	if err := s.coord.StartInstitutional(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": s.coord.Mode()})
}

func (s *Server) handleInstitutionalStop(c *gin.Context) {
	s.coord.StopInstitutional()
	c.JSON(http.StatusOK, gin.H{"mode": s.coord.Mode()})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"coordinator": s.coord.Status(),
		"positions":   s.positions.List(),
		"risk":        s.riskMgr.GetPortfolioRisk(),
		"safety":      s.safetyLayer.Stats(),
	}
	if s.advisor != nil {
		status["advisor"] = s.advisor.Stats()
	}
	if s.breaker != nil {
		status["circuit_breaker"] = s.breaker.GetStats()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	settings, err := s.repo.GetTradeSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	// Pointer fields distinguish "absent" from zero values so the operator
	// can update a single setting.
	var req struct {
		AutoTrading   *bool   `json:"auto_trading"`
		RiskTolerance *int    `json:"risk_tolerance"`
		CurrentSymbol *string `json:"current_symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RiskTolerance != nil && (*req.RiskTolerance < 0 || *req.RiskTolerance > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "risk_tolerance must be between 0 and 100"})
		return
	}

	settings, err := s.repo.GetTradeSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.AutoTrading != nil {
		settings.AutoTrading = *req.AutoTrading
	}
	if req.RiskTolerance != nil {
		settings.RiskTolerance = *req.RiskTolerance
	}
	if req.CurrentSymbol != nil && *req.CurrentSymbol != "" {
		settings.CurrentSymbol = *req.CurrentSymbol
	}

	if err := s.repo.UpdateTradeSettings(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handleManualTrade(c *gin.Context) {
	if s.executor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order execution not available"})
		return
	}

	var req struct {
		Action string  `json:"action" binding:"required"`
		Symbol string  `json:"symbol"`
		Size   float64 `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action required"})
		return
	}

	var side, typeCode string
	switch strings.ToLower(req.Action) {
	case "buy", "long":
		side, typeCode = "buy", exchange.TypeOpenLong
	case "sell", "short":
		side, typeCode = "sell", exchange.TypeOpenShort
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be buy, sell, long or short"})
		return
	}

	symbol := req.Symbol
	if symbol == "" && s.repo != nil {
		if settings, err := s.repo.GetTradeSettings(c.Request.Context()); err == nil {
			symbol = settings.CurrentSymbol
		}
	}
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	size := req.Size
	if size <= 0 {
		size = 10
	}

	result, err := s.executor.ExecuteOrder(c.Request.Context(), execution.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Size:     size,
		TypeCode: typeCode,
		Source:   position.SourceManual,
		Reason:   "manual trade via API",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": result})
}

func (s *Server) handleAnalysisTrigger(c *gin.Context) {
	if s.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis not available"})
		return
	}

	var req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	result, err := s.analyzer.AnalyzeOnce(c.Request.Context(), req.Symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.positions.List()})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	trade, err := s.positions.Close(c.Request.Context(), req.Symbol, position.ExitManual)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": trade})
}

func (s *Server) handleCloseAll(c *gin.Context) {
	trades := s.positions.CloseAll(c.Request.Context(), position.ExitManual)
	c.JSON(http.StatusOK, gin.H{"closed": trades})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	if s.repo == nil {
		c.JSON(http.StatusOK, gin.H{"trades": s.positions.ClosedTrades()})
		return
	}

	trades, err := s.repo.GetTradeHistory(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleMarketLog(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.repo.GetMarketLog(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleGetStrategies(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	strategies, err := s.repo.GetStrategies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Logic       string `json:"logic" binding:"required"`
		Action      string `json:"action" binding:"required"`
		IsActive    bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Action != "BUY" && req.Action != "SELL" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be BUY or SELL"})
		return
	}

	strategy := &database.Strategy{
		Name:        req.Name,
		Description: req.Description,
		Logic:       req.Logic,
		Action:      req.Action,
		IsActive:    req.IsActive,
	}
	if err := s.repo.CreateStrategy(c.Request.Context(), strategy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy": strategy})
}

func (s *Server) handleToggleStrategy(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not available"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.repo.SetStrategyActive(c.Request.Context(), id, req.Active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": req.Active})
}

func (s *Server) handleCircuitReset(c *gin.Context) {
	if s.breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "circuit breaker not available"})
		return
	}
	s.breaker.ForceReset()
	c.JSON(http.StatusOK, gin.H{"circuit_breaker": s.breaker.GetStats()})
}
