package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dca-autopilot/internal/analytics"
	"dca-autopilot/internal/automation"
	"dca-autopilot/internal/cache"
	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
)

// ============================================================================
// AUTOMATION ENGINE
// ============================================================================

func (s *Server) handleAutomationStatus(c *gin.Context) {
	if s.cache != nil && s.cache.IsHealthy() {
		var cached automation.Status
		if err := s.cache.GetJSON(c.Request.Context(), cache.EngineStatusKey(), &cached); err == nil {
			successResponse(c, cached)
			return
		}
	}

	status := s.engine.Status()
	if s.cache != nil && s.cache.IsHealthy() {
		if err := s.cache.SetJSON(c.Request.Context(), cache.EngineStatusKey(), status, cache.DefaultStatusTTL); err != nil {
			s.logger.Debug("Engine status cache write failed", "error", err.Error())
		}
	}
	successResponse(c, status)
}

func (s *Server) handleAutomationStart(c *gin.Context) {
	if err := s.engine.Start(); err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to start engine: "+err.Error())
		return
	}
	s.invalidateStatusCache(c)
	successResponse(c, gin.H{"message": "Engine started", "is_running": true})
}

func (s *Server) handleAutomationStop(c *gin.Context) {
	s.engine.Stop()
	s.invalidateStatusCache(c)
	successResponse(c, gin.H{"message": "Engine stopped", "is_running": false})
}

func (s *Server) handleSafetyReset(c *gin.Context) {
	s.engine.ResetSafety()
	s.invalidateStatusCache(c)
	successResponse(c, gin.H{"message": "Safety limits reset"})
}

// invalidateStatusCache drops the cached engine status after a lifecycle
// change so polls see the transition immediately instead of a stale TTL.
func (s *Server) invalidateStatusCache(c *gin.Context) {
	if s.cache == nil || !s.cache.IsHealthy() {
		return
	}
	if err := s.cache.Delete(c.Request.Context(), cache.EngineStatusKey()); err != nil {
		s.logger.Debug("Engine status cache invalidation failed", "error", err.Error())
	}
}

// ============================================================================
// AUTOMATION RULES
// ============================================================================

func (s *Server) handleListRules(c *gin.Context) {
	list, err := s.registry.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	successResponse(c, list)
}

func (s *Server) handleCreateRule(c *gin.Context) {
	var rule rules.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	created, err := s.registry.Add(c.Request.Context(), rule)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to create rule")
		return
	}
	if s.bus != nil {
		s.bus.PublishRuleCreated(created.ID, created.StrategyID)
	}
	successResponse(c, created)
}

func (s *Server) handleGetRule(c *gin.Context) {
	rule, err := s.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			errorResponse(c, http.StatusNotFound, "Rule not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to load rule")
		return
	}
	successResponse(c, rule)
}

func (s *Server) handleUpdateRule(c *gin.Context) {
	var rule rules.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	rule.ID = c.Param("id")

	updated, err := s.registry.Update(c.Request.Context(), rule)
	if err != nil {
		switch {
		case errors.Is(err, rules.ErrRuleNotFound):
			errorResponse(c, http.StatusNotFound, "Rule not found")
		case errors.Is(err, rules.ErrInvalidRule):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			errorResponse(c, http.StatusInternalServerError, "Failed to update rule")
		}
		return
	}
	if s.bus != nil {
		s.bus.PublishRuleUpdated(updated.ID, updated.StrategyID)
	}
	successResponse(c, updated)
}

// Removal is idempotent on every registry backend, so a missing ID is not
// an error here.
func (s *Server) handleDeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Remove(c.Request.Context(), id); err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	if s.bus != nil {
		s.bus.PublishRuleDeleted(id)
	}
	successResponse(c, gin.H{"message": "Rule deleted"})
}

// ============================================================================
// SIGNALS
// ============================================================================

func (s *Server) handleLatestSignals(c *gin.Context) {
	batch, at := s.engine.LatestSignals()
	successResponse(c, gin.H{
		"signals":      batch,
		"generated_at": at,
		"count":        len(batch),
	})
}

// ============================================================================
// DCA STRATEGIES
// ============================================================================

func (s *Server) handleListStrategies(c *gin.Context) {
	list, err := s.strategies.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to list strategies")
		return
	}
	successResponse(c, list)
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var strategy dca.Strategy
	if err := c.ShouldBindJSON(&strategy); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	created, err := s.strategies.Create(c.Request.Context(), strategy)
	if err != nil {
		if errors.Is(err, dca.ErrInvalidStrategy) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to create strategy")
		return
	}
	if s.bus != nil {
		s.bus.PublishStrategyCreated(created.ID, created.Symbol)
	}
	successResponse(c, created)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	strategy, err := s.strategies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, dca.ErrStrategyNotFound) {
			errorResponse(c, http.StatusNotFound, "Strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to load strategy")
		return
	}
	successResponse(c, strategy)
}

func (s *Server) handleUpdateStrategy(c *gin.Context) {
	var strategy dca.Strategy
	if err := c.ShouldBindJSON(&strategy); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	strategy.ID = c.Param("id")

	updated, err := s.strategies.Update(c.Request.Context(), strategy)
	if err != nil {
		switch {
		case errors.Is(err, dca.ErrStrategyNotFound):
			errorResponse(c, http.StatusNotFound, "Strategy not found")
		case errors.Is(err, dca.ErrInvalidStrategy):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			errorResponse(c, http.StatusInternalServerError, "Failed to update strategy")
		}
		return
	}
	if s.bus != nil {
		s.bus.PublishStrategyUpdated(updated.ID, updated.IsActive)
	}
	successResponse(c, updated)
}

func (s *Server) setStrategyActive(c *gin.Context, active bool) {
	strategy, err := s.strategies.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		if errors.Is(err, dca.ErrStrategyNotFound) {
			errorResponse(c, http.StatusNotFound, "Strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to toggle strategy")
		return
	}
	if s.bus != nil {
		s.bus.PublishStrategyUpdated(strategy.ID, strategy.IsActive)
	}
	successResponse(c, strategy)
}

func (s *Server) handleActivateStrategy(c *gin.Context) {
	s.setStrategyActive(c, true)
}

func (s *Server) handleDeactivateStrategy(c *gin.Context) {
	s.setStrategyActive(c, false)
}

func (s *Server) handleStrategyTransactions(c *gin.Context) {
	txs, err := s.ledger.ListForStrategy(c.Request.Context(), c.Param("id"), parseLimit(c, 50))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	successResponse(c, txs)
}

func (s *Server) handleStrategySummaries(c *gin.Context) {
	if s.summaries == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Summaries require persistent storage")
		return
	}

	list, err := s.summaries.ListDailySummaries(c.Request.Context(), c.Param("id"), parseLimit(c, 30))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to load summaries")
		return
	}
	successResponse(c, list)
}

// handleRecomputeSummaries re-runs the daily aggregation on demand. The
// day defaults to the previous UTC day, matching the nightly cron run.
func (s *Server) handleRecomputeSummaries(c *gin.Context) {
	if s.scheduler == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Summaries require persistent storage")
		return
	}

	day := time.Now().UTC().AddDate(0, 0, -1)
	if raw := c.Query("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid day parameter, want YYYY-MM-DD")
			return
		}
		day = parsed
	}

	if err := s.scheduler.ComputeDay(c.Request.Context(), day); err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to compute summaries: "+err.Error())
		return
	}
	successResponse(c, gin.H{
		"message": "Summaries computed",
		"day":     day.UTC().Format("2006-01-02"),
	})
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

func (s *Server) handleRecentTransactions(c *gin.Context) {
	txs, err := s.ledger.Recent(c.Request.Context(), parseLimit(c, 50))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	successResponse(c, txs)
}

// ============================================================================
// MARKET DATA
// ============================================================================

func (s *Server) handleMarketPrice(c *gin.Context) {
	symbol := c.Param("symbol")

	price, err := s.market.Price(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnknownSymbol) {
			errorResponse(c, http.StatusNotFound, "Unknown symbol: "+symbol)
			return
		}
		errorResponse(c, http.StatusBadGateway, "Price unavailable: "+err.Error())
		return
	}
	successResponse(c, gin.H{
		"symbol":    symbol,
		"price":     price,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleMarketHistory(c *gin.Context) {
	symbol := c.Param("symbol")

	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			errorResponse(c, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = parsed
	}

	points, err := s.market.History(c.Request.Context(), symbol, days)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnknownSymbol) {
			errorResponse(c, http.StatusNotFound, "Unknown symbol: "+symbol)
			return
		}
		errorResponse(c, http.StatusBadGateway, "History unavailable: "+err.Error())
		return
	}
	successResponse(c, gin.H{
		"symbol": symbol,
		"days":   days,
		"prices": points,
	})
}

// ============================================================================
// ANALYTICS
// ============================================================================

func (s *Server) handleOptimize(c *gin.Context) {
	var req analytics.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	rec, err := s.optimizer.Optimize(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, analytics.ErrInvalidRequest):
			errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, analytics.ErrInsufficientHistory):
			errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		default:
			errorResponse(c, http.StatusBadGateway, "Optimization failed: "+err.Error())
		}
		return
	}
	successResponse(c, rec)
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
