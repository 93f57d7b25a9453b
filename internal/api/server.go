// Package api exposes the automation service over HTTP: engine control,
// rule and strategy management, market data, analytics, and a WebSocket
// event stream.
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

	"dca-autopilot/config"
	"dca-autopilot/internal/analytics"
	"dca-autopilot/internal/automation"
	"dca-autopilot/internal/cache"
	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/events"
	"dca-autopilot/internal/ledger"
	"dca-autopilot/internal/logging"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/summary"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
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

// HealthChecker reports storage health. Nil when persistence is disabled.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SummaryStore combines summary persistence with on-demand recompute
type SummaryStore interface {
	summary.Store
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.ServerConfig
	logger      *logging.Logger
	rateLimiter *RateLimiter

	engine     *automation.Engine
	registry   rules.Registry
	strategies dca.StrategyStore
	ledger     *ledger.Ledger
	market     marketdata.Provider
	optimizer  *analytics.Optimizer
	summaries  SummaryStore        // May be nil when storage is disabled
	scheduler  *summary.Scheduler  // May be nil when storage is disabled
	health     HealthChecker       // May be nil when storage is disabled
	cache      *cache.CacheService // May be nil when Redis is disabled
	bus        *events.EventBus
	hub        *WSHub
}

// Deps bundles the collaborators the server exposes
type Deps struct {
	Engine     *automation.Engine
	Registry   rules.Registry
	Strategies dca.StrategyStore
	Ledger     *ledger.Ledger
	Market     marketdata.Provider
	Optimizer  *analytics.Optimizer
	Summaries  SummaryStore
	Scheduler  *summary.Scheduler
	Health     HealthChecker
	Cache      *cache.CacheService
	EventBus   *events.EventBus
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(traceMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      cfg,
		logger:      logging.WithComponent("api"),
		rateLimiter: NewRateLimiter(120, time.Minute),
		engine:      deps.Engine,
		registry:    deps.Registry,
		strategies:  deps.Strategies,
		ledger:      deps.Ledger,
		market:      deps.Market,
		optimizer:   deps.Optimizer,
		summaries:   deps.Summaries,
		scheduler:   deps.Scheduler,
		health:      deps.Health,
		cache:       deps.Cache,
		bus:         deps.EventBus,
		hub:         NewWSHub(),
	}

	server.setupRoutes()

	// Mirror every event onto the WebSocket stream
	if deps.EventBus != nil {
		deps.EventBus.SubscribeAll(server.hub.BroadcastEvent)
	}
	go server.hub.Run()

	return server
}

func splitOrigins(origins string) []string {
	if origins == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// traceMiddleware gives every request a trace ID, stores a trace-scoped
// logger in the request context, and echoes the ID back to the client.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := logging.WithTraceContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", logging.TraceIDFromContext(ctx))
		c.Next()
	}
}

// rateLimitMiddleware rate limits requests by endpoint. Status reads are
// exempt so dashboards can poll freely.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	noRateLimitPaths := map[string]bool{
		"/api/v1/automation/status": true,
		"/api/v1/signals/latest":    true,
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if noRateLimitPaths[path] {
			c.Next()
			return
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests to this endpoint. Please slow down.",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/v1")
	api.Use(s.rateLimitMiddleware())
	{
		// Automation engine
		api.GET("/automation/status", s.handleAutomationStatus)
		api.POST("/automation/start", s.handleAutomationStart)
		api.POST("/automation/stop", s.handleAutomationStop)
		api.POST("/automation/safety/reset", s.handleSafetyReset)

		// Automation rules
		api.GET("/rules", s.handleListRules)
		api.POST("/rules", s.handleCreateRule)
		api.GET("/rules/:id", s.handleGetRule)
		api.PUT("/rules/:id", s.handleUpdateRule)
		api.DELETE("/rules/:id", s.handleDeleteRule)

		// Signals
		api.GET("/signals/latest", s.handleLatestSignals)

		// DCA strategies
		api.GET("/strategies", s.handleListStrategies)
		api.POST("/strategies", s.handleCreateStrategy)
		api.GET("/strategies/:id", s.handleGetStrategy)
		api.PUT("/strategies/:id", s.handleUpdateStrategy)
		api.POST("/strategies/:id/activate", s.handleActivateStrategy)
		api.POST("/strategies/:id/deactivate", s.handleDeactivateStrategy)
		api.GET("/strategies/:id/transactions", s.handleStrategyTransactions)
		api.GET("/strategies/:id/summaries", s.handleStrategySummaries)

		// Transactions
		api.GET("/transactions", s.handleRecentTransactions)

		// Daily summaries
		api.POST("/summaries/recompute", s.handleRecomputeSummaries)

		// Market data
		api.GET("/market/price/:symbol", s.handleMarketPrice)
		api.GET("/market/history/:symbol", s.handleMarketHistory)

		// Analytics
		api.POST("/analytics/optimize", s.handleOptimize)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := time.Duration(s.config.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(s.config.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	engineState := "stopped"
	if s.engine != nil && s.engine.IsRunning() {
		engineState = "running"
	}

	dbStatus := "disabled"
	if s.health != nil {
		dbStatus = "healthy"
		if err := s.health.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"engine":   engineState,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbStatus,
		"engine":   engineState,
	})
}

// errorResponse is a helper to send error responses. Failures are logged
// through the request's trace-scoped logger so they can be tied back to
// the X-Trace-ID the client saw.
func errorResponse(c *gin.Context, statusCode int, message string) {
	logging.FromContext(c.Request.Context()).Warn("Request failed",
		"status", statusCode,
		"path", c.Request.URL.Path,
		"message", message)
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
