package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dca-autopilot/config"
	"dca-autopilot/internal/analytics"
	"dca-autopilot/internal/api"
	"dca-autopilot/internal/automation"
	"dca-autopilot/internal/cache"
	"dca-autopilot/internal/database"
	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/events"
	"dca-autopilot/internal/ledger"
	"dca-autopilot/internal/logging"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/signals"
	"dca-autopilot/internal/summary"
	"dca-autopilot/internal/vault"
)

func main() {
	// Load .env if present; real environment variables win
	_ = godotenv.Load()

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

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Initialize vault client for secret resolution
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	logger.Info("Vault client initialized", "enabled", vaultClient.IsEnabled())

	ctx := context.Background()

	// Initialize database (optional; the service runs in-memory without it)
	var repo *database.Repository
	if getEnv("DATABASE_ENABLED", "false") == "true" {
		dbPassword, err := vaultClient.GetSecret(ctx, vault.SecretDatabasePassword, getEnv("DB_PASSWORD", "autopilot_password"))
		if err != nil {
			log.Fatalf("Failed to resolve database password: %v", err)
		}

		dbConfig := database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "autopilot"),
			Password: dbPassword,
			Database: getEnv("DB_NAME", "dca_autopilot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		}

		db, err := database.NewDB(dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		repo = database.NewRepository(db)
		logger.Info("Database initialized", "host", dbConfig.Host, "database", dbConfig.Database)
	} else {
		logger.Info("Database disabled, running with in-memory stores")
	}

	// Initialize Redis cache (optional)
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without shared cache", "error", err.Error())
			cacheService = nil
		} else {
			defer cacheService.Close()
			logger.Info("Redis cache initialized", "address", cfg.RedisConfig.Address)
		}
	}

	// Initialize market data provider
	var upstream marketdata.Provider
	if cfg.MarketDataConfig.MockMode {
		upstream = marketdata.NewSimulatedProvider(time.Now().UnixNano())
		logger.Info("Market data running in mock mode")
	} else {
		apiKey, err := vaultClient.GetSecret(ctx, vault.SecretMarketAPIKey, cfg.MarketDataConfig.APIKey)
		if err != nil {
			log.Fatalf("Failed to resolve market API key: %v", err)
		}
		upstream = marketdata.NewClient(marketdata.ClientConfig{
			BaseURL:         cfg.MarketDataConfig.BaseURL,
			APIKey:          apiKey,
			RequestInterval: time.Duration(cfg.MarketDataConfig.RequestIntervalMs) * time.Millisecond,
		})
		logger.Info("Market data client initialized", "base_url", cfg.MarketDataConfig.BaseURL)
	}

	market := marketdata.NewCachedProvider(upstream, cacheService, marketdata.CachedProviderConfig{
		PriceTTL:   time.Duration(cfg.MarketDataConfig.PriceTTLSecs) * time.Second,
		HistoryTTL: time.Duration(cfg.MarketDataConfig.HistoryTTLSecs) * time.Second,
	})

	// Wire stores: database-backed when available, in-memory otherwise
	var (
		strategyStore dca.StrategyStore
		ruleRegistry  rules.Registry
		txRepo        ledger.TransactionRepository
	)
	if repo != nil {
		strategyStore = repo
		ruleRegistry = database.NewRuleRegistry(repo)
		txRepo = repo
	} else {
		strategyStore = dca.NewMemoryStrategyStore()
		ruleRegistry = rules.NewMemoryRegistry()
		txRepo = ledger.NewMemoryTransactionRepository()
	}

	ledgerLogger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "ledger").Logger()
	txLedger := ledger.New(txRepo, ledgerLogger)

	// Initialize signal source
	source := signals.NewSimulatedSource(cfg.SignalsConfig.Symbols, cfg.SignalsConfig.Seed)
	logger.Info("Signal source initialized", "symbols", cfg.SignalsConfig.Symbols)

	// Initialize safety limits
	safety := automation.NewSafetyLimits(&automation.SafetyConfig{
		Enabled:                cfg.SafetyConfig.Enabled,
		MaxPurchasesPerHour:    cfg.SafetyConfig.MaxPurchasesPerHour,
		MaxPurchasesPerDay:     cfg.SafetyConfig.MaxPurchasesPerDay,
		MaxConsecutiveFailures: cfg.SafetyConfig.MaxConsecutiveFailures,
		CooldownMinutes:        cfg.SafetyConfig.CooldownMinutes,
	})

	// Initialize automation engine
	engine := automation.NewEngine(automation.Config{
		EvaluationInterval: cfg.EngineConfig.EvaluationInterval(),
		PassTimeout:        cfg.EngineConfig.PassTimeout(),
		Cooldown:           cfg.EngineConfig.Cooldown(),
		ConfidenceFloor:    cfg.EngineConfig.MinAvgConfidence,
		AdjustmentFloor:    cfg.EngineConfig.MinAdjustment,
	}, source, ruleRegistry, strategyStore, txLedger, market, safety, eventBus)

	if cfg.EngineConfig.AutoStart {
		if err := engine.Start(); err != nil {
			log.Fatalf("Failed to start automation engine: %v", err)
		}
		logger.Info("Automation engine auto-started", "interval_secs", cfg.EngineConfig.EvaluationIntervalSecs)
	}

	// Initialize strategy optimizer
	optimizer := analytics.NewOptimizer(market, 0)

	// Initialize daily summary scheduler (needs persistent transactions)
	var scheduler *summary.Scheduler
	var summaryStore api.SummaryStore
	if repo != nil && cfg.SummaryConfig.Enabled {
		scheduler = summary.NewScheduler(repo, repo, eventBus)
		if err := scheduler.Register(cfg.SummaryConfig.Schedule); err != nil {
			log.Fatalf("Failed to register summary schedule: %v", err)
		}
		scheduler.Start()
		summaryStore = repo
		logger.Info("Summary scheduler started", "schedule", cfg.SummaryConfig.Schedule)
	} else {
		logger.Info("Summary scheduler disabled")
	}

	// Initialize web server
	var health api.HealthChecker
	if repo != nil {
		health = repo
	}

	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Engine:     engine,
		Registry:   ruleRegistry,
		Strategies: strategyStore,
		Ledger:     txLedger,
		Market:     market,
		Optimizer:  optimizer,
		Summaries:  summaryStore,
		Scheduler:  scheduler,
		Health:     health,
		Cache:      cacheService,
		EventBus:   eventBus,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()
	logger.Info("API server listening", "host", cfg.ServerConfig.Host, "port", cfg.ServerConfig.Port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err.Error())
	}

	engine.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("Shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
