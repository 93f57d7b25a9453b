package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	EngineConfig     EngineConfig     `json:"engine"`
	SignalsConfig    SignalsConfig    `json:"signals"`
	SafetyConfig     SafetyConfig     `json:"safety"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	SummaryConfig    SummaryConfig    `json:"summary"`
	LoggingConfig    LoggingConfig    `json:"logging"`
	ServerConfig     ServerConfig     `json:"server"`
	VaultConfig      VaultConfig      `json:"vault"`
	RedisConfig      RedisConfig      `json:"redis"`
}

// EngineConfig holds automation engine configuration
type EngineConfig struct {
	AutoStart              bool    `json:"auto_start"`               // Start the engine at boot
	EvaluationIntervalSecs int     `json:"evaluation_interval_secs"` // Seconds between passes
	PassTimeoutSecs        int     `json:"pass_timeout_secs"`        // Per-pass deadline
	CooldownMinutes        int     `json:"cooldown_minutes"`         // Minimum gap between purchases per strategy
	MinAvgConfidence       float64 `json:"min_avg_confidence"`       // Execution floor (0-1)
	MinAdjustment          float64 `json:"min_adjustment"`           // Execution floor (0-2)
}

// SignalsConfig holds simulated signal source configuration
type SignalsConfig struct {
	Symbols []string `json:"symbols"` // Symbols to generate signals for
	Seed    int64    `json:"seed"`    // 0 = time-seeded
}

// SafetyConfig holds purchase safety limit configuration
type SafetyConfig struct {
	Enabled                bool `json:"enabled"`
	MaxPurchasesPerHour    int  `json:"max_purchases_per_hour"`
	MaxPurchasesPerDay     int  `json:"max_purchases_per_day"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"` // Execution failures before trip
	CooldownMinutes        int  `json:"cooldown_minutes"`         // Cooldown after trip
}

// MarketDataConfig holds market data provider configuration
type MarketDataConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	RequestIntervalMs int    `json:"request_interval_ms"` // Minimum gap between upstream calls
	PriceTTLSecs      int    `json:"price_ttl_secs"`      // Spot price cache TTL
	HistoryTTLSecs    int    `json:"history_ttl_secs"`    // History cache TTL
	MockMode          bool   `json:"mock_mode"`           // Use simulated prices when the API is unavailable
}

// SummaryConfig holds daily summary scheduler configuration
type SummaryConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // Cron expression
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for service secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Engine config
	cfg.EngineConfig.AutoStart = getEnvOrDefault("ENGINE_AUTO_START", "false") == "true"
	cfg.EngineConfig.EvaluationIntervalSecs = getEnvIntOrDefault("ENGINE_EVALUATION_INTERVAL_SECS", intOrDefault(cfg.EngineConfig.EvaluationIntervalSecs, 30))
	cfg.EngineConfig.PassTimeoutSecs = getEnvIntOrDefault("ENGINE_PASS_TIMEOUT_SECS", intOrDefault(cfg.EngineConfig.PassTimeoutSecs, 25))
	cfg.EngineConfig.CooldownMinutes = getEnvIntOrDefault("ENGINE_COOLDOWN_MINUTES", intOrDefault(cfg.EngineConfig.CooldownMinutes, 15))
	cfg.EngineConfig.MinAvgConfidence = getEnvFloatOrDefault("ENGINE_MIN_AVG_CONFIDENCE", floatOrDefault(cfg.EngineConfig.MinAvgConfidence, 0.7))
	cfg.EngineConfig.MinAdjustment = getEnvFloatOrDefault("ENGINE_MIN_ADJUSTMENT", floatOrDefault(cfg.EngineConfig.MinAdjustment, 0.5))

	// Signal source config
	if symbols := getEnvOrDefault("SIGNAL_SYMBOLS", ""); symbols != "" {
		cfg.SignalsConfig.Symbols = splitAndTrim(symbols)
	}
	if len(cfg.SignalsConfig.Symbols) == 0 {
		cfg.SignalsConfig.Symbols = []string{"BTC", "ETH"}
	}
	cfg.SignalsConfig.Seed = int64(getEnvIntOrDefault("SIGNAL_SEED", int(cfg.SignalsConfig.Seed)))

	// Safety limits
	cfg.SafetyConfig.Enabled = getEnvOrDefault("SAFETY_ENABLED", "true") == "true"
	cfg.SafetyConfig.MaxPurchasesPerHour = getEnvIntOrDefault("SAFETY_MAX_PURCHASES_PER_HOUR", intOrDefault(cfg.SafetyConfig.MaxPurchasesPerHour, 10))
	cfg.SafetyConfig.MaxPurchasesPerDay = getEnvIntOrDefault("SAFETY_MAX_PURCHASES_PER_DAY", intOrDefault(cfg.SafetyConfig.MaxPurchasesPerDay, 50))
	cfg.SafetyConfig.MaxConsecutiveFailures = getEnvIntOrDefault("SAFETY_MAX_CONSECUTIVE_FAILURES", intOrDefault(cfg.SafetyConfig.MaxConsecutiveFailures, 5))
	cfg.SafetyConfig.CooldownMinutes = getEnvIntOrDefault("SAFETY_COOLDOWN_MINUTES", intOrDefault(cfg.SafetyConfig.CooldownMinutes, 30))

	// Market data config
	cfg.MarketDataConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", cfg.MarketDataConfig.BaseURL)
	if cfg.MarketDataConfig.BaseURL == "" {
		cfg.MarketDataConfig.BaseURL = "https://api.coingecko.com"
	}
	cfg.MarketDataConfig.APIKey = getEnvOrDefault("MARKET_API_KEY", cfg.MarketDataConfig.APIKey)
	cfg.MarketDataConfig.RequestIntervalMs = getEnvIntOrDefault("MARKET_REQUEST_INTERVAL_MS", intOrDefault(cfg.MarketDataConfig.RequestIntervalMs, 1200))
	cfg.MarketDataConfig.PriceTTLSecs = getEnvIntOrDefault("MARKET_PRICE_TTL_SECS", intOrDefault(cfg.MarketDataConfig.PriceTTLSecs, 30))
	cfg.MarketDataConfig.HistoryTTLSecs = getEnvIntOrDefault("MARKET_HISTORY_TTL_SECS", intOrDefault(cfg.MarketDataConfig.HistoryTTLSecs, 600))
	cfg.MarketDataConfig.MockMode = getEnvOrDefault("MARKET_MOCK_MODE", "false") == "true"

	// Summary scheduler
	cfg.SummaryConfig.Enabled = getEnvOrDefault("SUMMARY_ENABLED", "true") == "true"
	cfg.SummaryConfig.Schedule = getEnvOrDefault("SUMMARY_SCHEDULE", "15 0 * * *")

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", intOrDefault(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 15)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 15)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "dca-autopilot/secrets")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.EngineConfig.EvaluationIntervalSecs <= 0 {
		return fmt.Errorf("engine evaluation interval must be positive, got %d", c.EngineConfig.EvaluationIntervalSecs)
	}
	if c.EngineConfig.PassTimeoutSecs <= 0 {
		return fmt.Errorf("engine pass timeout must be positive, got %d", c.EngineConfig.PassTimeoutSecs)
	}
	if c.EngineConfig.MinAvgConfidence < 0 || c.EngineConfig.MinAvgConfidence > 1 {
		return fmt.Errorf("min avg confidence must be in [0,1], got %f", c.EngineConfig.MinAvgConfidence)
	}
	if c.EngineConfig.MinAdjustment < 0 || c.EngineConfig.MinAdjustment > 2 {
		return fmt.Errorf("min adjustment must be in [0,2], got %f", c.EngineConfig.MinAdjustment)
	}
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerConfig.Port)
	}
	return nil
}

// EvaluationInterval returns the pass interval as a duration
func (c *EngineConfig) EvaluationInterval() time.Duration {
	return time.Duration(c.EvaluationIntervalSecs) * time.Second
}

// PassTimeout returns the per-pass deadline as a duration
func (c *EngineConfig) PassTimeout() time.Duration {
	return time.Duration(c.PassTimeoutSecs) * time.Second
}

// Cooldown returns the per-strategy purchase cooldown as a duration
func (c *EngineConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
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

func intOrDefault(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func floatOrDefault(value, defaultValue float64) float64 {
	if value != 0 {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		EngineConfig: EngineConfig{
			AutoStart:              false,
			EvaluationIntervalSecs: 30,
			PassTimeoutSecs:        25,
			CooldownMinutes:        15,
			MinAvgConfidence:       0.7,
			MinAdjustment:          0.5,
		},
		SignalsConfig: SignalsConfig{
			Symbols: []string{"BTC", "ETH"},
		},
		SafetyConfig: SafetyConfig{
			Enabled:                true,
			MaxPurchasesPerHour:    10,
			MaxPurchasesPerDay:     50,
			MaxConsecutiveFailures: 5,
			CooldownMinutes:        30,
		},
		MarketDataConfig: MarketDataConfig{
			BaseURL:           "https://api.coingecko.com",
			RequestIntervalMs: 1200,
			PriceTTLSecs:      30,
			HistoryTTLSecs:    600,
		},
		SummaryConfig: SummaryConfig{
			Enabled:  true,
			Schedule: "15 0 * * *",
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     15,
			WriteTimeout:    15,
			ShutdownTimeout: 10,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
