package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dca-autopilot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("Connected to PostgreSQL database", "database", cfg.Database)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		// DCA strategies
		`CREATE TABLE IF NOT EXISTS dca_strategies (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			name VARCHAR(100) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			amount DECIMAL(20, 8) NOT NULL,
			frequency VARCHAR(20) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dca_strategies_user ON dca_strategies(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dca_strategies_active ON dca_strategies(is_active)`,

		// Executed purchases. Append-only: no UPDATE or DELETE path exists.
		`CREATE TABLE IF NOT EXISTS dca_transactions (
			id UUID PRIMARY KEY,
			strategy_id UUID NOT NULL REFERENCES dca_strategies(id),
			amount DECIMAL(20, 8) NOT NULL,
			asset_price DECIMAL(20, 8) NOT NULL,
			asset_amount DECIMAL(30, 18) NOT NULL,
			trigger_signal_id VARCHAR(64),
			executed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dca_transactions_strategy ON dca_transactions(strategy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dca_transactions_executed_at ON dca_transactions(executed_at)`,

		// Automation rules
		`CREATE TABLE IF NOT EXISTS automation_rules (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			strategy_id UUID NOT NULL REFERENCES dca_strategies(id),
			signal_threshold DECIMAL(5, 4) NOT NULL,
			max_adjustment DECIMAL(5, 4) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			conditions JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_rules_user ON automation_rules(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_rules_active ON automation_rules(is_active)`,

		// Daily summaries, recomputable per strategy and day
		`CREATE TABLE IF NOT EXISTS daily_summaries (
			id UUID PRIMARY KEY,
			strategy_id UUID NOT NULL REFERENCES dca_strategies(id),
			day DATE NOT NULL,
			purchase_count INTEGER NOT NULL,
			quote_spent DECIMAL(20, 8) NOT NULL,
			asset_bought DECIMAL(30, 18) NOT NULL,
			avg_price DECIMAL(20, 8) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (strategy_id, day)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_summaries_strategy ON daily_summaries(strategy_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}
