package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/summary"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// DCA STRATEGIES
// ============================================================================

const strategyColumns = `id, user_id, name, symbol, amount, frequency, is_active, created_at, updated_at`

func scanStrategy(row pgx.Row) (dca.Strategy, error) {
	var s dca.Strategy
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Symbol, &s.Amount,
		&s.Frequency, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Get retrieves a strategy by ID
func (r *Repository) Get(ctx context.Context, id string) (dca.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM dca_strategies WHERE id = $1`

	s, err := scanStrategy(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dca.Strategy{}, dca.ErrStrategyNotFound
	}
	if err != nil {
		return dca.Strategy{}, fmt.Errorf("loading strategy: %w", err)
	}
	return s, nil
}

// List retrieves strategies, optionally filtered by user
func (r *Repository) List(ctx context.Context, userID string) ([]dca.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM dca_strategies ORDER BY created_at`
	args := []interface{}{}
	if userID != "" {
		query = `SELECT ` + strategyColumns + ` FROM dca_strategies WHERE user_id = $1 ORDER BY created_at`
		args = append(args, userID)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []dca.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a new strategy
func (r *Repository) Create(ctx context.Context, strategy dca.Strategy) (dca.Strategy, error) {
	if err := strategy.Validate(); err != nil {
		return dca.Strategy{}, err
	}
	if strategy.ID == "" {
		strategy.ID = uuid.New().String()
	}
	now := time.Now()
	strategy.CreatedAt = now
	strategy.UpdatedAt = now

	query := `
		INSERT INTO dca_strategies (id, user_id, name, symbol, amount, frequency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		strategy.ID, strategy.UserID, strategy.Name, strategy.Symbol,
		strategy.Amount, strategy.Frequency, strategy.IsActive,
		strategy.CreatedAt, strategy.UpdatedAt)
	if err != nil {
		return dca.Strategy{}, fmt.Errorf("creating strategy: %w", err)
	}
	return strategy, nil
}

// Update replaces a strategy's mutable fields
func (r *Repository) Update(ctx context.Context, strategy dca.Strategy) (dca.Strategy, error) {
	if err := strategy.Validate(); err != nil {
		return dca.Strategy{}, err
	}
	strategy.UpdatedAt = time.Now()

	query := `
		UPDATE dca_strategies
		SET name = $2, symbol = $3, amount = $4, frequency = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		strategy.ID, strategy.Name, strategy.Symbol, strategy.Amount,
		strategy.Frequency, strategy.IsActive, strategy.UpdatedAt)
	if err != nil {
		return dca.Strategy{}, fmt.Errorf("updating strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dca.Strategy{}, dca.ErrStrategyNotFound
	}
	return r.Get(ctx, strategy.ID)
}

// SetActive toggles a strategy's active flag
func (r *Repository) SetActive(ctx context.Context, id string, active bool) (dca.Strategy, error) {
	query := `UPDATE dca_strategies SET is_active = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, active, time.Now())
	if err != nil {
		return dca.Strategy{}, fmt.Errorf("toggling strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dca.Strategy{}, dca.ErrStrategyNotFound
	}
	return r.Get(ctx, id)
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

const transactionColumns = `id, strategy_id, amount, asset_price, asset_amount, trigger_signal_id, executed_at`

func scanTransaction(row pgx.Row) (dca.Transaction, error) {
	var tx dca.Transaction
	var trigger *string
	err := row.Scan(&tx.ID, &tx.StrategyID, &tx.Amount, &tx.AssetPrice,
		&tx.AssetAmount, &trigger, &tx.ExecutedAt)
	if trigger != nil {
		tx.TriggerSignalID = *trigger
	}
	return tx, err
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]dca.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []dca.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// CreateTransaction inserts an executed purchase
func (r *Repository) CreateTransaction(ctx context.Context, tx *dca.Transaction) error {
	query := `
		INSERT INTO dca_transactions (id, strategy_id, amount, asset_price, asset_amount, trigger_signal_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var trigger *string
	if tx.TriggerSignalID != "" {
		trigger = &tx.TriggerSignalID
	}
	_, err := r.db.Pool.Exec(ctx, query,
		tx.ID, tx.StrategyID, tx.Amount, tx.AssetPrice, tx.AssetAmount, trigger, tx.ExecutedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// GetLastTransaction returns a strategy's most recent purchase, or nil
func (r *Repository) GetLastTransaction(ctx context.Context, strategyID string) (*dca.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM dca_transactions
		WHERE strategy_id = $1
		ORDER BY executed_at DESC
		LIMIT 1
	`
	tx, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, strategyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last transaction: %w", err)
	}
	return &tx, nil
}

// GetTransactionsByStrategy returns a strategy's purchases, newest first
func (r *Repository) GetTransactionsByStrategy(ctx context.Context, strategyID string, limit int) ([]dca.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM dca_transactions
		WHERE strategy_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`
	return r.queryTransactions(ctx, query, strategyID, limit)
}

// GetRecentTransactions returns the latest purchases across strategies
func (r *Repository) GetRecentTransactions(ctx context.Context, limit int) ([]dca.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM dca_transactions
		ORDER BY executed_at DESC
		LIMIT $1
	`
	return r.queryTransactions(ctx, query, limit)
}

// TransactionsBetween returns purchases executed in [from, to)
func (r *Repository) TransactionsBetween(ctx context.Context, from, to time.Time) ([]dca.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM dca_transactions
		WHERE executed_at >= $1 AND executed_at < $2
		ORDER BY executed_at
	`
	return r.queryTransactions(ctx, query, from, to)
}

// ============================================================================
// AUTOMATION RULES
// ============================================================================

const ruleColumns = `id, user_id, strategy_id, signal_threshold, max_adjustment, is_active, conditions, created_at, updated_at`

func scanRule(row pgx.Row) (rules.AutomationRule, error) {
	var rule rules.AutomationRule
	var conditions []byte
	err := row.Scan(&rule.ID, &rule.UserID, &rule.StrategyID, &rule.SignalThreshold,
		&rule.MaxAdjustment, &rule.IsActive, &conditions, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return rule, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return rule, fmt.Errorf("decoding rule conditions: %w", err)
	}
	return rule, nil
}

func (r *Repository) queryRules(ctx context.Context, query string, args ...interface{}) ([]rules.AutomationRule, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var out []rules.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Add inserts a new automation rule
func (r *Repository) Add(ctx context.Context, rule rules.AutomationRule) (rules.AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return rules.AutomationRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return rules.AutomationRule{}, fmt.Errorf("encoding rule conditions: %w", err)
	}

	query := `
		INSERT INTO automation_rules (id, user_id, strategy_id, signal_threshold, max_adjustment, is_active, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		rule.ID, rule.UserID, rule.StrategyID, rule.SignalThreshold,
		rule.MaxAdjustment, rule.IsActive, conditions, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return rules.AutomationRule{}, fmt.Errorf("creating rule: %w", err)
	}
	return rule, nil
}

// Update replaces a rule's mutable fields
func (r *Repository) UpdateRule(ctx context.Context, rule rules.AutomationRule) (rules.AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return rules.AutomationRule{}, err
	}
	rule.UpdatedAt = time.Now()

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return rules.AutomationRule{}, fmt.Errorf("encoding rule conditions: %w", err)
	}

	query := `
		UPDATE automation_rules
		SET strategy_id = $2, signal_threshold = $3, max_adjustment = $4, is_active = $5, conditions = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		rule.ID, rule.StrategyID, rule.SignalThreshold, rule.MaxAdjustment,
		rule.IsActive, conditions, rule.UpdatedAt)
	if err != nil {
		return rules.AutomationRule{}, fmt.Errorf("updating rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rules.AutomationRule{}, rules.ErrRuleNotFound
	}
	return r.GetRule(ctx, rule.ID)
}

// Remove deletes a rule. Removing an unknown ID is a no-op, so removal is
// safe to retry.
func (r *Repository) RemoveRule(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID
func (r *Repository) GetRule(ctx context.Context, id string) (rules.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`

	rule, err := scanRule(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.AutomationRule{}, rules.ErrRuleNotFound
	}
	if err != nil {
		return rules.AutomationRule{}, fmt.Errorf("loading rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves rules, optionally filtered by user
func (r *Repository) ListRules(ctx context.Context, userID string) ([]rules.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules ORDER BY created_at`
	args := []interface{}{}
	if userID != "" {
		query = `SELECT ` + ruleColumns + ` FROM automation_rules WHERE user_id = $1 ORDER BY created_at`
		args = append(args, userID)
	}
	return r.queryRules(ctx, query, args...)
}

// ActiveRules retrieves every active rule
func (r *Repository) ActiveRules(ctx context.Context) ([]rules.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE is_active = TRUE ORDER BY created_at`
	return r.queryRules(ctx, query)
}

// ============================================================================
// DAILY SUMMARIES
// ============================================================================

// UpsertDailySummary writes one strategy-day rollup, replacing any prior
// computation for that strategy and day
func (r *Repository) UpsertDailySummary(ctx context.Context, s summary.DailySummary) error {
	query := `
		INSERT INTO daily_summaries (id, strategy_id, day, purchase_count, quote_spent, asset_bought, avg_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (strategy_id, day) DO UPDATE
		SET purchase_count = EXCLUDED.purchase_count,
		    quote_spent = EXCLUDED.quote_spent,
		    asset_bought = EXCLUDED.asset_bought,
		    avg_price = EXCLUDED.avg_price,
		    created_at = EXCLUDED.created_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		s.ID, s.StrategyID, s.Day, s.PurchaseCount, s.QuoteSpent, s.AssetBought, s.AvgPrice, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting daily summary: %w", err)
	}
	return nil
}

// ListDailySummaries returns a strategy's rollups, newest day first
func (r *Repository) ListDailySummaries(ctx context.Context, strategyID string, limit int) ([]summary.DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `
		SELECT id, strategy_id, day, purchase_count, quote_spent, asset_bought, avg_price, created_at
		FROM daily_summaries
		WHERE strategy_id = $1
		ORDER BY day DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing daily summaries: %w", err)
	}
	defer rows.Close()

	var out []summary.DailySummary
	for rows.Next() {
		var s summary.DailySummary
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.Day, &s.PurchaseCount,
			&s.QuoteSpent, &s.AssetBought, &s.AvgPrice, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning daily summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
