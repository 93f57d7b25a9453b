// Package ledger records executed DCA purchases. The transaction log is
// append-only: entries are written exactly once and never modified.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dca-autopilot/internal/dca"
)

// Ledger errors
var (
	ErrNilTransaction    = errors.New("transaction cannot be nil")
	ErrEmptyStrategyID   = errors.New("strategy id cannot be empty")
	ErrTransactionExists = errors.New("transaction already recorded")
	ErrInvalidAmount     = errors.New("transaction amount must be positive")
	ErrInvalidPrice      = errors.New("asset price must be positive")
)

// TransactionRepository defines the interface for transaction persistence
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *dca.Transaction) error
	GetLastTransaction(ctx context.Context, strategyID string) (*dca.Transaction, error)
	GetTransactionsByStrategy(ctx context.Context, strategyID string, limit int) ([]dca.Transaction, error)
	GetRecentTransactions(ctx context.Context, limit int) ([]dca.Transaction, error)
}

// Ledger wraps a TransactionRepository with write-once enforcement and a
// most-recent-per-strategy cache so the execution gate's cooldown lookup
// stays off the storage path during passes.
type Ledger struct {
	mu     sync.RWMutex
	repo   TransactionRepository
	logger zerolog.Logger

	lastByStrategy map[string]*dca.Transaction
	recordedIDs    map[string]bool
	recordedCount  int64
}

// New creates a Ledger on top of a repository
func New(repo TransactionRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:           repo,
		logger:         logger.With().Str("component", "Ledger").Logger(),
		lastByStrategy: make(map[string]*dca.Transaction),
		recordedIDs:    make(map[string]bool),
	}
}

// Record appends a transaction. A missing ID is assigned; recording the
// same ID twice returns ErrTransactionExists.
func (l *Ledger) Record(ctx context.Context, tx *dca.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}
	if tx.StrategyID == "" {
		return ErrEmptyStrategyID
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidAmount, tx.Amount)
	}
	if tx.AssetPrice <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPrice, tx.AssetPrice)
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	l.mu.Lock()
	if l.recordedIDs[tx.ID] {
		l.mu.Unlock()
		return ErrTransactionExists
	}
	l.mu.Unlock()

	if err := l.repo.CreateTransaction(ctx, tx); err != nil {
		l.logger.Error().
			Err(err).
			Str("strategy_id", tx.StrategyID).
			Float64("amount", tx.Amount).
			Msg("Failed to persist transaction")
		return fmt.Errorf("recording transaction: %w", err)
	}

	l.mu.Lock()
	l.recordedIDs[tx.ID] = true
	l.recordedCount++
	stored := *tx
	l.lastByStrategy[tx.StrategyID] = &stored
	l.mu.Unlock()

	l.logger.Info().
		Str("transaction_id", tx.ID).
		Str("strategy_id", tx.StrategyID).
		Float64("amount", tx.Amount).
		Float64("asset_price", tx.AssetPrice).
		Float64("asset_amount", tx.AssetAmount).
		Msg("Transaction recorded")

	return nil
}

// LastForStrategy returns the most recent transaction for a strategy, or
// nil when the strategy has never executed. The cached copy is preferred;
// a miss falls through to the repository.
func (l *Ledger) LastForStrategy(ctx context.Context, strategyID string) (*dca.Transaction, error) {
	if strategyID == "" {
		return nil, ErrEmptyStrategyID
	}

	l.mu.RLock()
	if cached, ok := l.lastByStrategy[strategyID]; ok {
		out := *cached
		l.mu.RUnlock()
		return &out, nil
	}
	l.mu.RUnlock()

	tx, err := l.repo.GetLastTransaction(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("loading last transaction: %w", err)
	}
	if tx == nil {
		return nil, nil
	}

	l.mu.Lock()
	stored := *tx
	l.lastByStrategy[strategyID] = &stored
	l.mu.Unlock()

	out := *tx
	return &out, nil
}

// ListForStrategy returns up to limit transactions for a strategy, newest
// first
func (l *Ledger) ListForStrategy(ctx context.Context, strategyID string, limit int) ([]dca.Transaction, error) {
	if strategyID == "" {
		return nil, ErrEmptyStrategyID
	}
	if limit <= 0 {
		limit = 50
	}
	return l.repo.GetTransactionsByStrategy(ctx, strategyID, limit)
}

// Recent returns up to limit transactions across all strategies, newest
// first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]dca.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.GetRecentTransactions(ctx, limit)
}

// RecordedCount returns how many transactions this process has recorded
func (l *Ledger) RecordedCount() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recordedCount
}
