package ledger

import (
	"context"
	"sort"
	"sync"

	"dca-autopilot/internal/dca"
)

// MemoryTransactionRepository is an in-process TransactionRepository for
// running without a database (development, the offline simulator, tests).
type MemoryTransactionRepository struct {
	mu           sync.RWMutex
	transactions []dca.Transaction
}

// NewMemoryTransactionRepository creates an empty in-memory repository
func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{}
}

// CreateTransaction appends a transaction to the in-memory log
func (m *MemoryTransactionRepository) CreateTransaction(ctx context.Context, tx *dca.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions = append(m.transactions, *tx)
	return nil
}

// GetLastTransaction returns the transaction with the latest ExecutedAt for
// a strategy, or nil when none exists
func (m *MemoryTransactionRepository) GetLastTransaction(ctx context.Context, strategyID string) (*dca.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *dca.Transaction
	for i := range m.transactions {
		tx := &m.transactions[i]
		if tx.StrategyID != strategyID {
			continue
		}
		if last == nil || tx.ExecutedAt.After(last.ExecutedAt) {
			last = tx
		}
	}
	if last == nil {
		return nil, nil
	}
	out := *last
	return &out, nil
}

// GetTransactionsByStrategy returns up to limit transactions for a
// strategy, newest first
func (m *MemoryTransactionRepository) GetTransactionsByStrategy(ctx context.Context, strategyID string, limit int) ([]dca.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []dca.Transaction
	for _, tx := range m.transactions {
		if tx.StrategyID == strategyID {
			out = append(out, tx)
		}
	}
	return sortAndLimit(out, limit), nil
}

// GetRecentTransactions returns up to limit transactions across all
// strategies, newest first
func (m *MemoryTransactionRepository) GetRecentTransactions(ctx context.Context, limit int) ([]dca.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]dca.Transaction(nil), m.transactions...)
	return sortAndLimit(out, limit), nil
}

func sortAndLimit(list []dca.Transaction, limit int) []dca.Transaction {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ExecutedAt.After(list[j].ExecutedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
