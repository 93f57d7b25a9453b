package dca

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStrategyStore is an in-process StrategyStore for running without a
// database (development, the offline simulator, tests).
type MemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewMemoryStrategyStore creates an empty in-memory strategy store
func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{
		strategies: make(map[string]Strategy),
	}
}

// Get returns a strategy by ID
func (m *MemoryStrategyStore) Get(ctx context.Context, id string) (Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strategy, ok := m.strategies[id]
	if !ok {
		return Strategy{}, ErrStrategyNotFound
	}
	return strategy, nil
}

// List returns strategies for a user, or all strategies when userID is
// empty, ordered by creation time
func (m *MemoryStrategyStore) List(ctx context.Context, userID string) ([]Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Strategy
	for _, strategy := range m.strategies {
		if userID != "" && strategy.UserID != userID {
			continue
		}
		out = append(out, strategy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create validates and stores a new strategy, assigning an ID when absent
func (m *MemoryStrategyStore) Create(ctx context.Context, strategy Strategy) (Strategy, error) {
	if err := strategy.Validate(); err != nil {
		return Strategy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strategy.ID == "" {
		strategy.ID = uuid.New().String()
	}
	now := time.Now()
	strategy.CreatedAt = now
	strategy.UpdatedAt = now

	m.strategies[strategy.ID] = strategy
	return strategy, nil
}

// Update validates and replaces an existing strategy
func (m *MemoryStrategyStore) Update(ctx context.Context, strategy Strategy) (Strategy, error) {
	if err := strategy.Validate(); err != nil {
		return Strategy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.strategies[strategy.ID]
	if !ok {
		return Strategy{}, ErrStrategyNotFound
	}

	strategy.CreatedAt = existing.CreatedAt
	strategy.UpdatedAt = time.Now()

	m.strategies[strategy.ID] = strategy
	return strategy, nil
}

// SetActive toggles a strategy without touching its other fields
func (m *MemoryStrategyStore) SetActive(ctx context.Context, id string, active bool) (Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	strategy, ok := m.strategies[id]
	if !ok {
		return Strategy{}, ErrStrategyNotFound
	}

	strategy.IsActive = active
	strategy.UpdatedAt = time.Now()

	m.strategies[id] = strategy
	return strategy, nil
}
