package rules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry errors
var (
	ErrRuleNotFound  = errors.New("automation rule not found")
	ErrDuplicateRule = errors.New("automation rule already exists")
)

// Registry stores automation rules. Implementations must be safe for
// concurrent use; the engine reads rules on every pass while the API
// mutates them.
type Registry interface {
	Add(ctx context.Context, rule AutomationRule) (AutomationRule, error)
	Update(ctx context.Context, rule AutomationRule) (AutomationRule, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (AutomationRule, error)
	List(ctx context.Context, userID string) ([]AutomationRule, error)
	Active(ctx context.Context) ([]AutomationRule, error)
}

// MemoryRegistry is the default in-process Registry backed by a map
type MemoryRegistry struct {
	mu    sync.RWMutex
	rules map[string]AutomationRule
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rules: make(map[string]AutomationRule),
	}
}

// Add validates and stores a new rule. A missing ID is assigned; a
// duplicate ID is rejected. The strategy reference is intentionally not
// resolved here; a dangling strategy id surfaces as a skip during
// evaluation.
func (m *MemoryRegistry) Add(ctx context.Context, rule AutomationRule) (AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return AutomationRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	} else if _, exists := m.rules[rule.ID]; exists {
		return AutomationRule{}, ErrDuplicateRule
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	m.rules[rule.ID] = copyRule(rule)
	return rule, nil
}

// Update validates and replaces an existing rule
func (m *MemoryRegistry) Update(ctx context.Context, rule AutomationRule) (AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return AutomationRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return AutomationRule{}, ErrRuleNotFound
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	m.rules[rule.ID] = copyRule(rule)
	return rule, nil
}

// Remove deletes a rule. Removing an unknown ID is a no-op, so removal is
// safe to retry.
func (m *MemoryRegistry) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rules, id)
	return nil
}

// Get returns a single rule by ID
func (m *MemoryRegistry) Get(ctx context.Context, id string) (AutomationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return AutomationRule{}, ErrRuleNotFound
	}
	return copyRule(rule), nil
}

// List returns rules for a user, or every rule when userID is empty,
// ordered by creation time
func (m *MemoryRegistry) List(ctx context.Context, userID string) ([]AutomationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AutomationRule
	for _, rule := range m.rules {
		if userID != "" && rule.UserID != userID {
			continue
		}
		out = append(out, copyRule(rule))
	}
	sortRules(out)
	return out, nil
}

// Active returns every rule with IsActive set, ordered by creation time
func (m *MemoryRegistry) Active(ctx context.Context) ([]AutomationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AutomationRule
	for _, rule := range m.rules {
		if rule.IsActive {
			out = append(out, copyRule(rule))
		}
	}
	sortRules(out)
	return out, nil
}

// copyRule clones the rule including its condition slices so callers can
// not mutate stored state through a returned value
func copyRule(rule AutomationRule) AutomationRule {
	out := rule
	out.Conditions.Indicators = append([]string(nil), rule.Conditions.Indicators...)
	out.Conditions.Actions = append([]string(nil), rule.Conditions.Actions...)
	return out
}

func sortRules(list []AutomationRule) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
