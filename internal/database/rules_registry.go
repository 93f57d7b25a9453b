package database

import (
	"context"

	"dca-autopilot/internal/rules"
)

// RuleRegistry adapts the repository's rule methods to the registry
// interface the engine consumes
type RuleRegistry struct {
	repo *Repository
}

// NewRuleRegistry creates a database-backed rule registry
func NewRuleRegistry(repo *Repository) *RuleRegistry {
	return &RuleRegistry{repo: repo}
}

func (r *RuleRegistry) Add(ctx context.Context, rule rules.AutomationRule) (rules.AutomationRule, error) {
	return r.repo.Add(ctx, rule)
}

func (r *RuleRegistry) Update(ctx context.Context, rule rules.AutomationRule) (rules.AutomationRule, error) {
	return r.repo.UpdateRule(ctx, rule)
}

func (r *RuleRegistry) Remove(ctx context.Context, id string) error {
	return r.repo.RemoveRule(ctx, id)
}

func (r *RuleRegistry) Get(ctx context.Context, id string) (rules.AutomationRule, error) {
	return r.repo.GetRule(ctx, id)
}

func (r *RuleRegistry) List(ctx context.Context, userID string) ([]rules.AutomationRule, error) {
	return r.repo.ListRules(ctx, userID)
}

func (r *RuleRegistry) Active(ctx context.Context) ([]rules.AutomationRule, error) {
	return r.repo.ActiveRules(ctx)
}
