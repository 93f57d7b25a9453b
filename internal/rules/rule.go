package rules

import (
	"errors"
	"fmt"
	"time"

	"dca-autopilot/internal/signals"
)

// ErrInvalidRule wraps every validation failure so callers can map them to
// a client error without inspecting messages
var ErrInvalidRule = errors.New("invalid automation rule")

// RuleConditions narrows which signals a rule reacts to
type RuleConditions struct {
	Indicators    []string `json:"indicators"`     // Indicator names the rule listens to
	MinConfidence float64  `json:"min_confidence"` // 0.0 to 1.0
	Actions       []string `json:"actions"`        // Actions the rule reacts to
}

// AutomationRule binds a DCA strategy to signal conditions. When enough
// matching signals arrive, the engine adjusts and executes the strategy's
// purchase.
type AutomationRule struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	StrategyID      string         `json:"strategy_id"`
	SignalThreshold float64        `json:"signal_threshold"` // Minimum signal strength, 0.0 to 1.0
	MaxAdjustment   float64        `json:"max_adjustment"`   // Adjustment cap, 0.0 to 2.0
	IsActive        bool           `json:"is_active"`
	Conditions      RuleConditions `json:"conditions"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate rejects rules with out-of-range or unknown fields. Values are
// never clamped; a bad rule is returned to the caller untouched.
func (r *AutomationRule) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRule)
	}
	if r.StrategyID == "" {
		return fmt.Errorf("%w: strategy id is required", ErrInvalidRule)
	}
	if r.SignalThreshold < 0 || r.SignalThreshold > 1 {
		return fmt.Errorf("%w: signal threshold must be within [0,1], got %v", ErrInvalidRule, r.SignalThreshold)
	}
	if r.MaxAdjustment < 0 || r.MaxAdjustment > 2 {
		return fmt.Errorf("%w: max adjustment must be within [0,2], got %v", ErrInvalidRule, r.MaxAdjustment)
	}
	if r.Conditions.MinConfidence < 0 || r.Conditions.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be within [0,1], got %v", ErrInvalidRule, r.Conditions.MinConfidence)
	}
	if len(r.Conditions.Indicators) == 0 {
		return fmt.Errorf("%w: at least one indicator is required", ErrInvalidRule)
	}
	for _, ind := range r.Conditions.Indicators {
		if !signals.ValidIndicator(ind) {
			return fmt.Errorf("%w: unknown indicator %q", ErrInvalidRule, ind)
		}
	}
	if len(r.Conditions.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for _, action := range r.Conditions.Actions {
		if !signals.ValidAction(action) {
			return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, action)
		}
	}
	return nil
}

// Matches reports whether a signal clears every filter of this rule:
// indicator and action membership, the rule's confidence floor, and the
// rule's strength threshold.
func (r *AutomationRule) Matches(sig signals.TradingSignal) bool {
	if !containsString(r.Conditions.Indicators, string(sig.Indicator)) {
		return false
	}
	if !containsString(r.Conditions.Actions, string(sig.Action)) {
		return false
	}
	if sig.Confidence < r.Conditions.MinConfidence {
		return false
	}
	if sig.Strength < r.SignalThreshold {
		return false
	}
	return true
}

// FilterSignals returns the subset of batch this rule reacts to
func (r *AutomationRule) FilterSignals(batch []signals.TradingSignal) []signals.TradingSignal {
	var matched []signals.TradingSignal
	for _, sig := range batch {
		if r.Matches(sig) {
			matched = append(matched, sig)
		}
	}
	return matched
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
