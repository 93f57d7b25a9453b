package rules

import (
	"errors"
	"testing"
	"time"

	"dca-autopilot/internal/signals"
)

// validRule returns a rule that passes validation; tests tweak single
// fields from here
func validRule() AutomationRule {
	return AutomationRule{
		UserID:          "user-1",
		StrategyID:      "strategy-1",
		SignalThreshold: 0.6,
		MaxAdjustment:   0.5,
		IsActive:        true,
		Conditions: RuleConditions{
			Indicators:    []string{"RSI"},
			MinConfidence: 0.7,
			Actions:       []string{"buy", "strong_buy"},
		},
	}
}

func matchingSignal() signals.TradingSignal {
	return signals.TradingSignal{
		ID:         "sig-1",
		Indicator:  signals.IndicatorRSI,
		Action:     signals.ActionBuy,
		Strength:   0.75,
		Confidence: 0.85,
		Symbol:     "BTC",
		Timestamp:  time.Now(),
	}
}

// ==================== VALIDATION ====================

func TestValidate_AcceptsValidRule(t *testing.T) {
	rule := validRule()
	if err := rule.Validate(); err != nil {
		t.Errorf("Expected valid rule to pass, got: %v", err)
	}
}

func TestValidate_RejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AutomationRule)
	}{
		{"threshold below zero", func(r *AutomationRule) { r.SignalThreshold = -0.1 }},
		{"threshold above one", func(r *AutomationRule) { r.SignalThreshold = 1.1 }},
		{"max adjustment below zero", func(r *AutomationRule) { r.MaxAdjustment = -0.5 }},
		{"max adjustment above two", func(r *AutomationRule) { r.MaxAdjustment = 2.5 }},
		{"min confidence below zero", func(r *AutomationRule) { r.Conditions.MinConfidence = -1 }},
		{"min confidence above one", func(r *AutomationRule) { r.Conditions.MinConfidence = 1.5 }},
		{"missing user", func(r *AutomationRule) { r.UserID = "" }},
		{"missing strategy", func(r *AutomationRule) { r.StrategyID = "" }},
		{"empty indicators", func(r *AutomationRule) { r.Conditions.Indicators = nil }},
		{"unknown indicator", func(r *AutomationRule) { r.Conditions.Indicators = []string{"EMA"} }},
		{"empty actions", func(r *AutomationRule) { r.Conditions.Actions = nil }},
		{"unknown action", func(r *AutomationRule) { r.Conditions.Actions = []string{"short"} }},
	}

	for _, tc := range cases {
		rule := validRule()
		tc.mutate(&rule)
		err := rule.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: expected ErrInvalidRule, got: %v", tc.name, err)
		}
	}
}

func TestValidate_AcceptsBoundaryValues(t *testing.T) {
	rule := validRule()
	rule.SignalThreshold = 0
	rule.MaxAdjustment = 2
	rule.Conditions.MinConfidence = 1

	if err := rule.Validate(); err != nil {
		t.Errorf("Expected boundary values to pass, got: %v", err)
	}
}

// ==================== SIGNAL MATCHING ====================

func TestMatches_AcceptsMatchingSignal(t *testing.T) {
	rule := validRule()
	if !rule.Matches(matchingSignal()) {
		t.Error("Expected signal to match rule")
	}
}

func TestMatches_RejectsWrongIndicator(t *testing.T) {
	rule := validRule()
	sig := matchingSignal()
	sig.Indicator = signals.IndicatorMACD

	if rule.Matches(sig) {
		t.Error("Expected mismatch on indicator not in conditions")
	}
}

func TestMatches_RejectsWrongAction(t *testing.T) {
	rule := validRule()
	sig := matchingSignal()
	sig.Action = signals.ActionSell

	if rule.Matches(sig) {
		t.Error("Expected mismatch on action not in conditions")
	}
}

func TestMatches_RejectsLowConfidence(t *testing.T) {
	rule := validRule()
	sig := matchingSignal()
	sig.Confidence = 0.69

	if rule.Matches(sig) {
		t.Error("Expected mismatch on confidence below floor")
	}
}

func TestMatches_RejectsLowStrength(t *testing.T) {
	rule := validRule()
	sig := matchingSignal()
	sig.Strength = 0.59

	if rule.Matches(sig) {
		t.Error("Expected mismatch on strength below threshold")
	}
}

func TestMatches_AcceptsExactBoundaries(t *testing.T) {
	rule := validRule()
	sig := matchingSignal()
	sig.Confidence = 0.7
	sig.Strength = 0.6

	if !rule.Matches(sig) {
		t.Error("Expected match at exact floor values")
	}
}

func TestFilterSignals_KeepsOnlyMatches(t *testing.T) {
	rule := validRule()

	hold := matchingSignal()
	hold.ID = "sig-2"
	hold.Action = signals.ActionHold

	weak := matchingSignal()
	weak.ID = "sig-3"
	weak.Strength = 0.1

	strong := matchingSignal()
	strong.ID = "sig-4"
	strong.Action = signals.ActionStrongBuy

	batch := []signals.TradingSignal{matchingSignal(), hold, weak, strong}
	matched := rule.FilterSignals(batch)

	if len(matched) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matched))
	}
	if matched[0].ID != "sig-1" || matched[1].ID != "sig-4" {
		t.Errorf("Unexpected matched IDs: %s, %s", matched[0].ID, matched[1].ID)
	}
}

func TestFilterSignals_EmptyBatch(t *testing.T) {
	rule := validRule()
	if matched := rule.FilterSignals(nil); len(matched) != 0 {
		t.Errorf("Expected no matches from empty batch, got %d", len(matched))
	}
}
