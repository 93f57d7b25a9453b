package automation

import (
	"strings"
	"testing"
	"time"
)

func TestEvaluateGateAllows(t *testing.T) {
	now := time.Now()
	past := now.Add(-20 * time.Minute)

	decision := EvaluateGate(&past, now, 0.8, 0.5, 15*time.Minute, 0.7, 0.5)
	if !decision.Allowed {
		t.Errorf("Expected gate to allow, got rejection: %s", decision.Reason)
	}
	if decision.Reason != "" {
		t.Errorf("Expected empty reason on allow, got %q", decision.Reason)
	}
}

func TestEvaluateGateFirstExecution(t *testing.T) {
	// No prior execution means no cooldown applies
	decision := EvaluateGate(nil, time.Now(), 0.75, 0.6, 15*time.Minute, 0.7, 0.5)
	if !decision.Allowed {
		t.Errorf("Expected first execution to pass, got rejection: %s", decision.Reason)
	}
}

func TestEvaluateGateCooldown(t *testing.T) {
	now := time.Now()
	recent := now.Add(-5 * time.Minute)

	decision := EvaluateGate(&recent, now, 0.9, 0.9, 15*time.Minute, 0.7, 0.5)
	if decision.Allowed {
		t.Error("Expected cooldown rejection")
	}
	if !strings.HasPrefix(decision.Reason, ReasonCooldown) {
		t.Errorf("Expected cooldown reason, got %q", decision.Reason)
	}
}

func TestEvaluateGateCooldownBoundary(t *testing.T) {
	now := time.Now()
	exact := now.Add(-15 * time.Minute)

	// Exactly at the cooldown boundary the gate opens again
	decision := EvaluateGate(&exact, now, 0.8, 0.6, 15*time.Minute, 0.7, 0.5)
	if !decision.Allowed {
		t.Errorf("Expected boundary to allow, got rejection: %s", decision.Reason)
	}
}

func TestEvaluateGateLowConfidence(t *testing.T) {
	decision := EvaluateGate(nil, time.Now(), 0.69, 0.8, 15*time.Minute, 0.7, 0.5)
	if decision.Allowed {
		t.Error("Expected low confidence rejection")
	}
	if !strings.HasPrefix(decision.Reason, ReasonLowConfidence) {
		t.Errorf("Expected low confidence reason, got %q", decision.Reason)
	}
}

func TestEvaluateGateConfidenceAtFloor(t *testing.T) {
	decision := EvaluateGate(nil, time.Now(), 0.7, 0.6, 15*time.Minute, 0.7, 0.5)
	if !decision.Allowed {
		t.Errorf("Expected confidence at floor to pass, got rejection: %s", decision.Reason)
	}
}

func TestEvaluateGateLowAdjustment(t *testing.T) {
	decision := EvaluateGate(nil, time.Now(), 0.9, 0.49, 15*time.Minute, 0.7, 0.5)
	if decision.Allowed {
		t.Error("Expected low adjustment rejection")
	}
	if !strings.HasPrefix(decision.Reason, ReasonLowAdjustment) {
		t.Errorf("Expected low adjustment reason, got %q", decision.Reason)
	}
}

func TestEvaluateGateCooldownCheckedFirst(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)

	// All three checks would fail; cooldown must win
	decision := EvaluateGate(&recent, now, 0.1, 0.1, 15*time.Minute, 0.7, 0.5)
	if decision.Allowed {
		t.Error("Expected rejection")
	}
	if !strings.HasPrefix(decision.Reason, ReasonCooldown) {
		t.Errorf("Expected cooldown to be reported first, got %q", decision.Reason)
	}
}
