package automation

import (
	"fmt"
	"time"
)

// Gate decision reasons
const (
	ReasonCooldown      = "cooldown"
	ReasonLowConfidence = "low_confidence"
	ReasonLowAdjustment = "low_adjustment"
)

// GateDecision is the outcome of the execution gate check
type GateDecision struct {
	Allowed bool
	Reason  string // Set only when rejected
}

// EvaluateGate is the anti-overtrading guard that runs before every
// purchase. It rejects when the strategy executed within the cooldown
// window, when the matching signals' average confidence sits below the
// floor, or when the computed adjustment is too weak to act on.
//
// The gate is a pure function of its inputs; it performs no I/O and is
// the only defense against duplicate near-simultaneous purchases.
func EvaluateGate(lastExecutedAt *time.Time, now time.Time, avgConfidence, adjustment float64, cooldown time.Duration, confidenceFloor, adjustmentFloor float64) GateDecision {
	if lastExecutedAt != nil {
		if elapsed := now.Sub(*lastExecutedAt); elapsed < cooldown {
			return GateDecision{
				Reason: fmt.Sprintf("%s: %v since last execution, need %v", ReasonCooldown, elapsed.Round(time.Second), cooldown),
			}
		}
	}

	if avgConfidence < confidenceFloor {
		return GateDecision{
			Reason: fmt.Sprintf("%s: avg confidence %.3f below floor %.3f", ReasonLowConfidence, avgConfidence, confidenceFloor),
		}
	}

	if adjustment < adjustmentFloor {
		return GateDecision{
			Reason: fmt.Sprintf("%s: adjustment %.3f below floor %.3f", ReasonLowAdjustment, adjustment, adjustmentFloor),
		}
	}

	return GateDecision{Allowed: true}
}
