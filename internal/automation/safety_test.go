package automation

import (
	"strings"
	"testing"
	"time"
)

func TestSafetyLimitsAllowsByDefault(t *testing.T) {
	limits := NewSafetyLimits(nil)

	ok, reason := limits.CanExecute()
	if !ok {
		t.Errorf("Expected fresh limits to allow, got: %s", reason)
	}
	if limits.State() != SafetyClosed {
		t.Errorf("Expected closed state, got %s", limits.State())
	}
}

func TestSafetyLimitsDisabled(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{Enabled: false})

	// Disabled limits never count or block anything
	for i := 0; i < 100; i++ {
		limits.RecordFailure()
	}
	ok, _ := limits.CanExecute()
	if !ok {
		t.Error("Expected disabled limits to always allow")
	}
	if limits.State() != SafetyClosed {
		t.Errorf("Expected closed state, got %s", limits.State())
	}
}

func TestSafetyLimitsHourlyCap(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    3,
		MaxPurchasesPerDay:     50,
		MaxConsecutiveFailures: 5,
		CooldownMinutes:        30,
	})

	for i := 0; i < 3; i++ {
		ok, reason := limits.CanExecute()
		if !ok {
			t.Fatalf("Purchase %d unexpectedly blocked: %s", i+1, reason)
		}
		limits.RecordPurchase()
	}

	ok, reason := limits.CanExecute()
	if ok {
		t.Error("Expected hourly cap to block fourth purchase")
	}
	if !strings.Contains(reason, "hourly") {
		t.Errorf("Expected hourly reason, got %q", reason)
	}
}

func TestSafetyLimitsDailyCap(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    100,
		MaxPurchasesPerDay:     2,
		MaxConsecutiveFailures: 5,
		CooldownMinutes:        30,
	})

	limits.RecordPurchase()
	limits.RecordPurchase()

	ok, reason := limits.CanExecute()
	if ok {
		t.Error("Expected daily cap to block")
	}
	if !strings.Contains(reason, "daily") {
		t.Errorf("Expected daily reason, got %q", reason)
	}
}

func TestSafetyLimitsTripsOnConsecutiveFailures(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    10,
		MaxPurchasesPerDay:     50,
		MaxConsecutiveFailures: 3,
		CooldownMinutes:        30,
	})

	tripped := make(chan string, 1)
	limits.OnTrip(func(reason string) {
		tripped <- reason
	})

	limits.RecordFailure()
	limits.RecordFailure()
	if limits.State() != SafetyClosed {
		t.Error("Breaker tripped too early")
	}

	limits.RecordFailure()
	if limits.State() != SafetyOpen {
		t.Error("Expected breaker to trip after third failure")
	}

	select {
	case reason := <-tripped:
		if !strings.Contains(reason, "consecutive") {
			t.Errorf("Expected consecutive failure reason, got %q", reason)
		}
	case <-time.After(time.Second):
		t.Error("Trip callback was not invoked")
	}

	ok, reason := limits.CanExecute()
	if ok {
		t.Error("Expected open breaker to block execution")
	}
	if !strings.Contains(reason, "breaker open") {
		t.Errorf("Expected breaker reason, got %q", reason)
	}
}

func TestSafetyLimitsSuccessResetsFailures(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    10,
		MaxPurchasesPerDay:     50,
		MaxConsecutiveFailures: 3,
		CooldownMinutes:        30,
	})

	limits.RecordFailure()
	limits.RecordFailure()
	limits.RecordPurchase()
	limits.RecordFailure()
	limits.RecordFailure()

	if limits.State() != SafetyClosed {
		t.Error("Expected success to reset the failure streak")
	}

	stats := limits.Stats()
	if stats.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", stats.ConsecutiveFailures)
	}
}

func TestSafetyLimitsForceReset(t *testing.T) {
	limits := NewSafetyLimits(&SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    10,
		MaxPurchasesPerDay:     50,
		MaxConsecutiveFailures: 1,
		CooldownMinutes:        30,
	})

	limits.RecordFailure()
	if limits.State() != SafetyOpen {
		t.Fatal("Expected breaker to trip")
	}

	limits.ForceReset()
	if limits.State() != SafetyClosed {
		t.Error("Expected force reset to close the breaker")
	}
	ok, reason := limits.CanExecute()
	if !ok {
		t.Errorf("Expected execution after reset, got: %s", reason)
	}
}

func TestSafetyLimitsStats(t *testing.T) {
	limits := NewSafetyLimits(nil)
	limits.RecordPurchase()
	limits.RecordPurchase()

	stats := limits.Stats()
	if !stats.Enabled {
		t.Error("Expected enabled stats")
	}
	if stats.HourlyPurchases != 2 || stats.DailyPurchases != 2 {
		t.Errorf("Expected 2/2 purchase counts, got %d/%d", stats.HourlyPurchases, stats.DailyPurchases)
	}
	if stats.State != string(SafetyClosed) {
		t.Errorf("Expected closed state, got %s", stats.State)
	}
}
