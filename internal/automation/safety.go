package automation

import (
	"fmt"
	"sync"
	"time"
)

// SafetyState represents the purchase safety breaker state
type SafetyState string

const (
	SafetyClosed SafetyState = "closed" // Normal operation
	SafetyOpen   SafetyState = "open"   // Automated purchases halted
)

// SafetyConfig holds purchase safety limit configuration
type SafetyConfig struct {
	Enabled                bool `json:"enabled"`
	MaxPurchasesPerHour    int  `json:"max_purchases_per_hour"`
	MaxPurchasesPerDay     int  `json:"max_purchases_per_day"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"` // Execution failures before trip
	CooldownMinutes        int  `json:"cooldown_minutes"`         // Halt duration after trip
}

// DefaultSafetyConfig returns generous defaults that only stop a
// runaway engine, not normal operation
func DefaultSafetyConfig() *SafetyConfig {
	return &SafetyConfig{
		Enabled:                true,
		MaxPurchasesPerHour:    10,
		MaxPurchasesPerDay:     50,
		MaxConsecutiveFailures: 5,
		CooldownMinutes:        30,
	}
}

// SafetyLimits is a purchase-side breaker that runs after the execution
// gate. It bounds how many automated purchases the engine may make per
// hour and per day, and halts execution after repeated failures.
type SafetyLimits struct {
	config              *SafetyConfig
	state               SafetyState
	hourlyPurchases     int
	dailyPurchases      int
	consecutiveFailures int
	lastTripTime        time.Time
	hourlyResetTime     time.Time
	dailyResetTime      time.Time
	tripReason          string
	mu                  sync.RWMutex
	onTrip              func(reason string)
}

// SafetyStats is a snapshot of the breaker state for status reporting
type SafetyStats struct {
	Enabled             bool      `json:"enabled"`
	State               string    `json:"state"`
	HourlyPurchases     int       `json:"hourly_purchases"`
	DailyPurchases      int       `json:"daily_purchases"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TripReason          string    `json:"trip_reason,omitempty"`
	LastTripTime        time.Time `json:"last_trip_time"`
}

// NewSafetyLimits creates a purchase safety breaker
func NewSafetyLimits(config *SafetyConfig) *SafetyLimits {
	if config == nil {
		config = DefaultSafetyConfig()
	}

	now := time.Now()
	return &SafetyLimits{
		config:          config,
		state:           SafetyClosed,
		hourlyResetTime: now.Add(time.Hour),
		dailyResetTime:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// OnTrip sets the callback invoked when the breaker trips
func (s *SafetyLimits) OnTrip(handler func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrip = handler
}

// CanExecute checks whether an automated purchase is currently allowed
func (s *SafetyLimits) CanExecute() (bool, string) {
	if !s.config.Enabled {
		return true, ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetCountersIfNeeded()

	if s.state == SafetyOpen {
		elapsed := time.Since(s.lastTripTime)
		cooldown := time.Duration(s.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("safety breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), s.tripReason)
		}

		// Cooldown passed, resume
		s.state = SafetyClosed
		s.consecutiveFailures = 0
		s.tripReason = ""
	}

	if s.hourlyPurchases >= s.config.MaxPurchasesPerHour {
		return false, fmt.Sprintf("hourly purchase limit reached: %d", s.hourlyPurchases)
	}

	if s.dailyPurchases >= s.config.MaxPurchasesPerDay {
		return false, fmt.Sprintf("daily purchase limit reached: %d", s.dailyPurchases)
	}

	return true, ""
}

// RecordPurchase records a successful automated purchase
func (s *SafetyLimits) RecordPurchase() {
	if !s.config.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetCountersIfNeeded()

	s.hourlyPurchases++
	s.dailyPurchases++
	s.consecutiveFailures = 0
}

// RecordFailure records a failed execution attempt. Enough failures in a
// row trip the breaker.
func (s *SafetyLimits) RecordFailure() {
	if !s.config.Enabled {
		return
	}

	s.mu.Lock()
	s.consecutiveFailures++
	shouldTrip := s.state == SafetyClosed && s.consecutiveFailures >= s.config.MaxConsecutiveFailures
	var reason string
	if shouldTrip {
		reason = fmt.Sprintf("consecutive execution failures: %d", s.consecutiveFailures)
		s.state = SafetyOpen
		s.lastTripTime = time.Now()
		s.tripReason = reason
	}
	handler := s.onTrip
	s.mu.Unlock()

	if shouldTrip && handler != nil {
		go handler(reason)
	}
}

// ForceReset manually closes the breaker and clears counters
func (s *SafetyLimits) ForceReset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = SafetyClosed
	s.consecutiveFailures = 0
	s.tripReason = ""
}

// State returns the current breaker state
func (s *SafetyLimits) State() SafetyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns a snapshot of the breaker for status reporting
func (s *SafetyLimits) Stats() SafetyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SafetyStats{
		Enabled:             s.config.Enabled,
		State:               string(s.state),
		HourlyPurchases:     s.hourlyPurchases,
		DailyPurchases:      s.dailyPurchases,
		ConsecutiveFailures: s.consecutiveFailures,
		TripReason:          s.tripReason,
		LastTripTime:        s.lastTripTime,
	}
}

// resetCountersIfNeeded resets time-based counters. Caller must hold the
// write lock.
func (s *SafetyLimits) resetCountersIfNeeded() {
	now := time.Now()

	if now.After(s.hourlyResetTime) {
		s.hourlyPurchases = 0
		s.hourlyResetTime = now.Add(time.Hour)
	}

	if now.After(s.dailyResetTime) {
		s.dailyPurchases = 0
		s.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}
