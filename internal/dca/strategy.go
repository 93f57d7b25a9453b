package dca

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy frequency constants
const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// Store errors
var (
	ErrStrategyNotFound = errors.New("dca strategy not found")
	ErrInvalidStrategy  = errors.New("invalid dca strategy")
)

// Strategy is a user's recurring purchase plan. The automation engine only
// ever reads strategies; creation and editing happen through the API.
type Strategy struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Amount    float64   `json:"amount"`    // Base purchase size in quote currency
	Frequency string    `json:"frequency"` // daily, weekly, biweekly, monthly
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects strategies the executor could not price or size
func (s *Strategy) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidStrategy)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStrategy)
	}
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidStrategy)
	}
	if s.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidStrategy, s.Amount)
	}
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidStrategy, s.Frequency)
	}
	return nil
}

// StrategyStore provides access to DCA strategies. Get and List are the
// only methods the engine touches; the rest serve the dashboard API.
type StrategyStore interface {
	Get(ctx context.Context, id string) (Strategy, error)
	List(ctx context.Context, userID string) ([]Strategy, error)
	Create(ctx context.Context, strategy Strategy) (Strategy, error)
	Update(ctx context.Context, strategy Strategy) (Strategy, error)
	SetActive(ctx context.Context, id string, active bool) (Strategy, error)
}
