package signals

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedSource generates pseudo-random signals for every configured
// symbol and indicator. It stands in for a real indicator pipeline so the
// automation engine can run without market analysis infrastructure.
type SimulatedSource struct {
	mu      sync.Mutex
	symbols []string
	rng     *rand.Rand
}

// NewSimulatedSource creates a simulated source for the given symbols.
// A zero seed uses the current time; a fixed seed produces a repeatable
// signal sequence.
func NewSimulatedSource(symbols []string, seed int64) *SimulatedSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSource{
		symbols: symbols,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Generate emits one signal per (symbol, indicator) pair
func (s *SimulatedSource) Generate(ctx context.Context) ([]TradingSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	batch := make([]TradingSignal, 0, len(s.symbols)*len(AllIndicators))
	for _, symbol := range s.symbols {
		for _, indicator := range AllIndicators {
			strength := s.rng.Float64()
			bullish := s.rng.Float64() < 0.5
			batch = append(batch, TradingSignal{
				ID:         uuid.New().String(),
				Indicator:  indicator,
				Action:     actionFor(strength, bullish),
				Strength:   strength,
				Confidence: s.rng.Float64(),
				Symbol:     symbol,
				Timestamp:  now,
			})
		}
	}
	return batch, nil
}

// actionFor maps signal strength to an action. Strong readings escalate to
// the strong_* variants; weak readings collapse to hold.
func actionFor(strength float64, bullish bool) Action {
	switch {
	case strength >= 0.75:
		if bullish {
			return ActionStrongBuy
		}
		return ActionStrongSell
	case strength >= 0.4:
		if bullish {
			return ActionBuy
		}
		return ActionSell
	default:
		return ActionHold
	}
}
