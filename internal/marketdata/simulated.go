package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// startingPrices seed the simulated random walk per symbol
var startingPrices = map[string]float64{
	"BTC":  43000,
	"ETH":  2300,
	"SOL":  98,
	"ADA":  0.52,
	"XRP":  0.61,
	"DOGE": 0.082,
	"DOT":  7.4,
	"LTC":  72,
	"LINK": 14.8,
	"AVAX": 36,
}

// SimulatedProvider serves prices from a per-symbol random walk. It stands
// in for the real API in mock mode, the offline simulator, and tests.
type SimulatedProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

// NewSimulatedProvider creates a simulated provider. A zero seed uses the
// current time.
func NewSimulatedProvider(seed int64) *SimulatedProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	prices := make(map[string]float64, len(startingPrices))
	for symbol, price := range startingPrices {
		prices[symbol] = price
	}

	return &SimulatedProvider{
		prices: prices,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Price returns the symbol's walk position, stepped by up to ±1% per call
func (p *SimulatedProvider) Price(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}

	price *= 1 + (p.rng.Float64()-0.5)*0.02
	p.prices[symbol] = price
	return price, nil
}

// History synthesizes a daily series ending at the current walk position
func (p *SimulatedProvider) History(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 365
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}

	// Walk backwards from today's price so the series ends where Price
	// would continue.
	now := time.Now()
	points := make([]PricePoint, days)
	current := price
	for i := days - 1; i >= 0; i-- {
		points[i] = PricePoint{
			Timestamp: now.AddDate(0, 0, i-days+1),
			Price:     current,
		}
		current /= 1 + (p.rng.Float64()-0.5)*0.04
	}
	return points, nil
}
