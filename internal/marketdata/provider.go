// Package marketdata resolves live and historical prices for the
// symbols the automation engine trades. The default client speaks the
// CoinGecko HTTP API; a simulated provider covers development and tests.
package marketdata

import (
	"context"
	"errors"
	"time"
)

// Provider errors
var (
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrHistoryUnavailable = errors.New("price history unavailable")
	ErrUnknownSymbol      = errors.New("unknown symbol")
)

// PricePoint is one observation in a price history series
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Provider resolves market prices. Implementations must be safe for
// concurrent use; the engine and the API layer share one provider.
type Provider interface {
	// Price returns the current quote-currency price for a symbol.
	Price(ctx context.Context, symbol string) (float64, error)
	// History returns daily price points covering the last `days` days,
	// oldest first.
	History(ctx context.Context, symbol string, days int) ([]PricePoint, error)
}
