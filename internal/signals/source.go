package signals

import "context"

// Source produces one batch of signals per evaluation pass. Implementations
// must be safe for use from a single engine goroutine; the engine never calls
// Generate concurrently with itself.
type Source interface {
	Generate(ctx context.Context) ([]TradingSignal, error)
}
