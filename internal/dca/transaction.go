package dca

import (
	"time"
)

// Transaction is one executed DCA purchase. Transactions are write-once:
// nothing in the service updates or deletes them after they are recorded.
type Transaction struct {
	ID              string    `json:"id"`
	StrategyID      string    `json:"strategy_id"`
	Amount          float64   `json:"amount"`       // Quote currency spent
	AssetPrice      float64   `json:"asset_price"`  // Price at execution
	AssetAmount     float64   `json:"asset_amount"` // Amount / AssetPrice
	TriggerSignalID string    `json:"trigger_signal_id,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}
