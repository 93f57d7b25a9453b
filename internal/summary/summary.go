// Package summary aggregates executed purchases into per-strategy daily
// rollups for the dashboard's history views.
package summary

import (
	"context"
	"sort"
	"time"

	"dca-autopilot/internal/dca"
)

// DailySummary is one strategy's purchase activity for one UTC day
type DailySummary struct {
	ID            string    `json:"id"`
	StrategyID    string    `json:"strategy_id"`
	Day           time.Time `json:"day"` // Midnight UTC of the summarized day
	PurchaseCount int       `json:"purchase_count"`
	QuoteSpent    float64   `json:"quote_spent"`
	AssetBought   float64   `json:"asset_bought"`
	AvgPrice      float64   `json:"avg_price"` // Volume-weighted: QuoteSpent / AssetBought
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists daily summaries. Recomputing a day overwrites the
// previous rollup for that strategy and day.
type Store interface {
	UpsertDailySummary(ctx context.Context, s DailySummary) error
	ListDailySummaries(ctx context.Context, strategyID string, limit int) ([]DailySummary, error)
}

// TransactionSource provides the transactions to aggregate
type TransactionSource interface {
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]dca.Transaction, error)
}

// Aggregate rolls a day's transactions up per strategy. Transactions
// outside [day, day+24h) are ignored; the result is ordered by strategy
// ID for stable output.
func Aggregate(txs []dca.Transaction, day time.Time) []DailySummary {
	day = day.UTC().Truncate(24 * time.Hour)
	end := day.Add(24 * time.Hour)

	byStrategy := make(map[string]*DailySummary)
	for _, tx := range txs {
		at := tx.ExecutedAt.UTC()
		if at.Before(day) || !at.Before(end) {
			continue
		}

		s, ok := byStrategy[tx.StrategyID]
		if !ok {
			s = &DailySummary{StrategyID: tx.StrategyID, Day: day}
			byStrategy[tx.StrategyID] = s
		}
		s.PurchaseCount++
		s.QuoteSpent += tx.Amount
		s.AssetBought += tx.AssetAmount
	}

	out := make([]DailySummary, 0, len(byStrategy))
	for _, s := range byStrategy {
		if s.AssetBought > 0 {
			s.AvgPrice = s.QuoteSpent / s.AssetBought
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}
