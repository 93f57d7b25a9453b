package summary

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"dca-autopilot/internal/dca"
)

func txAt(strategyID string, at time.Time, amount, price float64) dca.Transaction {
	return dca.Transaction{
		ID:          strategyID + at.Format(time.RFC3339Nano),
		StrategyID:  strategyID,
		Amount:      amount,
		AssetPrice:  price,
		AssetAmount: amount / price,
		ExecutedAt:  at,
	}
}

func TestAggregateSingleStrategy(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	txs := []dca.Transaction{
		txAt("strat-1", day.Add(2*time.Hour), 100, 50000),
		txAt("strat-1", day.Add(10*time.Hour), 300, 60000),
	}

	summaries := Aggregate(txs, day)
	if len(summaries) != 1 {
		t.Fatalf("Expected one summary, got %d", len(summaries))
	}

	s := summaries[0]
	if s.PurchaseCount != 2 {
		t.Errorf("Expected 2 purchases, got %d", s.PurchaseCount)
	}
	if s.QuoteSpent != 400 {
		t.Errorf("Expected 400 spent, got %v", s.QuoteSpent)
	}

	wantAsset := 100.0/50000 + 300.0/60000
	if math.Abs(s.AssetBought-wantAsset) > 1e-12 {
		t.Errorf("Expected %v asset bought, got %v", wantAsset, s.AssetBought)
	}
	// VWAP weights the larger purchase more heavily
	wantVWAP := 400 / wantAsset
	if math.Abs(s.AvgPrice-wantVWAP) > 1e-6 {
		t.Errorf("Expected VWAP %v, got %v", wantVWAP, s.AvgPrice)
	}
	if !s.Day.Equal(day) {
		t.Errorf("Expected day %v, got %v", day, s.Day)
	}
}

func TestAggregateFiltersWindow(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	txs := []dca.Transaction{
		txAt("strat-1", day.Add(-time.Second), 100, 50000),     // Previous day
		txAt("strat-1", day, 100, 50000),                       // Inclusive start
		txAt("strat-1", day.Add(24*time.Hour), 100, 50000),     // Exclusive end
		txAt("strat-1", day.Add(23*time.Hour+59*time.Minute), 100, 50000),
	}

	summaries := Aggregate(txs, day)
	if len(summaries) != 1 {
		t.Fatalf("Expected one summary, got %d", len(summaries))
	}
	if summaries[0].PurchaseCount != 2 {
		t.Errorf("Expected 2 in-window purchases, got %d", summaries[0].PurchaseCount)
	}
}

func TestAggregateMultipleStrategiesSorted(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	txs := []dca.Transaction{
		txAt("strat-b", day.Add(time.Hour), 100, 50000),
		txAt("strat-a", day.Add(time.Hour), 200, 50000),
	}

	summaries := Aggregate(txs, day)
	if len(summaries) != 2 {
		t.Fatalf("Expected two summaries, got %d", len(summaries))
	}
	if summaries[0].StrategyID != "strat-a" || summaries[1].StrategyID != "strat-b" {
		t.Errorf("Expected sorted order, got [%s %s]", summaries[0].StrategyID, summaries[1].StrategyID)
	}
}

func TestAggregateEmpty(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if got := Aggregate(nil, day); len(got) != 0 {
		t.Errorf("Expected no summaries, got %d", len(got))
	}
}

// fakeSource serves canned transactions
type fakeSource struct {
	txs []dca.Transaction
	err error
}

func (f *fakeSource) TransactionsBetween(ctx context.Context, from, to time.Time) ([]dca.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txs, nil
}

// fakeStore records upserts
type fakeStore struct {
	mu        sync.Mutex
	upserts   []DailySummary
	upsertErr error
}

func (f *fakeStore) UpsertDailySummary(ctx context.Context, s DailySummary) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, s)
	return nil
}

func (f *fakeStore) ListDailySummaries(ctx context.Context, strategyID string, limit int) ([]DailySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DailySummary(nil), f.upserts...), nil
}

func TestComputeDayPersists(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{txs: []dca.Transaction{
		txAt("strat-1", day.Add(time.Hour), 100, 50000),
		txAt("strat-2", day.Add(2*time.Hour), 250, 3000),
	}}
	store := &fakeStore{}

	s := NewScheduler(source, store, nil)
	if err := s.ComputeDay(context.Background(), day.Add(5*time.Hour)); err != nil {
		t.Fatalf("ComputeDay failed: %v", err)
	}

	if len(store.upserts) != 2 {
		t.Fatalf("Expected 2 upserts, got %d", len(store.upserts))
	}
	for _, up := range store.upserts {
		if up.ID == "" {
			t.Error("Expected summary ID to be assigned")
		}
		if !up.Day.Equal(day) {
			t.Errorf("Expected truncated day %v, got %v", day, up.Day)
		}
	}
}

func TestComputeDaySourceFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("database down")}
	s := NewScheduler(source, &fakeStore{}, nil)

	if err := s.ComputeDay(context.Background(), time.Now()); err == nil {
		t.Error("Expected source failure to propagate")
	}
}

func TestSchedulerRegisterRejectsBadExpression(t *testing.T) {
	s := NewScheduler(&fakeSource{}, &fakeStore{}, nil)

	if err := s.Register("not a cron expr"); err == nil {
		t.Error("Expected invalid cron expression to be rejected")
	}
	if err := s.Register("15 0 * * *"); err != nil {
		t.Errorf("Expected valid expression to register, got %v", err)
	}
}
