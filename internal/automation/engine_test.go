package automation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/ledger"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/signals"
)

// fakeSource returns a canned batch and counts calls
type fakeSource struct {
	mu    sync.Mutex
	batch []signals.TradingSignal
	err   error
	calls int
}

func (f *fakeSource) Generate(ctx context.Context) ([]signals.TradingSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeProvider serves fixed prices with error injection
type fakeProvider struct {
	prices   map[string]float64
	priceErr error
}

func (f *fakeProvider) Price(ctx context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	price, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return price, nil
}

func (f *fakeProvider) History(ctx context.Context, symbol string, days int) ([]marketdata.PricePoint, error) {
	return nil, errors.New("not implemented")
}

type testFixture struct {
	engine     *Engine
	source     *fakeSource
	registry   *rules.MemoryRegistry
	strategies *dca.MemoryStrategyStore
	ledger     *ledger.Ledger
	provider   *fakeProvider
}

func newTestFixture(t *testing.T, batch []signals.TradingSignal) *testFixture {
	t.Helper()

	source := &fakeSource{batch: batch}
	registry := rules.NewMemoryRegistry()
	strategies := dca.NewMemoryStrategyStore()
	txLedger := ledger.New(ledger.NewMemoryTransactionRepository(), zerolog.Nop())
	provider := &fakeProvider{prices: map[string]float64{"BTC": 50000, "ETH": 3000}}

	config := DefaultConfig()
	config.EvaluationInterval = 10 * time.Millisecond
	config.PassTimeout = time.Second

	engine := NewEngine(config, source, registry, strategies, txLedger, provider, nil, nil)

	return &testFixture{
		engine:     engine,
		source:     source,
		registry:   registry,
		strategies: strategies,
		ledger:     txLedger,
		provider:   provider,
	}
}

func (f *testFixture) addStrategy(t *testing.T, symbol string, amount float64, active bool) dca.Strategy {
	t.Helper()
	created, err := f.strategies.Create(context.Background(), dca.Strategy{
		UserID:    "user-1",
		Name:      symbol + " plan",
		Symbol:    symbol,
		Amount:    amount,
		Frequency: dca.FrequencyWeekly,
		IsActive:  active,
	})
	if err != nil {
		t.Fatalf("Failed to create strategy: %v", err)
	}
	return created
}

func (f *testFixture) addRule(t *testing.T, strategyID string, threshold, maxAdjustment float64) rules.AutomationRule {
	t.Helper()
	created, err := f.registry.Add(context.Background(), rules.AutomationRule{
		UserID:          "user-1",
		StrategyID:      strategyID,
		SignalThreshold: threshold,
		MaxAdjustment:   maxAdjustment,
		IsActive:        true,
		Conditions: rules.RuleConditions{
			Indicators:    []string{string(signals.IndicatorRSI)},
			MinConfidence: 0.7,
			Actions:       []string{string(signals.ActionBuy), string(signals.ActionStrongBuy)},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	return created
}

func rsiBuySignal(symbol string, strength, confidence float64) signals.TradingSignal {
	return signals.TradingSignal{
		ID:         "sig-" + symbol,
		Indicator:  signals.IndicatorRSI,
		Action:     signals.ActionBuy,
		Strength:   strength,
		Confidence: confidence,
		Symbol:     symbol,
		Timestamp:  time.Now(),
	}
}

func TestEngineStartStopIdempotent(t *testing.T) {
	f := newTestFixture(t, nil)

	if f.engine.IsRunning() {
		t.Error("Expected new engine to be stopped")
	}

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.engine.IsRunning() {
		t.Error("Expected engine to be running")
	}

	// Second start is a no-op, not an error
	if err := f.engine.Start(); err != nil {
		t.Errorf("Second start should be a no-op, got: %v", err)
	}

	f.engine.Stop()
	if f.engine.IsRunning() {
		t.Error("Expected engine to be stopped")
	}

	// Second stop is also a no-op
	f.engine.Stop()
}

func TestEngineRunsImmediatePass(t *testing.T) {
	f := newTestFixture(t, []signals.TradingSignal{rsiBuySignal("BTC", 0.8, 0.9)})

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.engine.Stop()

	deadline := time.After(time.Second)
	for f.source.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected an immediate pass on start")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestEngineWorkedExample(t *testing.T) {
	// One RSI buy signal at strength 0.75, confidence 0.85 against a rule
	// capped at 0.5 adjustment: the purchase lands at exactly the base
	// amount because 0.5 is the midpoint of the adjustment range.
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.75, 0.85)}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 500, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	txs, err := f.ledger.ListForStrategy(context.Background(), strategy.ID, 10)
	if err != nil {
		t.Fatalf("Listing transactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected exactly one transaction, got %d", len(txs))
	}

	tx := txs[0]
	if tx.Amount != 500 {
		t.Errorf("Expected amount exactly 500, got %v", tx.Amount)
	}
	if tx.AssetPrice != 50000 {
		t.Errorf("Expected price 50000, got %v", tx.AssetPrice)
	}
	if math.Abs(tx.AssetAmount-0.01) > 1e-12 {
		t.Errorf("Expected asset amount 0.01, got %v", tx.AssetAmount)
	}
	if tx.TriggerSignalID != "sig-BTC" {
		t.Errorf("Expected trigger signal sig-BTC, got %q", tx.TriggerSignalID)
	}
}

func TestEngineAdjustmentScalesAmount(t *testing.T) {
	// Strength 0.9 with cap 1.0 yields adjustment 0.9, so the purchase is
	// amount * (1 + (0.9 - 0.5)) = amount * 1.4
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.9, 0.9)}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 100, true)
	f.addRule(t, strategy.ID, 0.6, 1.0)

	f.engine.processSignals(context.Background())

	txs, _ := f.ledger.ListForStrategy(context.Background(), strategy.ID, 10)
	if len(txs) != 1 {
		t.Fatalf("Expected one transaction, got %d", len(txs))
	}
	if math.Abs(txs[0].Amount-140) > 1e-9 {
		t.Errorf("Expected adjusted amount 140, got %v", txs[0].Amount)
	}
}

func TestEngineCooldownBlocksSecondPurchase(t *testing.T) {
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.8, 0.9)}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 100, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())
	f.engine.processSignals(context.Background())

	txs, _ := f.ledger.ListForStrategy(context.Background(), strategy.ID, 10)
	if len(txs) != 1 {
		t.Errorf("Expected cooldown to block the second purchase, got %d transactions", len(txs))
	}
}

func TestEngineSkipsInactiveStrategy(t *testing.T) {
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.8, 0.9)}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 100, false)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	txs, _ := f.ledger.ListForStrategy(context.Background(), strategy.ID, 10)
	if len(txs) != 0 {
		t.Errorf("Expected no transactions for inactive strategy, got %d", len(txs))
	}
}

func TestEngineSkipsMissingStrategy(t *testing.T) {
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.8, 0.9)}
	f := newTestFixture(t, batch)

	// Rule points at a strategy that was deleted out from under it
	f.addRule(t, "no-such-strategy", 0.6, 0.5)

	f.engine.processSignals(context.Background())

	status := f.engine.Status()
	if status.PassCount != 1 {
		t.Errorf("Expected pass to complete, got pass count %d", status.PassCount)
	}
	if f.ledger.RecordedCount() != 0 {
		t.Errorf("Expected no transactions, got %d", f.ledger.RecordedCount())
	}
}

func TestEnginePriceFailureRecordsNothing(t *testing.T) {
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.8, 0.9)}
	f := newTestFixture(t, batch)
	f.provider.priceErr = errors.New("upstream down")

	strategy := f.addStrategy(t, "BTC", 100, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	txs, _ := f.ledger.ListForStrategy(context.Background(), strategy.ID, 10)
	if len(txs) != 0 {
		t.Errorf("Expected no transactions on price failure, got %d", len(txs))
	}

	stats := f.engine.Status().Safety
	if stats.ConsecutiveFailures != 1 {
		t.Errorf("Expected one recorded failure, got %d", stats.ConsecutiveFailures)
	}
}

func TestEngineSignalFetchFailureSkipsPass(t *testing.T) {
	f := newTestFixture(t, nil)
	f.source.err = errors.New("feed unavailable")

	strategy := f.addStrategy(t, "BTC", 100, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	status := f.engine.Status()
	if status.PassCount != 0 {
		t.Errorf("Expected failed fetch to not count as a pass, got %d", status.PassCount)
	}
}

func TestEngineIgnoresNonMatchingSignals(t *testing.T) {
	batch := []signals.TradingSignal{
		{
			ID:         "sig-sell",
			Indicator:  signals.IndicatorRSI,
			Action:     signals.ActionSell,
			Strength:   0.9,
			Confidence: 0.9,
			Symbol:     "BTC",
			Timestamp:  time.Now(),
		},
	}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 100, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	if f.ledger.RecordedCount() != 0 {
		t.Errorf("Expected sell signal to be ignored, got %d transactions", f.ledger.RecordedCount())
	}
}

func TestEngineStatusSnapshot(t *testing.T) {
	batch := []signals.TradingSignal{rsiBuySignal("BTC", 0.75, 0.85)}
	f := newTestFixture(t, batch)

	strategy := f.addStrategy(t, "BTC", 500, true)
	f.addRule(t, strategy.ID, 0.6, 0.5)

	f.engine.processSignals(context.Background())

	status := f.engine.Status()
	if status.IsRunning {
		t.Error("Expected stopped engine in status")
	}
	if status.PassCount != 1 {
		t.Errorf("Expected pass count 1, got %d", status.PassCount)
	}
	if status.ActiveRuleCount != 1 {
		t.Errorf("Expected 1 active rule, got %d", status.ActiveRuleCount)
	}
	if status.RulesTriggered != 1 {
		t.Errorf("Expected 1 rule triggered, got %d", status.RulesTriggered)
	}
	if status.PurchasesExecuted != 1 {
		t.Errorf("Expected 1 purchase executed, got %d", status.PurchasesExecuted)
	}
	if status.LastPassAt == nil {
		t.Error("Expected last pass timestamp to be set")
	}

	latest, at := f.engine.LatestSignals()
	if len(latest) != 1 {
		t.Errorf("Expected latest batch of 1, got %d", len(latest))
	}
	if at.IsZero() {
		t.Error("Expected latest batch timestamp to be set")
	}
}

func TestAggregateSignals(t *testing.T) {
	matched := []signals.TradingSignal{
		{Strength: 0.6, Confidence: 0.8},
		{Strength: 0.8, Confidence: 0.9},
	}

	avgStrength, avgConfidence := aggregateSignals(matched)
	if math.Abs(avgStrength-0.7) > 1e-9 {
		t.Errorf("Expected avg strength 0.7, got %v", avgStrength)
	}
	if math.Abs(avgConfidence-0.85) > 1e-9 {
		t.Errorf("Expected avg confidence 0.85, got %v", avgConfidence)
	}
}

func TestMostRecentSignal(t *testing.T) {
	now := time.Now()
	matched := []signals.TradingSignal{
		{ID: "old", Timestamp: now.Add(-time.Minute)},
		{ID: "new", Timestamp: now},
		{ID: "mid", Timestamp: now.Add(-30 * time.Second)},
	}

	if got := mostRecent(matched); got.ID != "new" {
		t.Errorf("Expected newest signal, got %q", got.ID)
	}
}

// slowSource blocks each Generate long enough to straddle several ticks
type slowSource struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (s *slowSource) Generate(ctx context.Context) ([]signals.TradingSignal, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil, nil
}

func (s *slowSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestEngineOverlapGuardSkipsTicks(t *testing.T) {
	source := &slowSource{delay: 120 * time.Millisecond}
	registry := rules.NewMemoryRegistry()
	strategies := dca.NewMemoryStrategyStore()
	txLedger := ledger.New(ledger.NewMemoryTransactionRepository(), zerolog.Nop())
	provider := &fakeProvider{prices: map[string]float64{"BTC": 50000}}

	config := DefaultConfig()
	config.EvaluationInterval = 10 * time.Millisecond
	config.PassTimeout = time.Second

	engine := NewEngine(config, source, registry, strategies, txLedger, provider, nil, nil)
	if err := engine.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The first pass holds the guard for ~120ms while ticks keep arriving
	// every 10ms; each of those ticks must be counted as skipped, not
	// queued behind the pass.
	time.Sleep(150 * time.Millisecond)
	engine.Stop()

	status := engine.Status()
	if status.SkippedTicks == 0 {
		t.Error("Expected skipped ticks while a pass was in flight, got 0")
	}
	if calls := source.callCount(); calls > 4 {
		t.Errorf("Expected at most 4 passes in 150ms with 120ms passes, got %d", calls)
	}
}

func TestEngineStopWaitsForInFlightPass(t *testing.T) {
	source := &slowSource{delay: 60 * time.Millisecond}
	registry := rules.NewMemoryRegistry()
	strategies := dca.NewMemoryStrategyStore()
	txLedger := ledger.New(ledger.NewMemoryTransactionRepository(), zerolog.Nop())
	provider := &fakeProvider{prices: map[string]float64{"BTC": 50000}}

	config := DefaultConfig()
	config.EvaluationInterval = time.Hour // only the immediate pass runs
	config.PassTimeout = time.Second

	engine := NewEngine(config, source, registry, strategies, txLedger, provider, nil, nil)
	if err := engine.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond) // let the immediate pass begin
	engine.Stop()

	if engine.IsRunning() {
		t.Error("Engine should report stopped after Stop returns")
	}
	if got := engine.Status().PassCount; got != 1 {
		t.Errorf("Expected the in-flight pass to complete before Stop returned, pass count = %d", got)
	}
}
