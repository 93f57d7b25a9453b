// Package automation contains the signal-automation engine: a timer-driven
// loop that evaluates trading signals against user automation rules and
// executes adjusted DCA purchases through the ledger.
package automation

import (
	"context"
	"sync"
	"time"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/events"
	"dca-autopilot/internal/ledger"
	"dca-autopilot/internal/logging"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/signals"
)

// Config holds automation engine configuration
type Config struct {
	EvaluationInterval time.Duration `json:"evaluation_interval"` // Time between passes
	PassTimeout        time.Duration `json:"pass_timeout"`        // Per-pass deadline
	Cooldown           time.Duration `json:"cooldown"`            // Minimum gap between purchases per strategy
	ConfidenceFloor    float64       `json:"confidence_floor"`    // Execution gate floor, 0.0 to 1.0
	AdjustmentFloor    float64       `json:"adjustment_floor"`    // Execution gate floor, 0.0 to 2.0
}

// DefaultConfig returns the standard engine configuration
func DefaultConfig() Config {
	return Config{
		EvaluationInterval: 30 * time.Second,
		PassTimeout:        25 * time.Second,
		Cooldown:           15 * time.Minute,
		ConfidenceFloor:    0.7,
		AdjustmentFloor:    0.5,
	}
}

// Status is a snapshot of the engine for the API layer
type Status struct {
	IsRunning         bool        `json:"is_running"`
	ActiveRuleCount   int         `json:"active_rule_count"`
	UptimeSecs        float64     `json:"uptime_secs,omitempty"` // Present only while running
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	LastPassAt        *time.Time  `json:"last_pass_at,omitempty"`
	PassCount         int64       `json:"pass_count"`
	SkippedTicks      int64       `json:"skipped_ticks"`
	RulesTriggered    int64       `json:"rules_triggered"`
	PurchasesExecuted int64       `json:"purchases_executed"`
	Safety            SafetyStats `json:"safety"`
}

// Engine is the automation core. It owns no global state; the composition
// root constructs one engine and wires its collaborators.
type Engine struct {
	config     Config
	source     signals.Source
	registry   rules.Registry
	strategies dca.StrategyStore
	ledger     *ledger.Ledger
	market     marketdata.Provider
	safety     *SafetyLimits
	bus        *events.EventBus
	logger     *logging.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	stopChan  chan struct{}
	passBusy  bool
	passWG    sync.WaitGroup

	// Stats, guarded by mu
	passCount         int64
	skippedTicks      int64
	rulesTriggered    int64
	purchasesExecuted int64
	lastPassAt        time.Time
	lastBatch         []signals.TradingSignal
	lastBatchAt       time.Time
}

// NewEngine creates an automation engine. All collaborators are required
// except safety, which defaults to the standard limits when nil.
func NewEngine(
	config Config,
	source signals.Source,
	registry rules.Registry,
	strategies dca.StrategyStore,
	txLedger *ledger.Ledger,
	market marketdata.Provider,
	safety *SafetyLimits,
	bus *events.EventBus,
) *Engine {
	if safety == nil {
		safety = NewSafetyLimits(nil)
	}
	if bus != nil {
		safety.OnTrip(bus.PublishSafetyTripped)
	}

	return &Engine{
		config:     config,
		source:     source,
		registry:   registry,
		strategies: strategies,
		ledger:     txLedger,
		market:     market,
		safety:     safety,
		bus:        bus,
		logger:     logging.WithComponent("engine"),
	}
}

// Start transitions the engine to running, executes one pass immediately,
// and arms the recurring timer. Starting a running engine is a logged
// no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Info("Engine already running, start ignored")
		return nil
	}
	e.running = true
	e.startedAt = time.Now()
	e.stopChan = make(chan struct{})
	stopChan := e.stopChan
	e.mu.Unlock()

	e.logger.Info("Engine started",
		"interval", e.config.EvaluationInterval.String(),
		"cooldown", e.config.Cooldown.String())

	if e.bus != nil {
		active, _ := e.registry.Active(context.Background())
		e.bus.PublishEngineStarted(int(e.config.EvaluationInterval.Seconds()), len(active))
	}

	go e.runLoop(stopChan)

	return nil
}

// Stop cancels future ticks and waits for an in-flight pass to run to
// completion. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	uptime := time.Since(e.startedAt)
	passCount := e.passCount
	close(e.stopChan)
	e.mu.Unlock()

	e.passWG.Wait()

	e.logger.Info("Engine stopped", "uptime", uptime.String(), "pass_count", passCount)

	if e.bus != nil {
		e.bus.PublishEngineStopped(uptime, passCount)
	}
}

// IsRunning reports whether the engine loop is active
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Status returns a snapshot of the engine state. Safe to call from any
// state; never blocks on a pass.
func (e *Engine) Status() Status {
	activeCount := 0
	if active, err := e.registry.Active(context.Background()); err == nil {
		activeCount = len(active)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	status := Status{
		IsRunning:         e.running,
		ActiveRuleCount:   activeCount,
		PassCount:         e.passCount,
		SkippedTicks:      e.skippedTicks,
		RulesTriggered:    e.rulesTriggered,
		PurchasesExecuted: e.purchasesExecuted,
		Safety:            e.safety.Stats(),
	}
	if e.running {
		started := e.startedAt
		status.StartedAt = &started
		status.UptimeSecs = time.Since(started).Seconds()
	}
	if !e.lastPassAt.IsZero() {
		last := e.lastPassAt
		status.LastPassAt = &last
	}
	return status
}

// ResetSafety manually closes the safety breaker and clears its failure
// streak
func (e *Engine) ResetSafety() {
	e.safety.ForceReset()
	e.logger.Info("Safety limits manually reset")
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.EventSafetyReset})
	}
}

// LatestSignals returns the most recent signal batch and its generation
// time. Empty until the first pass completes.
func (e *Engine) LatestSignals() ([]signals.TradingSignal, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	batch := append([]signals.TradingSignal(nil), e.lastBatch...)
	return batch, e.lastBatchAt
}

// runLoop drives the engine: one immediate pass, then one per tick until
// stopped. A tick that fires while a pass is still in flight is skipped
// so passes never overlap.
func (e *Engine) runLoop(stopChan <-chan struct{}) {
	e.tryPass()

	ticker := time.NewTicker(e.config.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tryPass()
		case <-stopChan:
			return
		}
	}
}

// tryPass starts one pass in its own goroutine unless another is already
// in flight. Running the pass off the loop goroutine keeps the loop free
// to observe ticks, so a tick landing mid-pass is counted, not queued.
func (e *Engine) tryPass() {
	e.mu.Lock()
	if e.passBusy {
		e.skippedTicks++
		e.mu.Unlock()
		e.logger.Warn("Tick skipped, previous pass still running")
		if e.bus != nil {
			e.bus.PublishPassSkipped()
		}
		return
	}
	e.passBusy = true
	e.mu.Unlock()

	e.passWG.Add(1)
	go func() {
		defer e.passWG.Done()
		defer func() {
			e.mu.Lock()
			e.passBusy = false
			e.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), e.config.PassTimeout)
		defer cancel()

		e.processSignals(ctx)
	}()
}

// processSignals is one full evaluation pass. Nothing it does propagates
// an error out; failures are logged and the loop keeps its schedule.
func (e *Engine) processSignals(ctx context.Context) {
	batch, err := e.source.Generate(ctx)
	if err != nil {
		e.logger.Error("Signal fetch failed, skipping pass", "error", err)
		if e.bus != nil {
			e.bus.PublishError("engine", "signal fetch failed", err)
		}
		return
	}

	e.mu.Lock()
	e.passCount++
	passNumber := e.passCount
	e.lastPassAt = time.Now()
	e.lastBatch = batch
	e.lastBatchAt = e.lastPassAt
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.PublishSignalBatch(len(batch), symbolsIn(batch))
	}

	active, err := e.registry.Active(ctx)
	if err != nil {
		e.logger.Error("Loading active rules failed, skipping pass", "error", err)
		if e.bus != nil {
			e.bus.PublishError("engine", "loading active rules failed", err)
		}
		return
	}

	for _, rule := range active {
		// One rule's failure must not starve the rest of the pass.
		if err := e.evaluateRule(ctx, rule, batch); err != nil {
			e.logger.Error("Rule evaluation failed",
				"rule_id", rule.ID,
				"strategy_id", rule.StrategyID,
				"error", err)
		}
	}

	if e.bus != nil {
		e.bus.PublishPassCompleted(passNumber, len(batch), len(active))
	}
}

func symbolsIn(batch []signals.TradingSignal) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sig := range batch {
		if !seen[sig.Symbol] {
			seen[sig.Symbol] = true
			out = append(out, sig.Symbol)
		}
	}
	return out
}
