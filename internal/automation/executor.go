package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/signals"
)

// evaluateRule runs one rule against the current signal batch: filter,
// aggregate, gate, execute. Returning nil covers both "no action needed"
// and "purchase executed"; an error means the rule could not be evaluated.
func (e *Engine) evaluateRule(ctx context.Context, rule rules.AutomationRule, batch []signals.TradingSignal) error {
	matched := rule.FilterSignals(batch)
	if len(matched) == 0 {
		return nil
	}

	strategy, err := e.strategies.Get(ctx, rule.StrategyID)
	if err != nil {
		// A rule pointing at a deleted strategy is a data problem, not a
		// reason to fail the pass.
		e.logger.Warn("Rule references unknown strategy, skipping",
			"rule_id", rule.ID, "strategy_id", rule.StrategyID)
		return nil
	}
	if !strategy.IsActive {
		e.logger.Debug("Strategy inactive, skipping rule",
			"rule_id", rule.ID, "strategy_id", strategy.ID)
		return nil
	}

	avgStrength, avgConfidence := aggregateSignals(matched)
	adjustment := avgStrength
	if adjustment > rule.MaxAdjustment {
		adjustment = rule.MaxAdjustment
	}

	e.mu.Lock()
	e.rulesTriggered++
	e.mu.Unlock()

	e.logger.Info("Rule triggered",
		"rule_id", rule.ID,
		"strategy_id", strategy.ID,
		"matched_signals", len(matched),
		"avg_strength", fmt.Sprintf("%.3f", avgStrength),
		"avg_confidence", fmt.Sprintf("%.3f", avgConfidence),
		"adjustment", fmt.Sprintf("%.3f", adjustment))

	if e.bus != nil {
		e.bus.PublishRuleTriggered(rule.ID, rule.UserID, rule.StrategyID, avgStrength, avgConfidence, adjustment)
	}

	last, err := e.ledger.LastForStrategy(ctx, strategy.ID)
	if err != nil {
		return fmt.Errorf("loading last execution for strategy %s: %w", strategy.ID, err)
	}
	var lastExecutedAt *time.Time
	if last != nil {
		lastExecutedAt = &last.ExecutedAt
	}

	decision := EvaluateGate(lastExecutedAt, time.Now(), avgConfidence, adjustment,
		e.config.Cooldown, e.config.ConfidenceFloor, e.config.AdjustmentFloor)
	if !decision.Allowed {
		e.logger.Debug("Execution gated",
			"rule_id", rule.ID,
			"strategy_id", strategy.ID,
			"reason", decision.Reason)
		return nil
	}

	if ok, reason := e.safety.CanExecute(); !ok {
		e.logger.Warn("Safety limits blocked execution",
			"strategy_id", strategy.ID, "reason", reason)
		return nil
	}

	return e.executePurchase(ctx, strategy, adjustment, mostRecent(matched))
}

// executePurchase sizes and records one simulated purchase. The adjustment
// scales the base amount around its midpoint: 0.5 leaves the amount
// unchanged, 1.0 doubles it, 0.0 would zero it out.
func (e *Engine) executePurchase(ctx context.Context, strategy dca.Strategy, adjustment float64, trigger signals.TradingSignal) error {
	adjusted := strategy.Amount * (1 + (adjustment - 0.5))
	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted == 0 {
		e.logger.Warn("Adjusted amount is zero, nothing to execute",
			"strategy_id", strategy.ID, "adjustment", adjustment)
		return nil
	}

	price, err := e.market.Price(ctx, strategy.Symbol)
	if err != nil {
		e.safety.RecordFailure()
		return fmt.Errorf("fetching price for %s: %w", strategy.Symbol, err)
	}
	if price <= 0 {
		e.safety.RecordFailure()
		return fmt.Errorf("invalid price %v for %s", price, strategy.Symbol)
	}

	tx := &dca.Transaction{
		ID:              uuid.New().String(),
		StrategyID:      strategy.ID,
		Amount:          adjusted,
		AssetPrice:      price,
		AssetAmount:     adjusted / price,
		TriggerSignalID: trigger.ID,
		ExecutedAt:      time.Now(),
	}

	if err := e.ledger.Record(ctx, tx); err != nil {
		e.safety.RecordFailure()
		return fmt.Errorf("recording transaction: %w", err)
	}

	e.safety.RecordPurchase()

	e.mu.Lock()
	e.purchasesExecuted++
	e.mu.Unlock()

	e.logger.Info("Purchase executed",
		"transaction_id", tx.ID,
		"strategy_id", strategy.ID,
		"symbol", strategy.Symbol,
		"amount", fmt.Sprintf("%.2f", tx.Amount),
		"price", fmt.Sprintf("%.2f", tx.AssetPrice),
		"asset_amount", fmt.Sprintf("%.8f", tx.AssetAmount))

	if e.bus != nil {
		e.bus.PublishPurchaseExecuted(tx.ID, strategy.ID, strategy.Symbol, tx.Amount, tx.AssetPrice, tx.AssetAmount)
	}

	return nil
}

// aggregateSignals returns the mean strength and mean confidence of a
// non-empty matched set
func aggregateSignals(matched []signals.TradingSignal) (avgStrength, avgConfidence float64) {
	for _, sig := range matched {
		avgStrength += sig.Strength
		avgConfidence += sig.Confidence
	}
	n := float64(len(matched))
	return avgStrength / n, avgConfidence / n
}

// mostRecent picks the newest signal from a non-empty matched set as the
// purchase trigger
func mostRecent(matched []signals.TradingSignal) signals.TradingSignal {
	best := matched[0]
	for _, sig := range matched[1:] {
		if sig.Timestamp.After(best.Timestamp) {
			best = sig
		}
	}
	return best
}
