package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dca-autopilot/internal/automation"
	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/events"
	"dca-autopilot/internal/ledger"
	"dca-autopilot/internal/logging"
	"dca-autopilot/internal/marketdata"
	"dca-autopilot/internal/rules"
	"dca-autopilot/internal/signals"
)

// Offline harness: runs the automation engine against simulated signals
// and prices for a number of passes, then prints what it bought.
func main() {
	passes := flag.Int("passes", 20, "Number of evaluation passes to run")
	seed := flag.Int64("seed", 42, "Seed for the signal and price simulators")
	amount := flag.Float64("amount", 100, "Base purchase amount per strategy")
	cooldownSecs := flag.Int("cooldown-secs", 0, "Per-strategy purchase cooldown in seconds")
	flag.Parse()

	godotenv.Load()

	// Keep engine chatter out of the report
	logging.SetDefault(logging.New(&logging.Config{
		Level:      os.Getenv("LOG_LEVEL"),
		Output:     "stderr",
		Component:  "simulate",
		JSONFormat: false,
	}))

	ctx := context.Background()

	strategies := dca.NewMemoryStrategyStore()
	registry := rules.NewMemoryRegistry()
	txLedger := ledger.New(ledger.NewMemoryTransactionRepository(), zerolog.Nop())
	source := signals.NewSimulatedSource([]string{"BTC", "ETH"}, *seed)
	market := marketdata.NewSimulatedProvider(*seed)
	bus := events.NewEventBus()

	for _, symbol := range []string{"BTC", "ETH"} {
		strategy, err := strategies.Create(ctx, dca.Strategy{
			UserID:    "sim",
			Name:      fmt.Sprintf("%s accumulation", symbol),
			Symbol:    symbol,
			Amount:    *amount,
			Frequency: dca.FrequencyWeekly,
			IsActive:  true,
		})
		if err != nil {
			fmt.Printf("❌ Failed to create strategy: %v\n", err)
			os.Exit(1)
		}

		if _, err := registry.Add(ctx, rules.AutomationRule{
			UserID:          "sim",
			StrategyID:      strategy.ID,
			SignalThreshold: 0.5,
			MaxAdjustment:   0.8,
			IsActive:        true,
			Conditions: rules.RuleConditions{
				Indicators:    []string{string(signals.IndicatorRSI), string(signals.IndicatorMACD)},
				MinConfidence: 0.6,
				Actions:       []string{string(signals.ActionBuy), string(signals.ActionStrongBuy)},
			},
		}); err != nil {
			fmt.Printf("❌ Failed to create rule: %v\n", err)
			os.Exit(1)
		}
	}

	interval := 25 * time.Millisecond
	engine := automation.NewEngine(automation.Config{
		EvaluationInterval: interval,
		PassTimeout:        5 * time.Second,
		Cooldown:           time.Duration(*cooldownSecs) * time.Second,
		ConfidenceFloor:    0.6,
		AdjustmentFloor:    0.3,
	}, source, registry, strategies, txLedger, market, nil, bus)

	fmt.Printf("🤖 DCA AUTOPILOT SIMULATION — %d passes, seed %d\n\n", *passes, *seed)

	if err := engine.Start(); err != nil {
		fmt.Printf("❌ Failed to start engine: %v\n", err)
		os.Exit(1)
	}

	// The engine runs an immediate pass on start, then one per tick
	time.Sleep(time.Duration(*passes) * interval)
	engine.Stop()

	status := engine.Status()
	fmt.Printf("Passes run:         %d\n", status.PassCount)
	fmt.Printf("Rules triggered:    %d\n", status.RulesTriggered)
	fmt.Printf("Purchases executed: %d\n", status.PurchasesExecuted)
	fmt.Printf("Safety state:       %s\n\n", status.Safety.State)

	txs, err := txLedger.Recent(ctx, 100)
	if err != nil {
		fmt.Printf("❌ Failed to read ledger: %v\n", err)
		os.Exit(1)
	}

	if len(txs) == 0 {
		fmt.Println("No purchases executed. Try more passes or a lower -cooldown-secs.")
		return
	}

	fmt.Println("Recent purchases (newest first):")
	totalSpent := 0.0
	for _, tx := range txs {
		strategy, err := strategies.Get(ctx, tx.StrategyID)
		symbol := "?"
		if err == nil {
			symbol = strategy.Symbol
		}
		fmt.Printf("  %s  %-4s  $%8.2f @ $%10.2f  →  %.6f\n",
			tx.ExecutedAt.Format("15:04:05.000"), symbol, tx.Amount, tx.AssetPrice, tx.AssetAmount)
		totalSpent += tx.Amount
	}
	fmt.Printf("\n💰 Total spent: $%.2f across %d purchases\n", totalSpent, len(txs))
}
