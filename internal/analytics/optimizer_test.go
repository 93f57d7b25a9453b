package analytics

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/marketdata"
)

// steadyPrices generates a low-volatility series around base
func steadyPrices(n int, base float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		// Tiny deterministic wiggle, well under every threshold
		prices[i] = base * (1 + 0.001*math.Sin(float64(i)))
	}
	return prices
}

// choppyPrices generates a high-volatility series around base
func choppyPrices(n int, base float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		swing := 0.05 * math.Sin(float64(i)*1.7)
		prices[i] = base * (1 + swing)
	}
	return prices
}

func validRequest() OptimizeRequest {
	return OptimizeRequest{
		Symbol:           "BTC",
		InvestmentAmount: 12000,
		DurationMonths:   12,
		RiskTolerance:    RiskMedium,
	}
}

func TestOptimizeRequestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*OptimizeRequest)
	}{
		{"missing symbol", func(r *OptimizeRequest) { r.Symbol = "" }},
		{"zero amount", func(r *OptimizeRequest) { r.InvestmentAmount = 0 }},
		{"negative amount", func(r *OptimizeRequest) { r.InvestmentAmount = -100 }},
		{"zero duration", func(r *OptimizeRequest) { r.DurationMonths = 0 }},
		{"unknown risk", func(r *OptimizeRequest) { r.RiskTolerance = "yolo" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Errorf("Expected valid request to pass, got %v", err)
	}
}

func TestOptimizeFromPricesLowVolatility(t *testing.T) {
	o := NewOptimizer(nil, 42)

	rec, err := o.OptimizeFromPrices(steadyPrices(365, 43000), validRequest())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if rec.OptimalFrequency != dca.FrequencyMonthly {
		t.Errorf("Expected monthly for calm market, got %s", rec.OptimalFrequency)
	}
	// 12 months at monthly cadence spreads 12000 across 12 purchases
	if rec.AmountPerPurchase != 1000 {
		t.Errorf("Expected 1000 per purchase, got %v", rec.AmountPerPurchase)
	}
	if rec.RiskScore < 0 || rec.RiskScore > 1 {
		t.Errorf("Risk score out of range: %v", rec.RiskScore)
	}
	if !strings.Contains(rec.Explanation, "monthly") {
		t.Errorf("Expected explanation to mention frequency, got %q", rec.Explanation)
	}
}

func TestOptimizeFromPricesHighVolatility(t *testing.T) {
	o := NewOptimizer(nil, 42)

	req := validRequest()
	req.RiskTolerance = RiskLow

	rec, err := o.OptimizeFromPrices(choppyPrices(365, 43000), req)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if rec.OptimalFrequency != dca.FrequencyWeekly {
		t.Errorf("Expected weekly for volatile market, got %s", rec.OptimalFrequency)
	}
	if rec.RiskScore != 1 {
		t.Errorf("Expected risk score capped at 1, got %v", rec.RiskScore)
	}
	if math.Abs(rec.AmountPerPurchase-12000.0/52) > 0.01 {
		t.Errorf("Expected ~%.2f per purchase, got %v", 12000.0/52, rec.AmountPerPurchase)
	}
}

func TestOptimizeFromPricesInsufficientHistory(t *testing.T) {
	o := NewOptimizer(nil, 42)

	_, err := o.OptimizeFromPrices(steadyPrices(10, 43000), validRequest())
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("Expected ErrInsufficientHistory, got %v", err)
	}
}

func TestOptimizeFromPricesDeterministicWithSeed(t *testing.T) {
	prices := choppyPrices(365, 43000)

	first, err := NewOptimizer(nil, 7).OptimizeFromPrices(prices, validRequest())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	second, err := NewOptimizer(nil, 7).OptimizeFromPrices(prices, validRequest())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if first.ExpectedReturnPct != second.ExpectedReturnPct {
		t.Errorf("Expected seeded runs to agree, got %v and %v",
			first.ExpectedReturnPct, second.ExpectedReturnPct)
	}
}

func TestOptimizeShortDurationStillPurchases(t *testing.T) {
	o := NewOptimizer(nil, 42)

	req := validRequest()
	req.DurationMonths = 1
	req.InvestmentAmount = 500

	rec, err := o.OptimizeFromPrices(steadyPrices(365, 43000), req)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if rec.AmountPerPurchase <= 0 {
		t.Errorf("Expected positive amount per purchase, got %v", rec.AmountPerPurchase)
	}
	if rec.AmountPerPurchase > 500 {
		t.Errorf("Amount per purchase exceeds total investment: %v", rec.AmountPerPurchase)
	}
}

func TestOptimizeFetchesHistory(t *testing.T) {
	provider := marketdata.NewSimulatedProvider(42)
	o := NewOptimizer(provider, 42)

	rec, err := o.Optimize(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if rec.Symbol != "BTC" {
		t.Errorf("Expected BTC recommendation, got %s", rec.Symbol)
	}
	if rec.OptimalFrequency == "" {
		t.Error("Expected a frequency recommendation")
	}
}

func TestOptimizeUnknownSymbol(t *testing.T) {
	provider := marketdata.NewSimulatedProvider(42)
	o := NewOptimizer(provider, 42)

	req := validRequest()
	req.Symbol = "NOPE"

	if _, err := o.Optimize(context.Background(), req); err == nil {
		t.Error("Expected history fetch failure for unknown symbol")
	}
}
