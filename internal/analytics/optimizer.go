// Package analytics derives DCA plan recommendations from historical
// price data: a frequency suggestion driven by annualized volatility and
// a Monte Carlo estimate of the expected return.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"dca-autopilot/internal/dca"
	"dca-autopilot/internal/logging"
	"dca-autopilot/internal/marketdata"
)

// Optimizer errors
var (
	ErrInsufficientHistory = errors.New("not enough price history to optimize")
	ErrInvalidRequest      = errors.New("invalid optimization request")
)

// Risk tolerance levels and their volatility thresholds
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var volatilityThresholds = map[string]float64{
	RiskLow:    0.3,
	RiskMedium: 0.5,
	RiskHigh:   0.7,
}

const (
	minHistoryPoints   = 30
	defaultHistoryDays = 365
	monteCarloRuns     = 1000
)

// OptimizeRequest describes the plan to optimize
type OptimizeRequest struct {
	Symbol           string  `json:"symbol"`
	InvestmentAmount float64 `json:"investment_amount"` // Total quote currency to deploy
	DurationMonths   int     `json:"duration_months"`
	RiskTolerance    string  `json:"risk_tolerance"` // low, medium, high
}

// Validate rejects requests the optimizer cannot price
func (r *OptimizeRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if r.InvestmentAmount <= 0 {
		return fmt.Errorf("%w: investment amount must be positive, got %v", ErrInvalidRequest, r.InvestmentAmount)
	}
	if r.DurationMonths <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidRequest, r.DurationMonths)
	}
	if _, ok := volatilityThresholds[r.RiskTolerance]; !ok {
		return fmt.Errorf("%w: unknown risk tolerance %q", ErrInvalidRequest, r.RiskTolerance)
	}
	return nil
}

// Recommendation is the optimizer's output
type Recommendation struct {
	Symbol               string  `json:"symbol"`
	OptimalFrequency     string  `json:"optimal_frequency"`
	AmountPerPurchase    float64 `json:"recommended_amount_per_purchase"`
	ExpectedReturnPct    float64 `json:"expected_return"` // Percentage
	RiskScore            float64 `json:"risk_score"`      // 0.0 to 1.0
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	Explanation          string  `json:"strategy_explanation"`
}

// Optimizer computes plan recommendations from market history
type Optimizer struct {
	market marketdata.Provider
	logger *logging.Logger
	seed   uint64
}

// NewOptimizer creates an optimizer. A zero seed leaves the simulation
// non-deterministic.
func NewOptimizer(market marketdata.Provider, seed uint64) *Optimizer {
	return &Optimizer{
		market: market,
		logger: logging.WithComponent("analytics"),
		seed:   seed,
	}
}

// Optimize fetches the symbol's history and derives a recommendation
func (o *Optimizer) Optimize(ctx context.Context, req OptimizeRequest) (*Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	history, err := o.market.History(ctx, req.Symbol, defaultHistoryDays)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", req.Symbol, err)
	}

	prices := make([]float64, len(history))
	for i, pt := range history {
		prices[i] = pt.Price
	}

	rec, err := o.OptimizeFromPrices(prices, req)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Optimization computed",
		"symbol", req.Symbol,
		"frequency", rec.OptimalFrequency,
		"volatility", fmt.Sprintf("%.3f", rec.AnnualizedVolatility),
		"risk_score", fmt.Sprintf("%.3f", rec.RiskScore))

	return rec, nil
}

// OptimizeFromPrices computes a recommendation from a raw daily price
// series, oldest first
func (o *Optimizer) OptimizeFromPrices(prices []float64, req OptimizeRequest) (*Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(prices) < minHistoryPoints {
		return nil, fmt.Errorf("%w: have %d points, need %d", ErrInsufficientHistory, len(prices), minHistoryPoints)
	}

	returns := dailyReturns(prices)
	volatility := stat.StdDev(returns, nil) * math.Sqrt(365)
	threshold := volatilityThresholds[req.RiskTolerance]

	// Calmer markets tolerate less frequent purchases; volatile markets
	// average in more often.
	var frequency string
	var purchasesPerYear float64
	switch {
	case volatility < threshold*0.5:
		frequency = dca.FrequencyMonthly
		purchasesPerYear = 12
	case volatility < threshold:
		frequency = dca.FrequencyBiweekly
		purchasesPerYear = 26
	default:
		frequency = dca.FrequencyWeekly
		purchasesPerYear = 52
	}

	totalPurchases := float64(req.DurationMonths) / 12 * purchasesPerYear
	if totalPurchases < 1 {
		totalPurchases = 1
	}
	amountPerPurchase := req.InvestmentAmount / totalPurchases

	expectedReturn := o.monteCarlo(prices, returns, amountPerPurchase, int(totalPurchases))
	riskScore := math.Min(volatility/threshold, 1)

	return &Recommendation{
		Symbol:               req.Symbol,
		OptimalFrequency:     frequency,
		AmountPerPurchase:    round2(amountPerPurchase),
		ExpectedReturnPct:    round2(expectedReturn * 100),
		RiskScore:            round3(riskScore),
		AnnualizedVolatility: round3(volatility),
		Explanation:          explain(frequency, volatility, req.RiskTolerance, expectedReturn),
	}, nil
}

// monteCarlo simulates the DCA schedule against randomized daily returns
// drawn from the observed distribution and reports the mean relative
// profit across runs
func (o *Optimizer) monteCarlo(prices, returns []float64, amountPerPurchase float64, totalPurchases int) float64 {
	if totalPurchases < 1 {
		return 0
	}

	mean, std := stat.MeanStdDev(returns, nil)
	currentPrice := prices[len(prices)-1]

	var src rand.Source
	if o.seed != 0 {
		src = rand.NewSource(o.seed)
	}
	dist := distuv.Normal{Mu: mean, Sigma: std, Src: src}

	var sum float64
	var runs int
	for i := 0; i < monteCarloRuns; i++ {
		var portfolioValue, totalInvested float64

		for purchase := 0; purchase < totalPurchases; purchase++ {
			simulatedPrice := currentPrice * (1 + dist.Rand()*float64(purchase+1))
			if simulatedPrice <= 0 {
				continue
			}
			assetBought := amountPerPurchase / simulatedPrice
			portfolioValue += assetBought * currentPrice
			totalInvested += amountPerPurchase
		}

		if totalInvested > 0 {
			sum += (portfolioValue - totalInvested) / totalInvested
			runs++
		}
	}

	if runs == 0 {
		return 0
	}
	return sum / float64(runs)
}

func dailyReturns(prices []float64) []float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns
}

func explain(frequency string, volatility float64, riskTolerance string, expectedReturn float64) string {
	volDesc := "low"
	if volatility > 0.5 {
		volDesc = "high"
	} else if volatility > 0.3 {
		volDesc = "moderate"
	}

	return fmt.Sprintf(
		"Based on current market volatility (%s) and your %s risk tolerance, a %s DCA strategy is recommended. "+
			"This approach expects a %.1f%% return while managing downside risk through consistent dollar-cost averaging during market fluctuations.",
		volDesc, riskTolerance, frequency, expectedReturn*100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
