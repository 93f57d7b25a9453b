package signals

import (
	"time"
)

// Indicator identifies which indicator produced a signal
type Indicator string

const (
	IndicatorRSI       Indicator = "RSI"
	IndicatorMACD      Indicator = "MACD"
	IndicatorVolume    Indicator = "Volume"
	IndicatorBollinger Indicator = "BollingerPosition"
)

// AllIndicators lists every indicator a source can emit
var AllIndicators = []Indicator{
	IndicatorRSI,
	IndicatorMACD,
	IndicatorVolume,
	IndicatorBollinger,
}

// ValidIndicator reports whether s names a known indicator
func ValidIndicator(s string) bool {
	for _, ind := range AllIndicators {
		if string(ind) == s {
			return true
		}
	}
	return false
}

// Action is the recommendation a signal carries
type Action string

const (
	ActionBuy        Action = "buy"
	ActionSell       Action = "sell"
	ActionHold       Action = "hold"
	ActionStrongBuy  Action = "strong_buy"
	ActionStrongSell Action = "strong_sell"
)

// AllActions lists every recognized action
var AllActions = []Action{
	ActionBuy,
	ActionSell,
	ActionHold,
	ActionStrongBuy,
	ActionStrongSell,
}

// ValidAction reports whether s names a known action
func ValidAction(s string) bool {
	for _, a := range AllActions {
		if string(a) == s {
			return true
		}
	}
	return false
}

// TradingSignal is a single indicator reading for one symbol. Signals are
// immutable once generated; each evaluation pass works on a fresh batch.
type TradingSignal struct {
	ID         string    `json:"id"`
	Indicator  Indicator `json:"indicator"`
	Action     Action    `json:"action"`
	Strength   float64   `json:"strength"`   // 0.0 to 1.0
	Confidence float64   `json:"confidence"` // 0.0 to 1.0
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
}
