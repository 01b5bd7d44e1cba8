// Package trading implements the decision engine, risk gating,
// position lifecycle and the backtest/walk-forward simulator.
package trading

// DecisionParams carries the account-level sizing limits the decision
// engine applies to every actionable signal.
type DecisionParams struct {
	RiskPerTrade float64 // capital at risk per new position, in account currency
	MinStopFrac  float64 // tightest allowed stop distance as a fraction of entry
	MaxStopFrac  float64 // widest allowed stop distance as a fraction of entry
}

// LifecycleConfig tunes the partial take-profit and trailing stop.
type LifecycleConfig struct {
	PartialTP1Ratio float64 // fraction of the open lot closed at target1
	TrailingStopPct float64 // trail distance as a fraction of price once TP1 is done
}
