// Package scoring provides the factor scorers behind every decision:
// technical, fundamental, news and market regime. Scorers are pure
// given their inputs; none of them touches shared state or calls
// another scorer.
package scoring

import (
	"bist-sentinel/internal/models"
)

// MinTechnicalBars is the history required before the technical scorer
// will produce a result (EMA200 warm-up plus a few bars of slack).
const MinTechnicalBars = 205

// NeutralScore is the starting point for scorers that nudge a neutral
// baseline up or down (fundamental, news).
const NeutralScore = 50

// TechnicalResult couples the technical factor score with the
// indicator snapshot it was derived from and the stop candidates the
// decision engine places orders around.
type TechnicalResult struct {
	Score         models.FactorScore `json:"score"`
	Close         float64            `json:"close"`
	EMA20         float64            `json:"ema20"`
	EMA50         float64            `json:"ema50"`
	EMA200        float64            `json:"ema200"`
	RSI           float64            `json:"rsi"`
	ATR           float64            `json:"atr"`
	BreakoutLevel float64            `json:"breakout_level"`

	// LongStop sits strictly below Close, ShortStop strictly above.
	LongStop  float64 `json:"long_stop"`
	ShortStop float64 `json:"short_stop"`
}

// clamp restricts a value to the given range.
func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}

// clampScore clamps an accumulated score into the 0-100 factor range.
func clampScore(v float64) int {
	return int(clamp(v, 0, 100))
}
