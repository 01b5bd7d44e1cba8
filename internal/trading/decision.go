// Package trading provides decision building from factor scores.
package trading

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/models"
)

// fixedRiskReward is the reported reward-to-risk of every proposed
// trade: the first target always sits two risk units from entry.
const fixedRiskReward = 2.0

// entryBandPct widens the reference price into a small entry band so
// the alert stays actionable a few ticks away from the quoted price.
const entryBandPct = 0.005

// maxDecisionReasons caps the reasons shown on one decision.
const maxDecisionReasons = 5

// Decision gates on the factor scores, independent of the blended
// total: BUY needs a sound technical picture in a friendly regime,
// SELL triggers on technical breakdown in a hostile one.
const (
	buyMinTechnical  = 60
	buyMinRegime     = 50
	sellMaxTechnical = 35
	sellMaxRegime    = 45
)

// BuildDecision combines the four factor scores into an action with
// entry, stop and target levels. It is pure: no I/O, no shared state.
// Risk gating happens afterwards in the risk controller.
func BuildDecision(symbol string, price float64, tech *scoring.TechnicalResult, fund, news, regime models.FactorScore, preset models.StrategyPreset, params DecisionParams) *models.Decision {
	w := preset.Weights.Normalized()
	total := float64(tech.Score.Value)*w.Technical +
		float64(fund.Value)*w.Fundamental +
		float64(news.Value)*w.News +
		float64(regime.Value)*w.Regime

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	dec := &models.Decision{
		ID:     uuid.New().String(),
		Symbol: symbol,
		Action: models.ActionHold,
		Score:  score,
		Price:  price,
		Factors: map[models.Factor]models.FactorScore{
			models.FactorTechnical:   tech.Score,
			models.FactorFundamental: fund,
			models.FactorNews:        news,
			models.FactorRegime:      regime,
		},
		Reasons:   decisionReasons(tech.Score, fund, news, regime),
		Preset:    preset.Name,
		CreatedAt: time.Now(),
	}

	// BUY is checked first. A strong total is still vetoed by a weak
	// technical picture or a hostile regime.
	switch {
	case float64(score) >= preset.BuyThreshold &&
		tech.Score.Value >= buyMinTechnical &&
		regime.Value >= buyMinRegime:
		dec.Action = models.ActionBuy
		applyLevels(dec, price, tech.LongStop, 1, params)

	case float64(score) <= preset.SellThreshold ||
		(tech.Score.Value <= sellMaxTechnical && regime.Value < sellMaxRegime):
		dec.Action = models.ActionSell
		applyLevels(dec, price, tech.ShortStop, -1, params)
	}

	return dec
}

// applyLevels computes the trade levels for an actionable decision.
// side is +1 for BUY, -1 for SELL. A stop distance outside the allowed
// band or an unfundable lot downgrades the action to HOLD.
func applyLevels(dec *models.Decision, price, stop, side float64, params DecisionParams) {
	if price <= 0 {
		downgrade(dec, "no usable reference price")
		return
	}

	risk := (price - stop) * side
	frac := risk / price
	if frac < params.MinStopFrac || frac > params.MaxStopFrac {
		downgrade(dec, fmt.Sprintf("stop distance %.1f%% outside allowed %.1f%%-%.1f%% band",
			frac*100, params.MinStopFrac*100, params.MaxStopFrac*100))
		return
	}

	lot := 0
	if params.RiskPerTrade > 0 {
		lot = int(params.RiskPerTrade / risk)
	}
	if lot <= 0 {
		downgrade(dec, "risk per unit exceeds the per-trade budget")
		return
	}

	dec.Levels = &models.TradeLevels{
		EntryLow:   price * (1 - entryBandPct),
		EntryHigh:  price * (1 + entryBandPct),
		Stop:       stop,
		Target1:    price + side*2*risk,
		Target2:    price + side*3*risk,
		RiskReward: fixedRiskReward,
		Lot:        lot,
		RiskAmount: float64(lot) * risk,
	}
}

// downgrade flips an actionable decision back to HOLD with an
// explanatory reason, keeping the factor scores for display.
func downgrade(dec *models.Decision, reason string) {
	dec.Action = models.ActionHold
	dec.Levels = nil
	dec.Reasons = append([]string{reason}, dec.Reasons...)
}

// decisionReasons assembles the display reasons: the two strongest
// technical reasons, two fundamental, one news and the regime verdict,
// capped at five lines. Scorers emit reasons strongest-first.
func decisionReasons(tech, fund, news, regime models.FactorScore) []string {
	var out []string
	out = appendReasons(out, tech.Reasons, 2)
	out = appendReasons(out, fund.Reasons, 2)
	out = appendReasons(out, news.Reasons, 1)
	out = appendReasons(out, regime.Reasons, 1)
	if len(out) > maxDecisionReasons {
		out = out[:maxDecisionReasons]
	}
	return out
}

func appendReasons(dst, src []string, limit int) []string {
	for _, r := range src {
		if limit == 0 {
			break
		}
		if r == "" {
			continue
		}
		dst = append(dst, r)
		limit--
	}
	return dst
}
