package scoring

import (
	"fmt"

	"bist-sentinel/internal/models"
)

// FundamentalScorer nudges a neutral 50 up or down based on company
// ratios. Each ratio contributes a small fixed bonus or penalty only
// when it falls inside a defined good or bad band; absent ratios are
// skipped entirely.
type FundamentalScorer struct{}

// NewFundamentalScorer creates a fundamental scorer.
func NewFundamentalScorer() *FundamentalScorer {
	return &FundamentalScorer{}
}

// Score evaluates a sparse fundamentals snapshot. A nil snapshot means
// the data source was unavailable: the score stays neutral with no
// reasons.
func (s *FundamentalScorer) Score(snap *models.FundamentalsSnapshot) models.FactorScore {
	if snap == nil {
		return models.FactorScore{Value: NeutralScore}
	}

	score := float64(NeutralScore)
	var reasons []string

	if v := snap.PERatio; v != nil {
		switch {
		case *v > 0 && *v <= 12:
			score += 8
			reasons = append(reasons, fmt.Sprintf("P/E %.1f attractive", *v))
		case *v >= 30:
			score -= 8
			reasons = append(reasons, fmt.Sprintf("P/E %.1f expensive", *v))
		case *v <= 0:
			score -= 6
			reasons = append(reasons, "negative earnings")
		}
	}

	if v := snap.PBRatio; v != nil {
		switch {
		case *v > 0 && *v <= 1.5:
			score += 6
			reasons = append(reasons, fmt.Sprintf("P/B %.2f below book premium", *v))
		case *v >= 6:
			score -= 6
			reasons = append(reasons, fmt.Sprintf("P/B %.1f stretched", *v))
		}
	}

	if v := snap.ROE; v != nil {
		switch {
		case *v >= 20:
			score += 8
			reasons = append(reasons, fmt.Sprintf("ROE %.1f%% strong", *v))
		case *v < 0:
			score -= 8
			reasons = append(reasons, "negative ROE")
		case *v < 8:
			score -= 4
			reasons = append(reasons, fmt.Sprintf("ROE %.1f%% weak", *v))
		}
	}

	if v := snap.DebtToEquity; v != nil {
		switch {
		case *v >= 0 && *v <= 0.5:
			score += 6
			reasons = append(reasons, fmt.Sprintf("low leverage D/E %.2f", *v))
		case *v >= 2:
			score -= 8
			reasons = append(reasons, fmt.Sprintf("high leverage D/E %.1f", *v))
		}
	}

	if v := snap.RevenueGrowth; v != nil {
		switch {
		case *v >= 15:
			score += 6
			reasons = append(reasons, fmt.Sprintf("revenue growth %.1f%%", *v))
		case *v < 0:
			score -= 6
			reasons = append(reasons, fmt.Sprintf("revenue shrinking %.1f%%", *v))
		}
	}

	if v := snap.EarningsGrowth; v != nil {
		switch {
		case *v >= 15:
			score += 6
			reasons = append(reasons, fmt.Sprintf("earnings growth %.1f%%", *v))
		case *v < 0:
			score -= 6
			reasons = append(reasons, fmt.Sprintf("earnings shrinking %.1f%%", *v))
		}
	}

	if v := snap.ProfitMargin; v != nil {
		switch {
		case *v >= 15:
			score += 6
			reasons = append(reasons, fmt.Sprintf("profit margin %.1f%%", *v))
		case *v < 3:
			score -= 4
			reasons = append(reasons, fmt.Sprintf("thin margin %.1f%%", *v))
		}
	}

	return models.FactorScore{Value: clampScore(score), Reasons: reasons}
}
