package scoring

import (
	"fmt"
	"strings"
	"time"

	"bist-sentinel/internal/models"
)

// Keyword lists cover the wire-service phrasing seen on BIST names,
// Turkish first, English fallbacks for foreign coverage.
var positiveKeywords = []string{
	"rekor", "büyüme", "kârlılık", "kâr artışı", "anlaşma", "ihale",
	"yatırım", "temettü", "güçlü", "yükseliş",
	"record", "growth", "profit", "dividend", "contract", "upgrade", "beat",
}

var negativeKeywords = []string{
	"zarar", "dava", "ceza", "soruşturma", "düşüş", "iptal", "grev",
	"küçülme", "istifa",
	"loss", "lawsuit", "fine", "probe", "downgrade", "miss", "recall",
}

const (
	newsPointsPerHit = 8
	newsMaxSwing     = 30
)

// NewsScorer scans recent headlines for positive and negative keyword
// hits inside a lookback window.
type NewsScorer struct {
	lookback time.Duration
}

// NewNewsScorer creates a news scorer with the given lookback window.
func NewNewsScorer(lookback time.Duration) *NewsScorer {
	if lookback <= 0 {
		lookback = 72 * time.Hour
	}
	return &NewsScorer{lookback: lookback}
}

// Score counts keyword hits across headlines published within the
// lookback window ending at now. Each hit moves the score 8 points,
// capped at 30 in either direction. No headlines in the window leaves
// the score neutral with an explicit "no recent signal" reason.
func (s *NewsScorer) Score(headlines []models.Headline, now time.Time) models.FactorScore {
	cutoff := now.Add(-s.lookback)

	var posHits, negHits, inWindow int
	for _, h := range headlines {
		if h.PublishedAt.Before(cutoff) || h.PublishedAt.After(now) {
			continue
		}
		inWindow++
		title := strings.ToLower(h.Title)
		for _, kw := range positiveKeywords {
			if strings.Contains(title, kw) {
				posHits++
			}
		}
		for _, kw := range negativeKeywords {
			if strings.Contains(title, kw) {
				negHits++
			}
		}
	}

	if inWindow == 0 {
		return models.FactorScore{
			Value:   NeutralScore,
			Reasons: []string{fmt.Sprintf("no recent news signal (last %dh)", int(s.lookback.Hours()))},
		}
	}

	posSwing := clamp(float64(posHits*newsPointsPerHit), 0, newsMaxSwing)
	negSwing := clamp(float64(negHits*newsPointsPerHit), 0, newsMaxSwing)
	score := float64(NeutralScore) + posSwing - negSwing

	var reasons []string
	if posHits > 0 || negHits > 0 {
		reasons = append(reasons, fmt.Sprintf("%d positive / %d negative headline hits", posHits, negHits))
	} else {
		reasons = append(reasons, fmt.Sprintf("%d headlines, no keyword signal", inWindow))
	}

	return models.FactorScore{Value: clampScore(score), Reasons: reasons}
}
