// Package models provides domain models for the alert engine.
package models

import (
	"time"
)

// Action represents the outcome of a decision cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Factor identifies one scoring dimension.
type Factor string

const (
	FactorTechnical   Factor = "technical"
	FactorFundamental Factor = "fundamental"
	FactorNews        Factor = "news"
	FactorRegime      Factor = "regime"
)

// MarketStatus represents the current market session state.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// PriceBar represents one daily OHLCV bar. Bars are ordered
// chronologically per symbol and never mutated once recorded.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// FactorScore is a 0-100 signal from one analytical dimension plus the
// human-readable reasons behind it. Produced fresh each evaluation.
type FactorScore struct {
	Value   int      `json:"value"`
	Reasons []string `json:"reasons,omitempty"`
}

// FactorWeights holds the per-factor blend weights of a preset.
// Weights need not sum to 1; call Normalized before applying them.
type FactorWeights struct {
	Technical   float64 `json:"technical" mapstructure:"technical"`
	Fundamental float64 `json:"fundamental" mapstructure:"fundamental"`
	News        float64 `json:"news" mapstructure:"news"`
	Regime      float64 `json:"regime" mapstructure:"regime"`
}

// Sum returns the raw weight total.
func (w FactorWeights) Sum() float64 {
	return w.Technical + w.Fundamental + w.News + w.Regime
}

// Normalized returns a copy scaled so the weights sum to 1.0.
// A tuple with no positive weight normalizes to all zeros.
func (w FactorWeights) Normalized() FactorWeights {
	sum := w.Sum()
	if sum <= 0 {
		return FactorWeights{}
	}
	return FactorWeights{
		Technical:   w.Technical / sum,
		Fundamental: w.Fundamental / sum,
		News:        w.News / sum,
		Regime:      w.Regime / sum,
	}
}

// StrategyPreset bundles decision thresholds and factor weights under a
// name. Three canonical presets ship with the engine: Aggressive,
// Balanced and Conservative.
type StrategyPreset struct {
	Name          string        `json:"name"`
	BuyThreshold  float64       `json:"buy_threshold"`
	SellThreshold float64       `json:"sell_threshold"`
	Weights       FactorWeights `json:"weights"`
	AlertCooldown time.Duration `json:"alert_cooldown"`
}

// FundamentalsSnapshot is a sparse set of company ratios. Nil fields
// mean the data source did not report the ratio; scorers skip them.
type FundamentalsSnapshot struct {
	PERatio        *float64 `json:"pe_ratio,omitempty"`
	PBRatio        *float64 `json:"pb_ratio,omitempty"`
	ROE            *float64 `json:"roe,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty"`
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`
	ProfitMargin   *float64 `json:"profit_margin,omitempty"`
}

// Headline represents one news item for a symbol.
type Headline struct {
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}
