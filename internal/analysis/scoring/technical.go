package scoring

import (
	"context"
	"fmt"

	"bist-sentinel/internal/analysis/indicators"
	"bist-sentinel/internal/models"
)

// Stop candidates hug the tighter of EMA20 and an ATR multiple. The
// 1.2 multiplier keeps the stop outside one day of normal range.
const stopATRMultiple = 1.2

// fallbackStopPct is used when volatility collapses to the point where
// neither candidate sits on the risk side of the price.
const fallbackStopPct = 0.02

// TechnicalScorer scores a symbol from its daily bars: trend
// structure, pullback quality, breakout, momentum and volatility.
type TechnicalScorer struct {
	engine *indicators.Engine
}

// NewTechnicalScorer creates a technical scorer with its own
// indicator engine.
func NewTechnicalScorer() *TechnicalScorer {
	eng := indicators.NewEngine(4)
	eng.RegisterIndicator(indicators.NewEMA(20))
	eng.RegisterIndicator(indicators.NewEMA(50))
	eng.RegisterIndicator(indicators.NewEMA(200))
	eng.RegisterIndicator(indicators.NewRSI(14))
	eng.RegisterIndicator(indicators.NewATR(20))
	eng.RegisterIndicator(indicators.NewRollingHigh(20))
	return &TechnicalScorer{engine: eng}
}

// Score evaluates the most recent bar against the derived indicators.
// It fails when history is shorter than MinTechnicalBars; callers
// treat that as "cannot decide this cycle".
func (s *TechnicalScorer) Score(ctx context.Context, symbol string, bars []models.PriceBar) (*TechnicalResult, error) {
	if len(bars) < MinTechnicalBars {
		return nil, fmt.Errorf("%s: %w: need %d daily bars, got %d",
			symbol, indicators.ErrInsufficientData, MinTechnicalBars, len(bars))
	}

	series, err := s.engine.CalculateAll(ctx, bars)
	if err != nil {
		return nil, err
	}

	res := snapshotAt(series, bars, len(bars)-1)
	if res.EMA200 == 0 {
		return nil, fmt.Errorf("%s: %w: indicator warm-up incomplete", symbol, indicators.ErrInsufficientData)
	}

	res.evaluate()
	return res, nil
}

// ScoreHistory evaluates the scorer at every bar from warm-up onward,
// reusing a single indicator pass over the whole series. The returned
// slice is aligned with bars; entries before warm-up are nil. Used by
// the backtester, which replays the same scoring rules bar by bar.
func (s *TechnicalScorer) ScoreHistory(ctx context.Context, symbol string, bars []models.PriceBar) ([]*TechnicalResult, error) {
	if len(bars) < MinTechnicalBars {
		return nil, fmt.Errorf("%s: %w: need %d daily bars, got %d",
			symbol, indicators.ErrInsufficientData, MinTechnicalBars, len(bars))
	}

	series, err := s.engine.CalculateAll(ctx, bars)
	if err != nil {
		return nil, err
	}

	out := make([]*TechnicalResult, len(bars))
	for i := MinTechnicalBars - 1; i < len(bars); i++ {
		res := snapshotAt(series, bars, i)
		if res.EMA200 == 0 {
			continue
		}
		res.evaluate()
		out[i] = res
	}
	return out, nil
}

// snapshotAt collects the indicator values at index i into a result.
func snapshotAt(series map[string][]float64, bars []models.PriceBar, i int) *TechnicalResult {
	return &TechnicalResult{
		Close:         bars[i].Close,
		EMA20:         valueAt(series["EMA_20"], i),
		EMA50:         valueAt(series["EMA_50"], i),
		EMA200:        valueAt(series["EMA_200"], i),
		RSI:           valueAt(series["RSI_14"], i),
		ATR:           valueAt(series["ATR_20"], i),
		BreakoutLevel: valueAt(series["RollingHigh_20"], i),
	}
}

// evaluate fills the factor score and the stop candidates from the
// indicator snapshot. Score accumulates fixed bonuses and clamps to
// [0, 100].
func (r *TechnicalResult) evaluate() {
	var score float64
	var reasons []string

	// Trend structure, graded by how much of the EMA stack is aligned.
	switch {
	case r.EMA20 > r.EMA50 && r.EMA50 > r.EMA200:
		score += 35
		reasons = append(reasons, "EMA20>EMA50>EMA200 uptrend alignment")
	case r.EMA20 > r.EMA50:
		score += 18
		reasons = append(reasons, "EMA20 above EMA50")
	case r.EMA50 > r.EMA200:
		score += 10
		reasons = append(reasons, "EMA50 above EMA200")
	}

	if r.Close > r.EMA50 {
		score += 10
		reasons = append(reasons, "price above EMA50")
	}

	// Pulled back, not extended: within 1.5% of EMA20 either side.
	if r.EMA20 > 0 {
		dist := abs(r.Close/r.EMA20 - 1)
		if dist <= 0.015 {
			score += 15
			reasons = append(reasons, fmt.Sprintf("price %.1f%% from EMA20, pullback zone", dist*100))
		}
	}

	if r.Close > r.BreakoutLevel && r.BreakoutLevel > 0 {
		score += 15
		reasons = append(reasons, fmt.Sprintf("breakout above 20-day high %.2f", r.BreakoutLevel))
	}

	switch {
	case r.RSI >= 45 && r.RSI <= 62:
		score += 12
		reasons = append(reasons, fmt.Sprintf("RSI %.1f in balanced band", r.RSI))
	case (r.RSI >= 35 && r.RSI < 45) || (r.RSI > 62 && r.RSI <= 70):
		score += 6
		reasons = append(reasons, fmt.Sprintf("RSI %.1f acceptable", r.RSI))
	}

	if r.Close > 0 {
		atrPct := r.ATR / r.Close
		if atrPct >= 0.01 && atrPct <= 0.04 {
			score += 10
			reasons = append(reasons, fmt.Sprintf("ATR %.1f%% of price, healthy volatility", atrPct*100))
		}
	}

	r.Score = models.FactorScore{Value: clampScore(score), Reasons: reasons}
	r.LongStop, r.ShortStop = stopCandidates(r.Close, r.EMA20, r.ATR)
}

// stopCandidates picks the tighter of EMA20 and an ATR band on each
// side of price, guaranteed to sit strictly on the risk side.
func stopCandidates(price, ema20, atr float64) (longStop, shortStop float64) {
	longStop = price - stopATRMultiple*atr
	if ema20 < price && ema20 > longStop {
		longStop = ema20
	}
	if longStop >= price {
		longStop = price * (1 - fallbackStopPct)
	}

	shortStop = price + stopATRMultiple*atr
	if ema20 > price && ema20 < shortStop {
		shortStop = ema20
	}
	if shortStop <= price {
		shortStop = price * (1 + fallbackStopPct)
	}
	return longStop, shortStop
}

// valueAt returns series[i], or 0 when the series is missing or short.
func valueAt(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}

// abs returns the absolute value of a float64.
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
