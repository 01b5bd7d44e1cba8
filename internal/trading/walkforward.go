// Package trading provides walk-forward preset calibration.
package trading

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/errors"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/performance"
)

// Fold scoring blends the train-window metrics into one comparable
// number. The profit factor is clamped so a lucky lossless window
// cannot dominate the selection.
const (
	foldProfitFactorWeight = 8.0
	foldDrawdownWeight     = 0.7
	foldProfitFactorCap    = 10.0
)

// walkforwardWorkers sizes the pool that evaluates folds in parallel.
const walkforwardWorkers = 4

// WalkForward slides (train, test) windows across history: every
// preset is simulated on the train window, the best-scoring one is
// evaluated out-of-sample on the following test window, and the preset
// selected most often across folds becomes the recommendation. Test
// windows tile the post-warm-up history without overlap.
func (bt *Backtester) WalkForward(ctx context.Context, symbol string, bars []models.PriceBar, presets []models.StrategyPreset, trainDays, testDays int) (*models.WalkForwardResult, error) {
	if len(presets) == 0 {
		return nil, fmt.Errorf("walkforward %s: no presets to calibrate", symbol)
	}
	if trainDays <= 0 || testDays <= 0 {
		return nil, fmt.Errorf("walkforward %s: train and test windows must be positive", symbol)
	}

	warmup := scoring.MinTechnicalBars
	if len(bars) < warmup+trainDays+testDays {
		return nil, errors.Wrapf(errors.ErrInsufficientHistory,
			"walkforward %s: need %d daily bars (%d warm-up + %d train + %d test), got %d",
			symbol, warmup+trainDays+testDays, warmup, trainDays, testDays, len(bars))
	}

	tech, err := bt.scorer.ScoreHistory(ctx, symbol, bars)
	if err != nil {
		return nil, err
	}
	regimes := scoring.RegimeHistory(bars)

	foldCount := (len(bars) - warmup - trainDays) / testDays
	folds := make([]models.WalkForwardFold, foldCount)

	// Folds only read the shared series and write their own slot, so
	// they fan out over a worker pool.
	pool := performance.NewWorkerPool(walkforwardWorkers)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	for f := 0; f < foldCount; f++ {
		f := f
		wg.Add(1)
		task := func() {
			defer wg.Done()
			folds[f] = bt.runFold(symbol, bars, tech, regimes, presets, f, warmup, trainDays, testDays)
		}
		if !pool.Submit(task) {
			task()
		}
	}
	wg.Wait()

	result := &models.WalkForwardResult{
		Symbol:          symbol,
		Folds:           folds,
		SelectionCounts: make(map[string]int),
	}

	rets := make([]float64, 0, foldCount)
	dds := make([]float64, 0, foldCount)
	for _, fold := range folds {
		result.SelectionCounts[fold.SelectedPreset]++
		if fold.TestMetrics != nil {
			rets = append(rets, fold.TestMetrics.TotalReturnPct)
			dds = append(dds, fold.TestMetrics.MaxDrawdownPct)
		}
	}
	if len(rets) > 0 {
		result.AvgTestReturnPct = stat.Mean(rets, nil)
		result.AvgTestDrawdown = stat.Mean(dds, nil)
	}

	// Ties resolve in preset declaration order.
	bestCount := -1
	for _, preset := range presets {
		if c := result.SelectionCounts[preset.Name]; c > bestCount {
			result.RecommendedPreset = preset.Name
			bestCount = c
		}
	}
	return result, nil
}

// runFold trains every preset on the fold's train window and evaluates
// the winner on the test window.
func (bt *Backtester) runFold(symbol string, bars []models.PriceBar, tech []*scoring.TechnicalResult, regimes []models.FactorScore, presets []models.StrategyPreset, f, warmup, trainDays, testDays int) models.WalkForwardFold {
	trainFrom := warmup + f*testDays
	trainTo := trainFrom + trainDays
	testTo := trainTo + testDays

	fold := models.WalkForwardFold{
		Index:      f,
		TrainStart: bars[trainFrom].Date,
		TrainEnd:   bars[trainTo-1].Date,
		TestStart:  bars[trainTo].Date,
		TestEnd:    bars[testTo-1].Date,
	}

	best := 0
	var bestScore float64
	for p, preset := range presets {
		res := bt.simulate(symbol, bars, tech, regimes, preset, trainFrom, trainTo)
		fs := scoreFold(res)
		fold.TrainScores = append(fold.TrainScores, fs)
		if p == 0 || fs.Score > bestScore {
			best, bestScore = p, fs.Score
		}
	}

	fold.SelectedPreset = presets[best].Name
	fold.TestMetrics = bt.simulate(symbol, bars, tech, regimes, presets[best], trainTo, testTo)
	return fold
}

// scoreFold ranks one train-window result.
func scoreFold(res *models.BacktestResult) models.FoldScore {
	pf := math.Min(res.ProfitFactor, foldProfitFactorCap)
	return models.FoldScore{
		Preset:         res.Preset,
		TotalReturnPct: res.TotalReturnPct,
		ProfitFactor:   res.ProfitFactor,
		MaxDrawdownPct: res.MaxDrawdownPct,
		Score:          res.TotalReturnPct + pf*foldProfitFactorWeight - res.MaxDrawdownPct*foldDrawdownWeight,
	}
}
