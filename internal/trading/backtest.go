// Package trading provides historical replay of the decision rules.
package trading

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"bist-sentinel/internal/analysis/scoring"
	"bist-sentinel/internal/errors"
	"bist-sentinel/internal/models"
)

// BacktestConfig parameterizes a historical replay.
type BacktestConfig struct {
	InitialCapital float64
	RiskPercent    float64 // per-trade risk as a percent of current capital
	MinStopFrac    float64
	MaxStopFrac    float64
}

// Backtester replays the live decision rules over historical daily
// bars: technical and regime factors only, fundamentals and news
// pinned to neutral, one position at a time. It reads no live state,
// so it can run alongside the monitor loop without locking.
type Backtester struct {
	scorer *scoring.TechnicalScorer
	cfg    BacktestConfig
}

// NewBacktester creates a backtester with its own technical scorer.
func NewBacktester(cfg BacktestConfig) *Backtester {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100000
	}
	if cfg.RiskPercent <= 0 {
		cfg.RiskPercent = 1.0
	}
	if cfg.MinStopFrac <= 0 {
		cfg.MinStopFrac = 0.01
	}
	if cfg.MaxStopFrac <= 0 {
		cfg.MaxStopFrac = 0.08
	}
	return &Backtester{scorer: scoring.NewTechnicalScorer(), cfg: cfg}
}

// Run replays one preset over the bar series. History must cover the
// indicator warm-up plus at least one decision bar.
func (bt *Backtester) Run(ctx context.Context, symbol string, bars []models.PriceBar, preset models.StrategyPreset) (*models.BacktestResult, error) {
	if len(bars) < scoring.MinTechnicalBars+1 {
		return nil, errors.Wrapf(errors.ErrInsufficientHistory,
			"backtest %s: need %d daily bars, got %d", symbol, scoring.MinTechnicalBars+1, len(bars))
	}

	tech, err := bt.scorer.ScoreHistory(ctx, symbol, bars)
	if err != nil {
		return nil, err
	}
	regimes := scoring.RegimeHistory(bars)

	return bt.simulate(symbol, bars, tech, regimes, preset, scoring.MinTechnicalBars-1, len(bars)), nil
}

// simState tracks the single simulated position and the equity curve.
type simState struct {
	capital     float64
	peakEquity  float64
	maxDrawdown float64
	pos         *models.Position
}

// simulate replays the decision rules over bars[from:to) against
// precomputed technical and regime series. Exits are evaluated before
// new entries; at most one transition happens per bar.
func (bt *Backtester) simulate(symbol string, bars []models.PriceBar, tech []*scoring.TechnicalResult, regimes []models.FactorScore, preset models.StrategyPreset, from, to int) *models.BacktestResult {
	neutral := models.FactorScore{Value: scoring.NeutralScore}
	st := &simState{capital: bt.cfg.InitialCapital, peakEquity: bt.cfg.InitialCapital}
	var trades []models.TradeRecord

	for i := from; i < to; i++ {
		bar := bars[i]
		t := tech[i]
		if t == nil {
			continue
		}

		if st.pos != nil && bt.checkExit(st, bar, &trades) {
			bt.markEquity(st, bar.Close)
			continue
		}

		params := DecisionParams{
			RiskPerTrade: st.capital * bt.cfg.RiskPercent / 100,
			MinStopFrac:  bt.cfg.MinStopFrac,
			MaxStopFrac:  bt.cfg.MaxStopFrac,
		}
		dec := BuildDecision(symbol, bar.Close, t, neutral, neutral, regimes[i], preset, params)

		switch dec.Action {
		case models.ActionBuy:
			if st.pos == nil {
				bt.openSim(st, dec, bar)
			}
		case models.ActionSell:
			if st.pos != nil {
				trades = append(trades, bt.closeSim(st, bar.Close, bar.Date, models.CloseSellDecision))
			}
		}

		bt.markEquity(st, bar.Close)
	}

	// Flatten anything still open at the last bar.
	if st.pos != nil {
		last := bars[to-1]
		trades = append(trades, bt.closeSim(st, last.Close, last.Date, models.CloseEndOfData))
	}

	return bt.metrics(symbol, preset.Name, bars[from:to], st, trades)
}

// checkExit closes the simulated position when the close crosses the
// stop or the first target. The replay exits in full at target1: the
// live partial ladder needs intraday observations a daily replay does
// not have.
func (bt *Backtester) checkExit(st *simState, bar models.PriceBar, trades *[]models.TradeRecord) bool {
	switch {
	case bar.Close <= st.pos.InitialStop:
		*trades = append(*trades, bt.closeSim(st, st.pos.InitialStop, bar.Date, models.CloseTrailingStop))
		return true
	case bar.Close >= st.pos.Target1:
		*trades = append(*trades, bt.closeSim(st, st.pos.Target1, bar.Date, models.CloseTP1))
		return true
	}
	return false
}

// openSim opens the simulated position, capping the lot at what the
// current capital can fund.
func (bt *Backtester) openSim(st *simState, dec *models.Decision, bar models.PriceBar) {
	lv := dec.Levels
	if lv == nil || lv.Lot <= 0 {
		return
	}
	lot := lv.Lot
	if affordable := int(st.capital / bar.Close); lot > affordable {
		lot = affordable
	}
	if lot <= 0 {
		return
	}

	st.pos = &models.Position{
		Symbol:       dec.Symbol,
		OpenedAt:     bar.Date,
		EntryPrice:   bar.Close,
		InitialStop:  lv.Stop,
		TrailingStop: lv.Stop,
		Target1:      lv.Target1,
		Target2:      lv.Target2,
		LotTotal:     lot,
		LotOpen:      lot,
	}
}

// closeSim exits the whole simulated position and realizes its P&L.
func (bt *Backtester) closeSim(st *simState, price float64, when time.Time, reason models.CloseReason) models.TradeRecord {
	pos := st.pos
	pnl := (price - pos.EntryPrice) * float64(pos.LotOpen)
	st.capital += pnl

	tr := models.TradeRecord{
		Symbol:     pos.Symbol,
		EntryTime:  pos.OpenedAt,
		ExitTime:   when,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Lot:        pos.LotOpen,
		PnL:        pnl,
		Reason:     reason,
	}
	st.pos = nil
	return tr
}

// markEquity marks the open position to market and advances the
// peak/drawdown trackers.
func (bt *Backtester) markEquity(st *simState, price float64) {
	equity := st.capital
	if st.pos != nil {
		equity += (price - st.pos.EntryPrice) * float64(st.pos.LotOpen)
	}
	if equity > st.peakEquity {
		st.peakEquity = equity
	}
	if st.peakEquity > 0 {
		if dd := (st.peakEquity - equity) / st.peakEquity; dd > st.maxDrawdown {
			st.maxDrawdown = dd
		}
	}
}

// metrics folds the trade list into the aggregate result. Profit
// factor divides gross wins by gross losses, with losses floored at
// one currency unit so a lossless run stays finite and serializable.
func (bt *Backtester) metrics(symbol, preset string, window []models.PriceBar, st *simState, trades []models.TradeRecord) *models.BacktestResult {
	res := &models.BacktestResult{
		Symbol:         symbol,
		Preset:         preset,
		Start:          window[0].Date,
		End:            window[len(window)-1].Date,
		Bars:           len(window),
		InitialCapital: bt.cfg.InitialCapital,
		FinalCapital:   st.capital,
		TotalReturnPct: (st.capital - bt.cfg.InitialCapital) / bt.cfg.InitialCapital * 100,
		MaxDrawdownPct: st.maxDrawdown * 100,
		TotalTrades:    len(trades),
		Trades:         trades,
	}
	if len(trades) == 0 {
		return res
	}

	pnls := make([]float64, len(trades))
	var wins, losses []float64
	var grossWin, grossLoss float64
	for i, tr := range trades {
		pnls[i] = tr.PnL
		if tr.PnL > 0 {
			grossWin += tr.PnL
			wins = append(wins, tr.PnL)
		} else {
			grossLoss -= tr.PnL
			losses = append(losses, tr.PnL)
		}
	}

	res.Wins = len(wins)
	res.Losses = len(losses)
	res.WinRate = float64(res.Wins) / float64(len(trades)) * 100
	res.ProfitFactor = grossWin / math.Max(grossLoss, 1)
	res.AvgPnL = stat.Mean(pnls, nil)
	if len(pnls) > 1 {
		res.ReturnVolatility = stat.StdDev(pnls, nil)
	}
	if len(wins) > 0 {
		res.AvgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		res.AvgLoss = stat.Mean(losses, nil)
	}
	return res
}
