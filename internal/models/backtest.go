package models

import "time"

// BacktestResult summarizes one historical replay of the decision
// rules over a symbol.
type BacktestResult struct {
	Symbol           string        `json:"symbol"`
	Preset           string        `json:"preset"`
	Start            time.Time     `json:"start"`
	End              time.Time     `json:"end"`
	Bars             int           `json:"bars"`
	InitialCapital   float64       `json:"initial_capital"`
	FinalCapital     float64       `json:"final_capital"`
	TotalReturnPct   float64       `json:"total_return_pct"`
	MaxDrawdownPct   float64       `json:"max_drawdown_pct"`
	TotalTrades      int           `json:"total_trades"`
	Wins             int           `json:"wins"`
	Losses           int           `json:"losses"`
	WinRate          float64       `json:"win_rate"`
	ProfitFactor     float64       `json:"profit_factor"`
	AvgPnL           float64       `json:"avg_pnl"`
	AvgWin           float64       `json:"avg_win"`
	AvgLoss          float64       `json:"avg_loss"`
	ReturnVolatility float64       `json:"return_volatility"`
	Trades           []TradeRecord `json:"trades,omitempty"`
}

// FoldScore ranks a preset on a training window. The score blends
// return, profit factor and drawdown into a single comparable number.
type FoldScore struct {
	Preset         string  `json:"preset"`
	TotalReturnPct float64 `json:"total_return_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Score          float64 `json:"score"`
}

// WalkForwardFold is one (train, test) window pair: every preset is
// scored on the train window and the winner is evaluated out-of-sample
// on the test window.
type WalkForwardFold struct {
	Index          int             `json:"index"`
	TrainStart     time.Time       `json:"train_start"`
	TrainEnd       time.Time       `json:"train_end"`
	TestStart      time.Time       `json:"test_start"`
	TestEnd        time.Time       `json:"test_end"`
	SelectedPreset string          `json:"selected_preset"`
	TrainScores    []FoldScore     `json:"train_scores"`
	TestMetrics    *BacktestResult `json:"test_metrics"`
}

// WalkForwardResult aggregates all folds of a calibration run and the
// recommended preset (the one selected most often across folds).
type WalkForwardResult struct {
	Symbol            string            `json:"symbol"`
	Folds             []WalkForwardFold `json:"folds"`
	RecommendedPreset string            `json:"recommended_preset"`
	SelectionCounts   map[string]int    `json:"selection_counts"`
	AvgTestReturnPct  float64           `json:"avg_test_return_pct"`
	AvgTestDrawdown   float64           `json:"avg_test_drawdown"`
}
