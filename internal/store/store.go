// Package store persists decisions, realized trades, lifecycle events
// and backtest runs.
package store

import (
	"context"
	"time"

	"bist-sentinel/internal/models"
)

// DataStore is the persistence surface used by the engine, the panel
// and the CLI. Failures are reported to the caller; the monitor loop
// logs them and keeps sweeping.
type DataStore interface {
	// Decisions
	SaveDecision(ctx context.Context, decision *models.Decision) error
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.Decision, error)

	// Realized trades
	SaveTrade(ctx context.Context, trade *models.TradeRecord) error
	TradeStats(ctx context.Context, from, to time.Time) (*TradeStats, error)

	// Lifecycle events and alarms
	SaveEvent(ctx context.Context, event *models.PositionEvent) error
	RecentEvents(ctx context.Context, limit int) ([]models.PositionEvent, error)

	// Backtest runs
	SaveBacktest(ctx context.Context, result *models.BacktestResult) error
	RecentBacktests(ctx context.Context, symbol string, limit int) ([]models.BacktestResult, error)

	// Lifecycle
	Close() error
}

// TradeStats aggregates realized fills over a date range. Partial
// exits count as their own fills, so these are fill-level numbers,
// not position-level ones.
type TradeStats struct {
	Total        int                    `json:"total"`
	Wins         int                    `json:"wins"`
	Losses       int                    `json:"losses"`
	WinRate      float64                `json:"win_rate"`
	TotalPnL     float64                `json:"total_pnl"`
	AvgWin       float64                `json:"avg_win"`
	AvgLoss      float64                `json:"avg_loss"`
	ProfitFactor float64                `json:"profit_factor"`
	BestTrade    float64                `json:"best_trade"`
	WorstTrade   float64                `json:"worst_trade"`
	BySymbol     map[string]SymbolStats `json:"by_symbol"`
}

// SymbolStats breaks fills down for one symbol.
type SymbolStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}
