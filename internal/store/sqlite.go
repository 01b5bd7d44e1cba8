package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bist-sentinel/internal/models"
)

// SQLiteStore implements DataStore on a single sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Decisions, one row per analysis cycle per symbol
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		score INTEGER NOT NULL,
		price REAL NOT NULL,
		preset TEXT,
		levels TEXT,
		factors TEXT,
		reasons TEXT,
		risk_controls TEXT
	);

	-- Realized fills, including partial exits
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		lot INTEGER NOT NULL,
		pnl REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Position lifecycle events and fired alarms
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		time DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		reason TEXT,
		price REAL NOT NULL,
		lot INTEGER NOT NULL,
		pnl REAL NOT NULL,
		note TEXT
	);

	-- Backtest runs
	CREATE TABLE IF NOT EXISTS backtests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		preset TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		bars INTEGER NOT NULL,
		initial_capital REAL NOT NULL,
		final_capital REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		avg_pnl REAL NOT NULL,
		avg_win REAL NOT NULL,
		avg_loss REAL NOT NULL,
		return_volatility REAL NOT NULL,
		trades TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_symbol_time ON decisions(symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
	CREATE INDEX IF NOT EXISTS idx_backtests_symbol ON backtests(symbol, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDecision persists one decision. Saving the same decision ID
// again replaces the previous row.
func (s *SQLiteStore) SaveDecision(ctx context.Context, decision *models.Decision) error {
	levels, _ := json.Marshal(decision.Levels)
	factors, _ := json.Marshal(decision.Factors)
	reasons, _ := json.Marshal(decision.Reasons)
	riskControls, _ := json.Marshal(decision.RiskControls)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO decisions (id, created_at, symbol, action, score, price, preset, levels, factors, reasons, risk_controls)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, decision.ID, decision.CreatedAt, decision.Symbol, string(decision.Action), decision.Score, decision.Price, decision.Preset, string(levels), string(factors), string(reasons), string(riskControls))
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest decisions first, optionally for a
// single symbol. A non-positive limit defaults to 20.
func (s *SQLiteStore) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.Decision, error) {
	if limit <= 0 {
		limit = 20
	}

	query := "SELECT id, created_at, symbol, action, score, price, COALESCE(preset, ''), COALESCE(levels, 'null'), COALESCE(factors, 'null'), COALESCE(reasons, 'null'), COALESCE(risk_controls, 'null') FROM decisions WHERE 1=1"
	args := []interface{}{}

	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.Decision
	for rows.Next() {
		var d models.Decision
		var levelsJSON, factorsJSON, reasonsJSON, riskControlsJSON string

		if err := rows.Scan(&d.ID, &d.CreatedAt, &d.Symbol, &d.Action, &d.Score, &d.Price, &d.Preset, &levelsJSON, &factorsJSON, &reasonsJSON, &riskControlsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		json.Unmarshal([]byte(levelsJSON), &d.Levels)
		json.Unmarshal([]byte(factorsJSON), &d.Factors)
		json.Unmarshal([]byte(reasonsJSON), &d.Reasons)
		json.Unmarshal([]byte(riskControlsJSON), &d.RiskControls)
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// SaveTrade persists one realized fill.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, entry_time, exit_time, entry_price, exit_price, lot, pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.Symbol, trade.EntryTime, trade.ExitTime, trade.EntryPrice, trade.ExitPrice, trade.Lot, trade.PnL, string(trade.Reason))
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// TradeStats aggregates fills whose exit time falls inside the range.
// Zero range bounds are open-ended.
func (s *SQLiteStore) TradeStats(ctx context.Context, from, to time.Time) (*TradeStats, error) {
	where := " FROM trades WHERE 1=1"
	args := []interface{}{}
	if !from.IsZero() {
		where += " AND exit_time >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		where += " AND exit_time <= ?"
		args = append(args, to)
	}

	stats := &TradeStats{BySymbol: make(map[string]SymbolStats)}

	var wins, losses sql.NullInt64
	var grossWin, grossLoss float64
	var best, worst sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN pnl ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN pnl < 0 THEN -pnl ELSE 0 END), 0),
		       MAX(pnl),
		       MIN(pnl)
	`+where, args...).Scan(&stats.Total, &wins, &losses, &stats.TotalPnL, &grossWin, &grossLoss, &best, &worst)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}

	if wins.Valid {
		stats.Wins = int(wins.Int64)
	}
	if losses.Valid {
		stats.Losses = int(losses.Int64)
	}
	if best.Valid {
		stats.BestTrade = best.Float64
	}
	if worst.Valid {
		stats.WorstTrade = worst.Float64
	}
	if stats.Total > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Total) * 100
	}
	if stats.Wins > 0 {
		stats.AvgWin = grossWin / float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss = -grossLoss / float64(stats.Losses)
	}
	stats.ProfitFactor = grossWin / math.Max(grossLoss, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*), SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), COALESCE(SUM(pnl), 0)
	`+where+" GROUP BY symbol", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades by symbol: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var ss SymbolStats
		if err := rows.Scan(&symbol, &ss.Trades, &ss.Wins, &ss.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan symbol stats: %w", err)
		}
		stats.BySymbol[symbol] = ss
	}

	return stats, rows.Err()
}

// SaveEvent persists one lifecycle event or fired alarm.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *models.PositionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events (id, time, symbol, type, reason, price, lot, pnl, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Time, event.Symbol, string(event.Type), string(event.Reason), event.Price, event.Lot, event.PnL, event.Note)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events first. A non-positive limit
// defaults to 50.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]models.PositionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, time, symbol, type, COALESCE(reason, ''), price, lot, pnl, COALESCE(note, '')
		FROM events ORDER BY time DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.PositionEvent
	for rows.Next() {
		var ev models.PositionEvent
		if err := rows.Scan(&ev.ID, &ev.Time, &ev.Symbol, &ev.Type, &ev.Reason, &ev.Price, &ev.Lot, &ev.PnL, &ev.Note); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// SaveBacktest persists one backtest run, including its trade list as
// JSON.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, result *models.BacktestResult) error {
	trades, _ := json.Marshal(result.Trades)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtests (symbol, preset, start_date, end_date, bars, initial_capital, final_capital, total_return_pct, max_drawdown_pct, total_trades, wins, losses, win_rate, profit_factor, avg_pnl, avg_win, avg_loss, return_volatility, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.Symbol, result.Preset, result.Start, result.End, result.Bars, result.InitialCapital, result.FinalCapital, result.TotalReturnPct, result.MaxDrawdownPct, result.TotalTrades, result.Wins, result.Losses, result.WinRate, result.ProfitFactor, result.AvgPnL, result.AvgWin, result.AvgLoss, result.ReturnVolatility, string(trades))
	if err != nil {
		return fmt.Errorf("failed to save backtest: %w", err)
	}
	return nil
}

// RecentBacktests returns the newest runs first, optionally for one
// symbol. The per-run trade lists are left out of listings.
func (s *SQLiteStore) RecentBacktests(ctx context.Context, symbol string, limit int) ([]models.BacktestResult, error) {
	if limit <= 0 {
		limit = 10
	}

	query := "SELECT symbol, preset, start_date, end_date, bars, initial_capital, final_capital, total_return_pct, max_drawdown_pct, total_trades, wins, losses, win_rate, profit_factor, avg_pnl, avg_win, avg_loss, return_volatility FROM backtests WHERE 1=1"
	args := []interface{}{}

	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	var results []models.BacktestResult
	for rows.Next() {
		var r models.BacktestResult
		if err := rows.Scan(&r.Symbol, &r.Preset, &r.Start, &r.End, &r.Bars, &r.InitialCapital, &r.FinalCapital, &r.TotalReturnPct, &r.MaxDrawdownPct, &r.TotalTrades, &r.Wins, &r.Losses, &r.WinRate, &r.ProfitFactor, &r.AvgPnL, &r.AvgWin, &r.AvgLoss, &r.ReturnVolatility); err != nil {
			return nil, fmt.Errorf("failed to scan backtest: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
