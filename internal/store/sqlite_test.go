package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"bist-sentinel/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedDecision(id, symbol string, action models.Action, createdAt time.Time) *models.Decision {
	return &models.Decision{
		ID:     id,
		Symbol: symbol,
		Action: action,
		Score:  74,
		Price:  100,
		Levels: &models.TradeLevels{
			EntryLow:   99.5,
			EntryHigh:  100.5,
			Stop:       97,
			Target1:    106,
			Target2:    109,
			RiskReward: 2.0,
			Lot:        333,
			RiskAmount: 999,
		},
		Factors: map[models.Factor]models.FactorScore{
			models.FactorTechnical: {Value: 75, Reasons: []string{"trend aligned"}},
			models.FactorRegime:    {Value: 60, Reasons: []string{"index above average"}},
		},
		Reasons:   []string{"trend aligned", "breakout"},
		Preset:    "Balanced",
		CreatedAt: createdAt,
	}
}

func TestSaveAndRecentDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	for i, dec := range []*models.Decision{
		storedDecision("d1", "FROTO", models.ActionHold, base),
		storedDecision("d2", "TUPRS", models.ActionBuy, base.Add(time.Hour)),
		storedDecision("d3", "FROTO", models.ActionBuy, base.Add(2*time.Hour)),
	} {
		if err := s.SaveDecision(ctx, dec); err != nil {
			t.Fatalf("Failed to save decision %d: %v", i, err)
		}
	}

	all, err := s.RecentDecisions(ctx, "", 10)
	if err != nil {
		t.Fatalf("Failed to query decisions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 decisions, got %d", len(all))
	}
	if all[0].ID != "d3" || all[2].ID != "d1" {
		t.Errorf("Expected newest-first order d3..d1, got %s..%s", all[0].ID, all[2].ID)
	}

	froto, err := s.RecentDecisions(ctx, "FROTO", 10)
	if err != nil {
		t.Fatalf("Failed to query FROTO decisions: %v", err)
	}
	if len(froto) != 2 {
		t.Fatalf("Expected 2 FROTO decisions, got %d", len(froto))
	}

	got := froto[0]
	if got.Action != models.ActionBuy {
		t.Errorf("Expected action BUY, got %s", got.Action)
	}
	if got.Score != 74 {
		t.Errorf("Expected score 74, got %d", got.Score)
	}
	if got.Levels == nil || got.Levels.Stop != 97 {
		t.Errorf("Expected levels with stop 97, got %+v", got.Levels)
	}
	if got.FactorValue(models.FactorTechnical, 0) != 75 {
		t.Errorf("Expected technical factor 75 after round trip, got %d", got.FactorValue(models.FactorTechnical, 0))
	}
	if len(got.Reasons) != 2 || got.Reasons[0] != "trend aligned" {
		t.Errorf("Expected reasons to survive round trip, got %v", got.Reasons)
	}
	if got.RiskControls != nil {
		t.Errorf("Expected nil risk controls, got %+v", got.RiskControls)
	}
	if got.CreatedAt.Unix() != base.Add(2*time.Hour).Unix() {
		t.Errorf("Expected created_at %v, got %v", base.Add(2*time.Hour), got.CreatedAt)
	}
}

func TestSaveDecisionReplacesSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	first := storedDecision("d1", "FROTO", models.ActionHold, base)
	if err := s.SaveDecision(ctx, first); err != nil {
		t.Fatalf("Failed to save decision: %v", err)
	}

	second := storedDecision("d1", "FROTO", models.ActionSell, base)
	second.RiskControls = &models.RiskControls{
		DailyBudget: 3000,
		DailyUsed:   900,
		BlockReason: "daily risk budget exceeded (used 2800 + 500 > 3000)",
	}
	if err := s.SaveDecision(ctx, second); err != nil {
		t.Fatalf("Failed to replace decision: %v", err)
	}

	decisions, err := s.RecentDecisions(ctx, "FROTO", 10)
	if err != nil {
		t.Fatalf("Failed to query decisions: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("Expected 1 decision after replace, got %d", len(decisions))
	}
	if decisions[0].Action != models.ActionSell {
		t.Errorf("Expected replaced action SELL, got %s", decisions[0].Action)
	}
	if !decisions[0].RiskControls.Blocked() {
		t.Errorf("Expected blocked risk controls after round trip, got %+v", decisions[0].RiskControls)
	}
}

func TestTradeStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	trades := []models.TradeRecord{
		{Symbol: "FROTO", EntryTime: entry, ExitTime: entry.Add(24 * time.Hour), EntryPrice: 100, ExitPrice: 106, Lot: 50, PnL: 300, Reason: models.CloseTP1},
		{Symbol: "FROTO", EntryTime: entry, ExitTime: entry.Add(48 * time.Hour), EntryPrice: 100, ExitPrice: 103, Lot: 50, PnL: 150, Reason: models.CloseTP2},
		{Symbol: "TUPRS", EntryTime: entry, ExitTime: entry.Add(24 * time.Hour), EntryPrice: 200, ExitPrice: 196, Lot: 50, PnL: -200, Reason: models.CloseTrailingStop},
		{Symbol: "GARAN", EntryTime: entry, ExitTime: entry.Add(24 * time.Hour), EntryPrice: 60, ExitPrice: 60, Lot: 100, PnL: 0, Reason: models.CloseSellDecision},
		// Outside the queried range.
		{Symbol: "FROTO", EntryTime: entry.AddDate(0, -2, 0), ExitTime: entry.AddDate(0, -1, 0), EntryPrice: 90, ExitPrice: 99, Lot: 100, PnL: 900, Reason: models.CloseTP2},
	}
	for i := range trades {
		if err := s.SaveTrade(ctx, &trades[i]); err != nil {
			t.Fatalf("Failed to save trade %d: %v", i, err)
		}
	}

	stats, err := s.TradeStats(ctx, entry, entry.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Failed to aggregate trades: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Expected 4 trades in range, got %d", stats.Total)
	}
	if stats.Wins != 2 || stats.Losses != 1 {
		t.Errorf("Expected 2 wins and 1 loss, got %d and %d", stats.Wins, stats.Losses)
	}
	if stats.WinRate != 50 {
		t.Errorf("Expected win rate 50, got %.2f", stats.WinRate)
	}
	if math.Abs(stats.TotalPnL-250) > 1e-9 {
		t.Errorf("Expected total PnL 250, got %.2f", stats.TotalPnL)
	}
	if math.Abs(stats.AvgWin-225) > 1e-9 {
		t.Errorf("Expected avg win 225, got %.2f", stats.AvgWin)
	}
	if math.Abs(stats.AvgLoss-(-200)) > 1e-9 {
		t.Errorf("Expected avg loss -200, got %.2f", stats.AvgLoss)
	}
	if math.Abs(stats.ProfitFactor-2.25) > 1e-9 {
		t.Errorf("Expected profit factor 2.25, got %.2f", stats.ProfitFactor)
	}
	if stats.BestTrade != 300 || stats.WorstTrade != -200 {
		t.Errorf("Expected best 300 and worst -200, got %.2f and %.2f", stats.BestTrade, stats.WorstTrade)
	}

	froto := stats.BySymbol["FROTO"]
	if froto.Trades != 2 || froto.Wins != 2 || math.Abs(froto.PnL-450) > 1e-9 {
		t.Errorf("Expected FROTO 2/2/450, got %+v", froto)
	}
	if stats.BySymbol["GARAN"].Wins != 0 {
		t.Errorf("Expected break-even trade to count as no win, got %+v", stats.BySymbol["GARAN"])
	}
}

func TestTradeStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.TradeStats(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to aggregate empty table: %v", err)
	}
	if stats.Total != 0 || stats.Wins != 0 || stats.Losses != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
	if stats.ProfitFactor != 0 {
		t.Errorf("Expected profit factor 0 on empty table, got %.2f", stats.ProfitFactor)
	}
}

func TestSaveAndRecentEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	events := []models.PositionEvent{
		{ID: "e1", Time: base, Symbol: "FROTO", Type: models.EventOpen, Price: 100, Lot: 100},
		{ID: "e2", Time: base.Add(time.Hour), Symbol: "FROTO", Type: models.EventPartialTP1, Reason: models.CloseTP1, Price: 106, Lot: 50, PnL: 300},
		{ID: "e3", Time: base.Add(2 * time.Hour), Symbol: "TUPRS", Type: models.EventAlarm, Price: 94.5, Note: "below 95"},
	}
	for i := range events {
		if err := s.SaveEvent(ctx, &events[i]); err != nil {
			t.Fatalf("Failed to save event %d: %v", i, err)
		}
	}

	recent, err := s.RecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to query events: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 events with limit, got %d", len(recent))
	}
	if recent[0].ID != "e3" || recent[1].ID != "e2" {
		t.Errorf("Expected newest-first e3, e2, got %s, %s", recent[0].ID, recent[1].ID)
	}
	if recent[0].Type != models.EventAlarm || recent[0].Note != "below 95" {
		t.Errorf("Expected alarm event round trip, got %+v", recent[0])
	}
	if recent[1].Reason != models.CloseTP1 || recent[1].PnL != 300 {
		t.Errorf("Expected partial exit round trip, got %+v", recent[1])
	}
}

func TestSaveBacktestAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 180)
	result := &models.BacktestResult{
		Symbol:         "FROTO",
		Preset:         "Balanced",
		Start:          start,
		End:            end,
		Bars:           180,
		InitialCapital: 100000,
		FinalCapital:   104500,
		TotalReturnPct: 4.5,
		MaxDrawdownPct: 2.1,
		TotalTrades:    12,
		Wins:           7,
		Losses:         5,
		WinRate:        58.33,
		ProfitFactor:   1.8,
		AvgPnL:         375,
		AvgWin:         900,
		AvgLoss:        -360,
		Trades: []models.TradeRecord{
			{Symbol: "FROTO", EntryTime: start, ExitTime: start.AddDate(0, 0, 3), EntryPrice: 100, ExitPrice: 106, Lot: 10, PnL: 60, Reason: models.CloseTP1},
		},
	}
	if err := s.SaveBacktest(ctx, result); err != nil {
		t.Fatalf("Failed to save backtest: %v", err)
	}

	other := *result
	other.Preset = "Aggressive"
	other.Symbol = "TUPRS"
	if err := s.SaveBacktest(ctx, &other); err != nil {
		t.Fatalf("Failed to save second backtest: %v", err)
	}

	all, err := s.RecentBacktests(ctx, "", 10)
	if err != nil {
		t.Fatalf("Failed to query backtests: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 backtests, got %d", len(all))
	}
	if all[0].Symbol != "TUPRS" {
		t.Errorf("Expected newest run first, got %s", all[0].Symbol)
	}

	froto, err := s.RecentBacktests(ctx, "FROTO", 10)
	if err != nil {
		t.Fatalf("Failed to query FROTO backtests: %v", err)
	}
	if len(froto) != 1 {
		t.Fatalf("Expected 1 FROTO backtest, got %d", len(froto))
	}
	got := froto[0]
	if got.FinalCapital != 104500 || got.ProfitFactor != 1.8 {
		t.Errorf("Expected metrics round trip, got %+v", got)
	}
	if got.Trades != nil {
		t.Errorf("Expected trade list left out of listings, got %d trades", len(got.Trades))
	}
	if got.Start.Unix() != start.Unix() || got.End.Unix() != end.Unix() {
		t.Errorf("Expected date range round trip, got %v to %v", got.Start, got.End)
	}
}
