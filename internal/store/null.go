package store

import (
	"context"
	"time"

	"bist-sentinel/internal/models"
)

// NullStore discards writes and returns empty reads. The engine runs
// on it when the sqlite file cannot be opened, so persistence loss
// never stops the sweep.
type NullStore struct{}

// NewNullStore returns the no-op store.
func NewNullStore() *NullStore {
	return &NullStore{}
}

func (n *NullStore) SaveDecision(ctx context.Context, decision *models.Decision) error { return nil }

func (n *NullStore) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.Decision, error) {
	return nil, nil
}

func (n *NullStore) SaveTrade(ctx context.Context, trade *models.TradeRecord) error { return nil }

func (n *NullStore) TradeStats(ctx context.Context, from, to time.Time) (*TradeStats, error) {
	return &TradeStats{BySymbol: map[string]SymbolStats{}}, nil
}

func (n *NullStore) SaveEvent(ctx context.Context, event *models.PositionEvent) error { return nil }

func (n *NullStore) RecentEvents(ctx context.Context, limit int) ([]models.PositionEvent, error) {
	return nil, nil
}

func (n *NullStore) SaveBacktest(ctx context.Context, result *models.BacktestResult) error {
	return nil
}

func (n *NullStore) RecentBacktests(ctx context.Context, symbol string, limit int) ([]models.BacktestResult, error) {
	return nil, nil
}

func (n *NullStore) Close() error { return nil }
