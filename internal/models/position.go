package models

import "time"

// CloseReason explains why (part of) a position was closed.
type CloseReason string

const (
	CloseTrailingStop CloseReason = "TRAILING_STOP"
	CloseTP1          CloseReason = "TP1"
	CloseTP2          CloseReason = "TP2"
	CloseSellDecision CloseReason = "SELL_DECISION"

	// CloseEndOfData closes simulated positions left open when a
	// backtest runs out of bars.
	CloseEndOfData CloseReason = "END_OF_DATA"
)

// PositionEventType classifies position lifecycle events.
type PositionEventType string

const (
	EventOpen       PositionEventType = "open"
	EventPartialTP1 PositionEventType = "partial_tp1"
	EventClose      PositionEventType = "close"
	EventAlarm      PositionEventType = "alarm"
)

// Position is one open long position tracked by the engine. It is
// created when the risk controller approves a BUY and removed from the
// open-positions map once LotOpen reaches zero.
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Sector       string    `json:"sector"`
	OpenedAt     time.Time `json:"opened_at"`
	EntryPrice   float64   `json:"entry_price"`
	InitialStop  float64   `json:"initial_stop"`
	TrailingStop float64   `json:"trailing_stop"`
	Target1      float64   `json:"target1"`
	Target2      float64   `json:"target2"`
	LotTotal     int       `json:"lot_total"`
	LotOpen      int       `json:"lot_open"`
	TP1Done      bool      `json:"tp1_done"`
	RealizedPnL  float64   `json:"realized_pnl"`
}

// Clone returns a copy safe to hand outside the engine lock.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// PositionEvent records one lifecycle transition (open, partial exit,
// close) or a threshold alarm. Events feed notifications, the recent
// event ring and the store.
type PositionEvent struct {
	ID     string            `json:"id"`
	Time   time.Time         `json:"time"`
	Symbol string            `json:"symbol"`
	Type   PositionEventType `json:"type"`
	Reason CloseReason       `json:"reason,omitempty"`
	Price  float64           `json:"price"`
	Lot    int               `json:"lot"`
	PnL    float64           `json:"pnl"`
	Note   string            `json:"note,omitempty"`
}

// TradeRecord is one realized fill: a partial or full close of a
// position, or a simulated backtest exit.
type TradeRecord struct {
	Symbol     string      `json:"symbol"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   time.Time   `json:"exit_time"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	Lot        int         `json:"lot"`
	PnL        float64     `json:"pnl"`
	Reason     CloseReason `json:"reason"`
}

// RiskLedger tracks capital-at-risk committed today plus the open
// positions. Reset lazily at the first use of each calendar day.
type RiskLedger struct {
	Date          string               `json:"date"`
	DailyUsedRisk float64              `json:"daily_used_risk"`
	OpenPositions map[string]*Position `json:"open_positions"`
}

// NewRiskLedger returns an empty ledger stamped with the given day.
func NewRiskLedger(date string) *RiskLedger {
	return &RiskLedger{Date: date, OpenPositions: make(map[string]*Position)}
}

// PerformanceLedger accumulates realized results for one calendar day.
type PerformanceLedger struct {
	Date             string          `json:"date"`
	DailyRealizedPnL float64         `json:"daily_realized_pnl"`
	ClosedTrades     int             `json:"closed_trades"`
	PartialExits     int             `json:"partial_exits"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	DecisionCounts   map[Action]int  `json:"decision_counts"`
	RecentEvents     []PositionEvent `json:"recent_events"`
}

// NewPerformanceLedger returns an empty ledger stamped with the given day.
func NewPerformanceLedger(date string) *PerformanceLedger {
	return &PerformanceLedger{Date: date, DecisionCounts: make(map[Action]int)}
}

// maxRecentEvents bounds the in-memory event ring served by the panel.
const maxRecentEvents = 50

// RecordEvent appends an event to the ring, dropping the oldest entry
// once the ring is full.
func (pl *PerformanceLedger) RecordEvent(ev PositionEvent) {
	pl.RecentEvents = append(pl.RecentEvents, ev)
	if len(pl.RecentEvents) > maxRecentEvents {
		pl.RecentEvents = pl.RecentEvents[len(pl.RecentEvents)-maxRecentEvents:]
	}
}
