// Package engine owns the live engine state and the monitor loop that
// sweeps the watchlist through scoring, decisions, risk gating and
// position management.
package engine

import (
	"sync"
	"time"

	"bist-sentinel/internal/market"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/trading"
)

// alertStamp remembers the last alerted action per symbol so repeat
// decisions stay quiet until the action changes and the preset
// cooldown has passed.
type alertStamp struct {
	action models.Action
	at     time.Time
}

// CycleInfo describes the most recent monitor sweep.
type CycleInfo struct {
	Count          int       `json:"count"`
	LastStarted    time.Time `json:"last_started"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastFailures   int       `json:"last_failures"`
}

// CommitResult carries everything a commit produced so the caller can
// notify, publish and persist outside the lock.
type CommitResult struct {
	Decision *models.Decision
	Alert    bool
	Events   []models.PositionEvent
	Trades   []models.TradeRecord
}

// Snapshot is a consistent copy of the engine state for the panel and
// the schedulers. Market and Alarms are filled in by the monitor.
type Snapshot struct {
	GeneratedAt time.Time                          `json:"generated_at"`
	StartedAt   time.Time                          `json:"started_at"`
	Market      models.MarketStatus                `json:"market,omitempty"`
	Preset      models.StrategyPreset              `json:"preset"`
	Watchlist   []string                           `json:"watchlist"`
	Prices      map[string]float64                 `json:"prices"`
	Decisions   map[string]*models.Decision        `json:"decisions"`
	Risk        models.RiskLedger                  `json:"risk"`
	Performance models.PerformanceLedger           `json:"performance"`
	Alarms      map[string][]models.ThresholdAlarm `json:"alarms,omitempty"`
	Cycle       CycleInfo                          `json:"cycle"`
}

// EngineState holds all mutable live state behind one process-wide
// mutex: the ledgers, the latest decision and price per symbol, alert
// cooldown stamps and cycle counters. Every access goes through a
// method that takes the lock.
type EngineState struct {
	mu sync.Mutex

	startedAt time.Time
	preset    models.StrategyPreset
	watchlist []string

	riskCtl   *trading.RiskController
	lifecycle *trading.Lifecycle

	risk      *models.RiskLedger
	perf      *models.PerformanceLedger
	decisions map[string]*models.Decision
	prices    map[string]float64
	alerts    map[string]alertStamp
	cycle     CycleInfo
}

// NewEngineState creates the state container with empty ledgers
// stamped for now's trading date.
func NewEngineState(preset models.StrategyPreset, watchlist []string, riskCtl *trading.RiskController, lifecycle *trading.Lifecycle, now time.Time) *EngineState {
	date := market.TradingDate(now)
	return &EngineState{
		startedAt: now,
		preset:    preset,
		watchlist: append([]string(nil), watchlist...),
		riskCtl:   riskCtl,
		lifecycle: lifecycle,
		risk:      models.NewRiskLedger(date),
		perf:      models.NewPerformanceLedger(date),
		decisions: make(map[string]*models.Decision),
		prices:    make(map[string]float64),
		alerts:    make(map[string]alertStamp),
	}
}

// rolloverIfNewDay returns fresh ledgers when now falls on a different
// trading date than the given ledgers carry. Open positions survive
// into the new risk ledger; committed risk and realized counters
// reset. Same-day calls hand back the inputs unchanged.
func rolloverIfNewDay(risk *models.RiskLedger, perf *models.PerformanceLedger, now time.Time) (*models.RiskLedger, *models.PerformanceLedger, bool) {
	date := market.TradingDate(now)
	if risk.Date == date && perf.Date == date {
		return risk, perf, false
	}
	fresh := models.NewRiskLedger(date)
	for symbol, pos := range risk.OpenPositions {
		fresh.OpenPositions[symbol] = pos
	}
	return fresh, models.NewPerformanceLedger(date), true
}

// rollover runs the lazy daily reset. Caller holds the lock.
func (s *EngineState) rollover(now time.Time) bool {
	risk, perf, rolled := rolloverIfNewDay(s.risk, s.perf, now)
	s.risk, s.perf = risk, perf
	return rolled
}

// Commit applies one symbol observation under the lock. The lifecycle
// sees the fresh price first so an open position gets managed even
// when scoring produced no decision; then the decision, if any, runs
// through the risk gate and the alert policy.
func (s *EngineState) Commit(symbol string, dec *models.Decision, price float64, now time.Time) CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(now)

	var res CommitResult
	events, trades := s.lifecycle.Observe(s.risk, s.perf, symbol, price, now)
	res.Events = append(res.Events, events...)
	res.Trades = append(res.Trades, trades...)

	if price > 0 {
		s.prices[symbol] = price
	}

	if dec != nil {
		events, trades = s.riskCtl.Apply(s.risk, s.perf, dec, now)
		res.Events = append(res.Events, events...)
		res.Trades = append(res.Trades, trades...)

		s.perf.DecisionCounts[dec.Action]++
		s.decisions[symbol] = dec
		res.Decision = dec
		res.Alert = s.shouldAlert(symbol, dec.Action, now)
	}

	for _, ev := range res.Events {
		s.perf.RecordEvent(ev)
	}
	return res
}

// shouldAlert applies the alert policy: the first decision for a
// symbol always alerts, afterwards only an action change outside the
// preset cooldown does. A suppressed change keeps the old stamp, so
// the transition still alerts once the cooldown expires. Caller holds
// the lock.
func (s *EngineState) shouldAlert(symbol string, action models.Action, now time.Time) bool {
	prev, seen := s.alerts[symbol]
	if seen {
		if prev.action == action {
			return false
		}
		if now.Sub(prev.at) < s.preset.AlertCooldown {
			return false
		}
	}
	s.alerts[symbol] = alertStamp{action: action, at: now}
	return true
}

// RecordEvent appends an out-of-band event, such as a threshold
// alarm, to the day's event ring.
func (s *EngineState) RecordEvent(ev models.PositionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(ev.Time)
	s.perf.RecordEvent(ev)
}

// MarkCycle records sweep telemetry after a cycle finishes.
func (s *EngineState) MarkCycle(started time.Time, took time.Duration, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle.Count++
	s.cycle.LastStarted = started
	s.cycle.LastDurationMS = took.Milliseconds()
	s.cycle.LastFailures = failures
}

// Preset returns the active strategy preset.
func (s *EngineState) Preset() models.StrategyPreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// Watchlist returns a copy of the watched symbols.
func (s *EngineState) Watchlist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.watchlist...)
}

// Snapshot deep-copies the state under the lock. The caller may hold
// the copy, serialize it or hand it to notification formatting while
// the monitor keeps mutating the live state.
func (s *EngineState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.rollover(now)

	snap := Snapshot{
		GeneratedAt: now,
		StartedAt:   s.startedAt,
		Preset:      s.preset,
		Watchlist:   append([]string(nil), s.watchlist...),
		Prices:      make(map[string]float64, len(s.prices)),
		Decisions:   make(map[string]*models.Decision, len(s.decisions)),
		Cycle:       s.cycle,
	}
	for symbol, price := range s.prices {
		snap.Prices[symbol] = price
	}
	for symbol, dec := range s.decisions {
		snap.Decisions[symbol] = dec.Clone()
	}

	snap.Risk = models.RiskLedger{
		Date:          s.risk.Date,
		DailyUsedRisk: s.risk.DailyUsedRisk,
		OpenPositions: make(map[string]*models.Position, len(s.risk.OpenPositions)),
	}
	for symbol, pos := range s.risk.OpenPositions {
		snap.Risk.OpenPositions[symbol] = pos.Clone()
	}

	snap.Performance = *s.perf
	snap.Performance.DecisionCounts = make(map[models.Action]int, len(s.perf.DecisionCounts))
	for action, n := range s.perf.DecisionCounts {
		snap.Performance.DecisionCounts[action] = n
	}
	snap.Performance.RecentEvents = append([]models.PositionEvent(nil), s.perf.RecentEvents...)

	return snap
}
