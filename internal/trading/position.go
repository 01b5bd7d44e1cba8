// Package trading provides the open-position lifecycle.
package trading

import (
	"math"
	"time"

	"github.com/google/uuid"

	"bist-sentinel/internal/models"
)

// Lifecycle drives each open position through partial take-profit,
// trailing-stop tightening and final close. Callers hold the engine
// lock across Observe.
type Lifecycle struct {
	cfg LifecycleConfig
}

// NewLifecycle creates a lifecycle manager, falling back to a 50%
// partial exit and a 3% trail for unset config values.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	if cfg.PartialTP1Ratio <= 0 || cfg.PartialTP1Ratio > 1 {
		cfg.PartialTP1Ratio = 0.5
	}
	if cfg.TrailingStopPct <= 0 {
		cfg.TrailingStopPct = 0.03
	}
	return &Lifecycle{cfg: cfg}
}

// Observe applies one price observation to the symbol's open position,
// if any. At most one transition fires per observation: stop cross
// closes everything, the first touch of target1 scales out and arms
// the trail, target2 closes the remainder, and any further advance
// only tightens the trail. Fully closed positions leave the ledger.
func (lc *Lifecycle) Observe(ledger *models.RiskLedger, perf *models.PerformanceLedger, symbol string, price float64, now time.Time) ([]models.PositionEvent, []models.TradeRecord) {
	pos, ok := ledger.OpenPositions[symbol]
	if !ok || price <= 0 {
		return nil, nil
	}

	switch {
	case price <= pos.TrailingStop:
		ev, tr := closeLot(pos, perf, pos.LotOpen, pos.TrailingStop, models.CloseTrailingStop, now)
		delete(ledger.OpenPositions, symbol)
		return []models.PositionEvent{ev}, []models.TradeRecord{tr}

	case !pos.TP1Done && price >= pos.Target1:
		return lc.partialTakeProfit(ledger, perf, pos, now)

	case pos.TP1Done && price >= pos.Target2:
		ev, tr := closeLot(pos, perf, pos.LotOpen, pos.Target2, models.CloseTP2, now)
		delete(ledger.OpenPositions, symbol)
		return []models.PositionEvent{ev}, []models.TradeRecord{tr}

	case pos.TP1Done:
		// An advance tightens the trail; it never loosens.
		if next := price * (1 - lc.cfg.TrailingStopPct); next > pos.TrailingStop {
			pos.TrailingStop = next
		}
	}
	return nil, nil
}

// partialTakeProfit scales out the configured fraction at target1,
// marks TP1 done and moves the stop to break-even: the higher of entry
// and the current trailing stop.
func (lc *Lifecycle) partialTakeProfit(ledger *models.RiskLedger, perf *models.PerformanceLedger, pos *models.Position, now time.Time) ([]models.PositionEvent, []models.TradeRecord) {
	lot := int(float64(pos.LotOpen) * lc.cfg.PartialTP1Ratio)
	pos.TP1Done = true
	pos.TrailingStop = math.Max(pos.EntryPrice, pos.TrailingStop)

	if lot <= 0 {
		return nil, nil
	}

	ev, tr := closeLot(pos, perf, lot, pos.Target1, models.CloseTP1, now)
	if pos.LotOpen == 0 {
		delete(ledger.OpenPositions, pos.Symbol)
	}
	return []models.PositionEvent{ev}, []models.TradeRecord{tr}
}

// closeLot realizes a full or partial exit: it reduces the open lot,
// books the P&L into the position and the day's performance ledger,
// and returns the emitted event plus the realized trade record. The
// caller removes fully closed positions from the ledger and routes the
// event to notification and persistence.
func closeLot(pos *models.Position, perf *models.PerformanceLedger, lot int, price float64, reason models.CloseReason, now time.Time) (models.PositionEvent, models.TradeRecord) {
	if lot > pos.LotOpen {
		lot = pos.LotOpen
	}

	pnl := (price - pos.EntryPrice) * float64(lot)
	pos.LotOpen -= lot
	pos.RealizedPnL += pnl
	perf.DailyRealizedPnL += pnl

	evType := models.EventClose
	if pos.LotOpen > 0 && reason == models.CloseTP1 {
		evType = models.EventPartialTP1
		perf.PartialExits++
	} else {
		perf.ClosedTrades++
		// Win/loss tallies judge the whole position, partial fills
		// included in its realized total.
		if pos.RealizedPnL > 0 {
			perf.Wins++
		} else {
			perf.Losses++
		}
	}

	ev := models.PositionEvent{
		ID:     uuid.New().String(),
		Time:   now,
		Symbol: pos.Symbol,
		Type:   evType,
		Reason: reason,
		Price:  price,
		Lot:    lot,
		PnL:    pnl,
	}
	tr := models.TradeRecord{
		Symbol:     pos.Symbol,
		EntryTime:  pos.OpenedAt,
		ExitTime:   now,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Lot:        lot,
		PnL:        pnl,
		Reason:     reason,
	}
	return ev, tr
}
