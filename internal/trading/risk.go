// Package trading provides risk gating for fresh decisions.
package trading

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bist-sentinel/internal/models"
)

// SectorLookupFunc resolves the sector of a symbol. The lookup may hit
// an external catalog; the controller memoizes results.
type SectorLookupFunc func(symbol string) (string, error)

// UnknownSector is assigned when the sector lookup fails.
const UnknownSector = "UNKNOWN"

// RiskController gates approved decisions against the daily risk
// budget and the position caps, and owns the open-position bookkeeping
// on the risk ledger. Callers hold the engine lock across Apply, which
// also serializes access to the sector memo.
type RiskController struct {
	dailyBudget  float64
	maxActive    int
	maxPerSector int

	lookup  SectorLookupFunc
	sectors map[string]string
}

// NewRiskController creates a risk controller. dailyBudget is the
// capital-at-risk allowed to be committed per calendar day.
func NewRiskController(dailyBudget float64, maxActive, maxPerSector int, lookup SectorLookupFunc) *RiskController {
	return &RiskController{
		dailyBudget:  dailyBudget,
		maxActive:    maxActive,
		maxPerSector: maxPerSector,
		lookup:       lookup,
		sectors:      make(map[string]string),
	}
}

// Sector returns the memoized sector of a symbol. The external lookup
// runs once per symbol for the process lifetime; failure pins the
// symbol to UnknownSector.
func (rc *RiskController) Sector(symbol string) string {
	if sector, ok := rc.sectors[symbol]; ok {
		return sector
	}
	sector := UnknownSector
	if rc.lookup != nil {
		if s, err := rc.lookup(symbol); err == nil && s != "" {
			sector = s
		}
	}
	rc.sectors[symbol] = sector
	return sector
}

// Apply runs the risk gate over a fresh decision and mutates the risk
// ledger: SELL flattens any open position at the decision's reference
// price, BUY either registers a new position or is downgraded to HOLD
// with a block reason. The decision always leaves with a RiskControls
// snapshot attached. Returned events feed notification, the event ring
// and persistence.
func (rc *RiskController) Apply(ledger *models.RiskLedger, perf *models.PerformanceLedger, dec *models.Decision, now time.Time) ([]models.PositionEvent, []models.TradeRecord) {
	var events []models.PositionEvent
	var trades []models.TradeRecord

	sector := rc.Sector(dec.Symbol)
	var block string

	switch dec.Action {
	case models.ActionSell:
		if pos, ok := ledger.OpenPositions[dec.Symbol]; ok {
			ev, tr := closeLot(pos, perf, pos.LotOpen, dec.Price, models.CloseSellDecision, now)
			events = append(events, ev)
			trades = append(trades, tr)
			delete(ledger.OpenPositions, dec.Symbol)
		}

	case models.ActionBuy:
		block = rc.blockReason(ledger, dec, sector)
		if block != "" {
			downgrade(dec, block)
			break
		}

		pos := rc.openPosition(dec, sector, now)
		ledger.OpenPositions[dec.Symbol] = pos
		ledger.DailyUsedRisk += dec.Levels.RiskAmount

		events = append(events, models.PositionEvent{
			ID:     uuid.New().String(),
			Time:   now,
			Symbol: dec.Symbol,
			Type:   models.EventOpen,
			Price:  dec.Price,
			Lot:    pos.LotTotal,
			Note: fmt.Sprintf("stop %.2f target1 %.2f target2 %.2f risk %.0f",
				pos.InitialStop, pos.Target1, pos.Target2, dec.Levels.RiskAmount),
		})
	}

	dec.RiskControls = &models.RiskControls{
		DailyBudget:     rc.dailyBudget,
		DailyUsed:       ledger.DailyUsedRisk,
		ActivePositions: len(ledger.OpenPositions),
		SectorPositions: sectorCount(ledger, sector),
		BlockReason:     block,
	}
	return events, trades
}

// blockReason checks the refusal rules in order and returns the first
// violation, or "" when the BUY may proceed.
func (rc *RiskController) blockReason(ledger *models.RiskLedger, dec *models.Decision, sector string) string {
	if _, ok := ledger.OpenPositions[dec.Symbol]; ok {
		return fmt.Sprintf("existing position for %s", dec.Symbol)
	}
	if len(ledger.OpenPositions) >= rc.maxActive {
		return fmt.Sprintf("active position cap reached (%d)", rc.maxActive)
	}
	if sectorCount(ledger, sector) >= rc.maxPerSector {
		return fmt.Sprintf("sector cap reached for %s (%d)", sector, rc.maxPerSector)
	}
	if dec.Levels == nil || dec.Levels.RiskAmount <= 0 || dec.Levels.Lot <= 0 {
		return "no usable risk amount"
	}
	if ledger.DailyUsedRisk+dec.Levels.RiskAmount > rc.dailyBudget {
		return fmt.Sprintf("daily risk budget exceeded (used %.0f + %.0f > %.0f)",
			ledger.DailyUsedRisk, dec.Levels.RiskAmount, rc.dailyBudget)
	}
	return ""
}

// openPosition builds the position registered for an approved BUY.
// The initial trailing stop equals the decision stop.
func (rc *RiskController) openPosition(dec *models.Decision, sector string, now time.Time) *models.Position {
	lv := dec.Levels
	return &models.Position{
		ID:           uuid.New().String(),
		Symbol:       dec.Symbol,
		Sector:       sector,
		OpenedAt:     now,
		EntryPrice:   dec.Price,
		InitialStop:  lv.Stop,
		TrailingStop: lv.Stop,
		Target1:      lv.Target1,
		Target2:      lv.Target2,
		LotTotal:     lv.Lot,
		LotOpen:      lv.Lot,
	}
}

// sectorCount counts the open positions in one sector.
func sectorCount(ledger *models.RiskLedger, sector string) int {
	n := 0
	for _, pos := range ledger.OpenPositions {
		if pos.Sector == sector {
			n++
		}
	}
	return n
}
