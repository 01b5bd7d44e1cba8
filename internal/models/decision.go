package models

import "time"

// TradeLevels carries the entry band, stop and targets of an actionable
// decision. Nil on HOLD decisions, where no trade is proposed.
type TradeLevels struct {
	EntryLow   float64 `json:"entry_low"`
	EntryHigh  float64 `json:"entry_high"`
	Stop       float64 `json:"stop"`
	Target1    float64 `json:"target1"`
	Target2    float64 `json:"target2"`
	RiskReward float64 `json:"risk_reward"`
	Lot        int     `json:"lot"`
	RiskAmount float64 `json:"risk_amount"`
}

// RiskControls is the risk-gate snapshot attached to a decision after
// it has passed through the risk controller.
type RiskControls struct {
	DailyBudget     float64 `json:"daily_budget"`
	DailyUsed       float64 `json:"daily_used"`
	ActivePositions int     `json:"active_positions"`
	SectorPositions int     `json:"sector_positions"`
	BlockReason     string  `json:"block_reason,omitempty"`
}

// Blocked reports whether the risk controller refused the decision.
func (rc *RiskControls) Blocked() bool {
	return rc != nil && rc.BlockReason != ""
}

// Decision is the output of one analysis cycle for one symbol. It is
// recomputed every cycle; the previous decision is kept only to detect
// action transitions.
type Decision struct {
	ID           string                 `json:"id"`
	Symbol       string                 `json:"symbol"`
	Action       Action                 `json:"action"`
	Score        int                    `json:"score"`
	Price        float64                `json:"price"`
	Levels       *TradeLevels           `json:"levels,omitempty"`
	Factors      map[Factor]FactorScore `json:"factors"`
	Reasons      []string               `json:"reasons"`
	RiskControls *RiskControls          `json:"risk_controls,omitempty"`
	Preset       string                 `json:"preset"`
	CreatedAt    time.Time              `json:"created_at"`
}

// FactorValue returns the score of the named factor, or fallback when
// the factor was not evaluated.
func (d *Decision) FactorValue(f Factor, fallback int) int {
	if fs, ok := d.Factors[f]; ok {
		return fs.Value
	}
	return fallback
}

// Clone returns a deep copy safe to hand outside the engine lock.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Levels != nil {
		lv := *d.Levels
		cp.Levels = &lv
	}
	if d.RiskControls != nil {
		rc := *d.RiskControls
		cp.RiskControls = &rc
	}
	cp.Factors = make(map[Factor]FactorScore, len(d.Factors))
	for k, v := range d.Factors {
		fs := v
		fs.Reasons = append([]string(nil), v.Reasons...)
		cp.Factors[k] = fs
	}
	cp.Reasons = append([]string(nil), d.Reasons...)
	return &cp
}
