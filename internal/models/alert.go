package models

import "time"

// AlarmDirection tells which band edge an alarm watches.
type AlarmDirection string

const (
	AlarmBelow AlarmDirection = "below"
	AlarmAbove AlarmDirection = "above"
)

// ThresholdAlarm is a static price alarm with re-arm semantics: it
// fires once when price crosses its level and arms again only after
// price returns inside the below/above band.
type ThresholdAlarm struct {
	Symbol      string         `json:"symbol"`
	Direction   AlarmDirection `json:"direction"`
	Level       float64        `json:"level"`
	Fired       bool           `json:"fired"`
	LastFiredAt *time.Time     `json:"last_fired_at,omitempty"`
}

// AlarmBand couples the two levels configured for one symbol.
type AlarmBand struct {
	Below float64 `json:"below" mapstructure:"below"`
	Above float64 `json:"above" mapstructure:"above"`
}
