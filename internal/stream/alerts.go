package stream

import (
	"sync"
	"time"

	"bist-sentinel/internal/models"
)

// AlarmBook tracks the configured price alarms and their armed state.
// Alarms are static levels: a below alarm fires when price touches or
// drops under its level, an above alarm when price touches or exceeds
// it. A fired alarm stays silent until price returns strictly inside
// the band, then arms again.
type AlarmBook struct {
	mu     sync.RWMutex
	alarms map[string][]*models.ThresholdAlarm
}

// NewAlarmBook builds a book from per-symbol bands. A zero or negative
// level leaves that side of the band without an alarm.
func NewAlarmBook(bands map[string]models.AlarmBand) *AlarmBook {
	book := &AlarmBook{alarms: make(map[string][]*models.ThresholdAlarm)}
	for symbol, band := range bands {
		if band.Below > 0 {
			book.add(symbol, models.AlarmBelow, band.Below)
		}
		if band.Above > 0 {
			book.add(symbol, models.AlarmAbove, band.Above)
		}
	}
	return book
}

// AddAlarm registers a single alarm at runtime. Non-positive levels
// are ignored.
func (b *AlarmBook) AddAlarm(symbol string, direction models.AlarmDirection, level float64) {
	if level <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(symbol, direction, level)
}

func (b *AlarmBook) add(symbol string, direction models.AlarmDirection, level float64) {
	b.alarms[symbol] = append(b.alarms[symbol], &models.ThresholdAlarm{
		Symbol:    symbol,
		Direction: direction,
		Level:     level,
	})
}

// Evaluate runs one price observation through the symbol's alarms and
// returns copies of the ones that fired. A non-positive price is
// ignored, keeping a failed quote from re-arming or firing anything.
func (b *AlarmBook) Evaluate(symbol string, price float64, now time.Time) []models.ThresholdAlarm {
	if price <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var fired []models.ThresholdAlarm
	for _, alarm := range b.alarms[symbol] {
		switch alarm.Direction {
		case models.AlarmBelow:
			if alarm.Fired {
				if price > alarm.Level {
					alarm.Fired = false
				}
				continue
			}
			if price <= alarm.Level {
				fired = append(fired, fire(alarm, now))
			}
		case models.AlarmAbove:
			if alarm.Fired {
				if price < alarm.Level {
					alarm.Fired = false
				}
				continue
			}
			if price >= alarm.Level {
				fired = append(fired, fire(alarm, now))
			}
		}
	}
	return fired
}

func fire(alarm *models.ThresholdAlarm, now time.Time) models.ThresholdAlarm {
	alarm.Fired = true
	stamp := now
	alarm.LastFiredAt = &stamp
	return *alarm
}

// Snapshot returns a copy of every alarm keyed by symbol.
func (b *AlarmBook) Snapshot() map[string][]models.ThresholdAlarm {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]models.ThresholdAlarm, len(b.alarms))
	for symbol, alarms := range b.alarms {
		copies := make([]models.ThresholdAlarm, len(alarms))
		for i, alarm := range alarms {
			copies[i] = *alarm
		}
		out[symbol] = copies
	}
	return out
}

// ArmedCount returns how many alarms are currently armed.
func (b *AlarmBook) ArmedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, alarms := range b.alarms {
		for _, alarm := range alarms {
			if !alarm.Fired {
				count++
			}
		}
	}
	return count
}
