// Package market provides Borsa Istanbul session awareness: trading
// hours, the holiday calendar and the next-open calculation that paces
// the monitor loop.
package market

import (
	"time"

	"bist-sentinel/internal/models"
)

// IstanbulLocation is the timezone of Borsa Istanbul.
var IstanbulLocation *time.Location

func init() {
	var err error
	IstanbulLocation, err = time.LoadLocation("Europe/Istanbul")
	if err != nil {
		// Fallback to UTC+3
		IstanbulLocation = time.FixedZone("+03", 3*60*60)
	}
}

// Session minute marks, Istanbul local time.
const (
	preOpenStartMinute = 9*60 + 40 // 09:40 opening auction
	openMinute         = 10 * 60   // 10:00 continuous trading
	closeMinute        = 18 * 60   // 18:00 close
)

// Fixed-date national holidays, keyed month-day. The moving religious
// holidays shift every year and are added per year via AddHoliday.
var nationalHolidays = map[string]bool{
	"01-01": true, // New Year's Day
	"04-23": true, // National Sovereignty and Children's Day
	"05-01": true, // Labour and Solidarity Day
	"05-19": true, // Commemoration of Ataturk, Youth and Sports Day
	"07-15": true, // Democracy and National Unity Day
	"08-30": true, // Victory Day
	"10-29": true, // Republic Day
}

// Calendar answers whether BIST trades at a given moment.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar creates a calendar with the fixed national holidays
// preloaded.
func NewCalendar() *Calendar {
	return &Calendar{holidays: make(map[string]bool)}
}

// AddHoliday marks a specific date as a non-trading day.
func (c *Calendar) AddHoliday(date time.Time) {
	key := date.In(IstanbulLocation).Format("2006-01-02")
	c.holidays[key] = true
}

// IsHoliday checks if a date is a market holiday.
func (c *Calendar) IsHoliday(date time.Time) bool {
	d := date.In(IstanbulLocation)
	return nationalHolidays[d.Format("01-02")] || c.holidays[d.Format("2006-01-02")]
}

// Status returns the market session state at a specific time.
func (c *Calendar) Status(t time.Time) models.MarketStatus {
	t = t.In(IstanbulLocation)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return models.MarketClosed
	}
	if c.IsHoliday(t) {
		return models.MarketClosed
	}

	minutes := t.Hour()*60 + t.Minute()
	switch {
	case minutes >= preOpenStartMinute && minutes < openMinute:
		return models.MarketPreOpen
	case minutes >= openMinute && minutes < closeMinute:
		return models.MarketOpen
	}
	return models.MarketClosed
}

// IsOpen reports whether continuous trading is running at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.Status(t) == models.MarketOpen
}

// NextOpen returns the next start of continuous trading at or after t,
// skipping weekends and holidays.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	t = t.In(IstanbulLocation)
	next := time.Date(t.Year(), t.Month(), t.Day(), 10, 0, 0, 0, IstanbulLocation)
	if !t.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday || c.IsHoliday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TradingDate formats t as the Istanbul calendar day used to stamp the
// daily ledgers.
func TradingDate(t time.Time) string {
	return t.In(IstanbulLocation).Format("2006-01-02")
}
