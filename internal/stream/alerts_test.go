package stream

import (
	"testing"
	"time"

	"bist-sentinel/internal/models"
)

func testClock() func() time.Time {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestAlarmBookFromBands(t *testing.T) {
	book := NewAlarmBook(map[string]models.AlarmBand{
		"FROTO": {Below: 95, Above: 120},
		"TUPRS": {Above: 210},
	})

	snapshot := book.Snapshot()
	if len(snapshot["FROTO"]) != 2 {
		t.Errorf("Expected 2 alarms for FROTO, got %d", len(snapshot["FROTO"]))
	}
	if len(snapshot["TUPRS"]) != 1 {
		t.Errorf("Expected 1 alarm for TUPRS, got %d", len(snapshot["TUPRS"]))
	}
	if snapshot["TUPRS"][0].Direction != models.AlarmAbove {
		t.Errorf("Expected above alarm for TUPRS, got %s", snapshot["TUPRS"][0].Direction)
	}
	if book.ArmedCount() != 3 {
		t.Errorf("Expected 3 armed alarms, got %d", book.ArmedCount())
	}
}

func TestBelowAlarmFireAndRearm(t *testing.T) {
	book := NewAlarmBook(map[string]models.AlarmBand{"FROTO": {Below: 95}})
	clock := testClock()

	if fired := book.Evaluate("FROTO", 96, clock()); len(fired) != 0 {
		t.Fatalf("Expected no firing inside the band, got %d", len(fired))
	}

	fired := book.Evaluate("FROTO", 94.5, clock())
	if len(fired) != 1 {
		t.Fatalf("Expected 1 fired alarm on cross, got %d", len(fired))
	}
	if fired[0].Direction != models.AlarmBelow || fired[0].Level != 95 {
		t.Errorf("Expected below alarm at 95, got %+v", fired[0])
	}
	if !fired[0].Fired || fired[0].LastFiredAt == nil {
		t.Errorf("Expected fired alarm with timestamp, got %+v", fired[0])
	}

	// Still under the level, must stay silent.
	if fired := book.Evaluate("FROTO", 93, clock()); len(fired) != 0 {
		t.Errorf("Expected no refire while outside the band, got %d", len(fired))
	}
	// Touching the level exactly is not inside, so no re-arm yet.
	if fired := book.Evaluate("FROTO", 95, clock()); len(fired) != 0 {
		t.Errorf("Expected no refire at the level itself, got %d", len(fired))
	}
	if book.ArmedCount() != 0 {
		t.Errorf("Expected alarm still fired, armed count 0, got %d", book.ArmedCount())
	}

	// Back inside the band: re-arm without firing.
	if fired := book.Evaluate("FROTO", 96.5, clock()); len(fired) != 0 {
		t.Errorf("Expected re-arm to stay silent, got %d fired", len(fired))
	}
	if book.ArmedCount() != 1 {
		t.Errorf("Expected 1 armed alarm after re-arm, got %d", book.ArmedCount())
	}

	// Second cross fires again.
	fired = book.Evaluate("FROTO", 94, clock())
	if len(fired) != 1 {
		t.Errorf("Expected second firing after re-arm, got %d", len(fired))
	}
}

func TestAboveAlarmFireAndRearm(t *testing.T) {
	book := NewAlarmBook(map[string]models.AlarmBand{"TUPRS": {Above: 210}})
	clock := testClock()

	if fired := book.Evaluate("TUPRS", 209, clock()); len(fired) != 0 {
		t.Fatalf("Expected no firing under the level, got %d", len(fired))
	}

	fired := book.Evaluate("TUPRS", 210, clock())
	if len(fired) != 1 {
		t.Fatalf("Expected firing on touch, got %d", len(fired))
	}
	if fired[0].Direction != models.AlarmAbove {
		t.Errorf("Expected above alarm, got %s", fired[0].Direction)
	}

	if fired := book.Evaluate("TUPRS", 215, clock()); len(fired) != 0 {
		t.Errorf("Expected no refire while above, got %d", len(fired))
	}
	if fired := book.Evaluate("TUPRS", 208, clock()); len(fired) != 0 {
		t.Errorf("Expected silent re-arm, got %d", len(fired))
	}

	fired = book.Evaluate("TUPRS", 211, clock())
	if len(fired) != 1 {
		t.Errorf("Expected second firing after re-arm, got %d", len(fired))
	}
}

func TestAlarmEdgesIndependent(t *testing.T) {
	book := NewAlarmBook(map[string]models.AlarmBand{"FROTO": {Below: 95, Above: 120}})
	clock := testClock()

	fired := book.Evaluate("FROTO", 94, clock())
	if len(fired) != 1 || fired[0].Direction != models.AlarmBelow {
		t.Fatalf("Expected only the below alarm to fire, got %+v", fired)
	}
	if book.ArmedCount() != 1 {
		t.Errorf("Expected above alarm still armed, got count %d", book.ArmedCount())
	}

	// A swing through the whole band re-arms below and fires above.
	fired = book.Evaluate("FROTO", 121, clock())
	if len(fired) != 1 || fired[0].Direction != models.AlarmAbove {
		t.Errorf("Expected only the above alarm to fire, got %+v", fired)
	}
	if book.ArmedCount() != 1 {
		t.Errorf("Expected below alarm re-armed, got count %d", book.ArmedCount())
	}
}

func TestEvaluateIgnoresUnknownSymbolAndBadPrice(t *testing.T) {
	book := NewAlarmBook(map[string]models.AlarmBand{"FROTO": {Below: 95}})
	clock := testClock()

	if fired := book.Evaluate("GARAN", 10, clock()); fired != nil {
		t.Errorf("Expected nil for unknown symbol, got %v", fired)
	}
	if fired := book.Evaluate("FROTO", 0, clock()); fired != nil {
		t.Errorf("Expected nil for zero price, got %v", fired)
	}
	if book.ArmedCount() != 1 {
		t.Errorf("Expected alarm state untouched, got count %d", book.ArmedCount())
	}
}

func TestAddAlarm(t *testing.T) {
	book := NewAlarmBook(nil)

	book.AddAlarm("GARAN", models.AlarmAbove, 60)
	book.AddAlarm("GARAN", models.AlarmBelow, 0)

	if book.ArmedCount() != 1 {
		t.Errorf("Expected 1 alarm, zero level ignored, got %d", book.ArmedCount())
	}

	fired := book.Evaluate("GARAN", 61, testClock()())
	if len(fired) != 1 || fired[0].Level != 60 {
		t.Errorf("Expected runtime alarm to fire at 60, got %+v", fired)
	}
}
