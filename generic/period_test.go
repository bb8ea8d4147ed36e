package generic

import (
	"testing"
	"time"
)

func TestFiscalYearPeriod(t *testing.T) {
	// GIVEN: A fiscal year starting in April
	// WHEN: Looking up periods around the boundary
	// THEN: March belongs to the previous fiscal year

	pc := PeriodConfig{Type: PeriodFiscalYear, FiscalYearStartMonth: time.April}

	p := pc.PeriodFor(NewTimePoint(2025, time.March, 31))
	if !p.Start.Equal(NewTimePoint(2024, time.April, 1)) || !p.End.Equal(NewTimePoint(2025, time.March, 31)) {
		t.Errorf("got %s", p)
	}

	p = pc.PeriodFor(NewTimePoint(2025, time.April, 1))
	if !p.Start.Equal(NewTimePoint(2025, time.April, 1)) {
		t.Errorf("got %s", p)
	}

	if got := pc.Label(NewTimePoint(2025, time.March, 31)); got != "2024" {
		t.Errorf("label = %q, want 2024", got)
	}
}

func TestAnniversaryPeriod(t *testing.T) {
	hire := NewTimePoint(2021, time.June, 15)
	pc := PeriodConfig{Type: PeriodAnniversary, AnchorDate: &hire}

	p := pc.PeriodFor(NewTimePoint(2024, time.January, 1))
	if !p.Start.Equal(NewTimePoint(2023, time.June, 15)) || !p.End.Equal(NewTimePoint(2024, time.June, 14)) {
		t.Errorf("got %s", p)
	}

	p = pc.PeriodFor(NewTimePoint(2020, time.June, 15))
	if !p.Start.Equal(NewTimePoint(2020, time.June, 15)) {
		t.Errorf("before anchor: got %s", p)
	}
}

func TestPeriod_Days(t *testing.T) {
	p, err := NewPeriod(NewTimePoint(2024, time.February, 27), NewTimePoint(2024, time.March, 1))
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	if got := len(p.Days()); got != 4 {
		t.Errorf("got %d days, want 4", got)
	}

	if _, err := NewPeriod(NewTimePoint(2024, time.March, 1), NewTimePoint(2024, time.February, 1)); err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
