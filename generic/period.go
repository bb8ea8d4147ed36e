package generic

import (
	"strconv"
	"time"
)

// =============================================================================
// PERIOD - A closed range of calendar days
// =============================================================================

// Period is the closed interval [Start, End].
//
// Examples:
//   - Calendar year 2025: Jan 1 - Dec 31
//   - Fiscal year 2025: Apr 1 2025 - Mar 31 2026
//   - Anniversary year: Hire date + 1 year
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that start is not after end.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodFiscalYear   PeriodType = "fiscal_year"   // Custom start (e.g., Apr 1)
	PeriodAnniversary  PeriodType = "anniversary"   // Based on hire date
)

// PeriodConfig defines how to calculate periods for a policy
type PeriodConfig struct {
	Type PeriodType

	// For fiscal year: which month starts the fiscal year (1-12)
	FiscalYearStartMonth time.Month

	// For anniversary: the anchor date (e.g., hire date)
	AnchorDate *TimePoint
}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period that contains the given date
func (pc PeriodConfig) PeriodFor(date TimePoint) Period {
	switch pc.Type {
	case PeriodFiscalYear:
		return pc.fiscalYearPeriod(date)
	case PeriodAnniversary:
		if pc.AnchorDate == nil {
			return Period{Start: StartOfYear(date.Year()), End: EndOfYear(date.Year())}
		}
		return pc.anniversaryPeriod(date)
	default:
		return Period{Start: StartOfYear(date.Year()), End: EndOfYear(date.Year())}
	}
}

// Label names the period by the year it starts in ("2024").
func (pc PeriodConfig) Label(date TimePoint) string {
	return strconv.Itoa(pc.PeriodFor(date).Start.Year())
}

func (pc PeriodConfig) fiscalYearPeriod(date TimePoint) Period {
	month := pc.FiscalYearStartMonth
	if month < time.January || month > time.December {
		month = time.January
	}
	fiscalStart := NewTimePoint(date.Year(), month, 1)

	// If date is before fiscal year start, we're in previous fiscal year
	if date.Before(fiscalStart) {
		fiscalStart = NewTimePoint(date.Year()-1, month, 1)
	}

	return Period{Start: fiscalStart, End: fiscalStart.AddYears(1).AddDays(-1)}
}

func (pc PeriodConfig) anniversaryPeriod(date TimePoint) Period {
	anchor := *pc.AnchorDate
	years := CompletedYears(anchor, date)
	if date.Before(anchor) {
		years = -1
		for anchor.AddYears(years).After(date) {
			years--
		}
	}
	start := anchor.AddYears(years)
	return Period{Start: start, End: anchor.AddYears(years + 1).AddDays(-1)}
}
