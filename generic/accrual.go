package generic

import (
	"fmt"
	"strings"
)

// =============================================================================
// ACCRUAL FREQUENCY - How often an accrual event can fire
// =============================================================================

type AccrualFrequency string

const (
	FreqDaily   AccrualFrequency = "DAILY"
	FreqWeekly  AccrualFrequency = "WEEKLY"
	FreqMonthly AccrualFrequency = "MONTHLY"
	FreqYearly  AccrualFrequency = "YEARLY"
)

// ParseFrequency accepts any letter case ("monthly", "MONTHLY").
func ParseFrequency(s string) (AccrualFrequency, error) {
	f := AccrualFrequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown accrual frequency %q", s)
	}
	return f, nil
}

func (f AccrualFrequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// =============================================================================
// PERIOD KEYS - One accrual per (employee, policy, key)
// =============================================================================

// PeriodKey names the accrual period that date belongs to:
//
//	DAILY   2024-01-05
//	WEEKLY  2024-W01 (ISO week)
//	MONTHLY 2024-01
//	YEARLY  2024
func PeriodKey(freq AccrualFrequency, date TimePoint) string {
	switch freq {
	case FreqWeekly:
		y, w := date.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case FreqMonthly:
		return fmt.Sprintf("%d-%02d", date.Year(), int(date.Month()))
	case FreqYearly:
		return fmt.Sprintf("%d", date.Year())
	default:
		return date.String()
	}
}

// MarkerKey joins the parts of a processed-period marker key.
//
//	MarkerKey("accrual", "emp-1", "standard", "2024") == "accrual:emp-1:standard:2024"
func MarkerKey(process string, parts ...string) string {
	return process + ":" + strings.Join(parts, ":")
}
