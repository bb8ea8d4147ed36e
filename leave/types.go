// Package leave implements the leave-accrual domain: policies with tenure
// rules, employees, work schedules and leave requests. It holds the pure
// decision functions; the batch processes that apply them live in engine.
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// LeaveType is a ledger target ("Annual Leave", "Compensatory"). Names are unique.
type LeaveType struct {
	ID   generic.ResourceID
	Name string
}

// =============================================================================
// POLICY
// =============================================================================

type RuleType string

const (
	RuleAdd RuleType = "ADD" // add a fixed amount to the accrual
	RuleSet RuleType = "SET" // set the entitlement to a fixed total
)

type WaitingUnit string

const (
	WaitDays   WaitingUnit = "DAYS"
	WaitMonths WaitingUnit = "MONTHS"
)

// YearlyAnchor picks the day a YEARLY accrual fires.
type YearlyAnchor string

const (
	AnchorCalendar        YearlyAnchor = "calendar"         // January 1
	AnchorHireAnniversary YearlyAnchor = "hire_anniversary" // hire month/day
	AnchorFiscalYear      YearlyAnchor = "fiscal_year"      // day 1 of FiscalYearStartMonth
)

// SetMode picks what a SET rule replaces.
type SetMode string

const (
	SetEntitlement SetMode = "entitlement" // balance becomes the rule amount
	SetIncrement   SetMode = "increment"   // this period's increment becomes the rule amount
)

type WaitingPeriod struct {
	Amount int
	Unit   WaitingUnit
}

// Rule is a tenure override. It applies once completed years of service
// reach YearsOfService.
type Rule struct {
	ID             int64
	YearsOfService int
	Type           RuleType
	Amount         decimal.Decimal // in the policy's accrual unit
}

type Policy struct {
	ID                   generic.PolicyID
	Name                 string
	Frequency            generic.AccrualFrequency
	AccrualAmount        decimal.Decimal
	AccrualUnit          generic.Unit
	WaitingPeriod        WaitingPeriod
	FiscalYearStartMonth time.Month
	AllowCarryOver       bool
	MaxCarryOver         decimal.Decimal // in the policy's accrual unit
	HolidayCompensation  bool
	YearlyAnchor         YearlyAnchor
	SetMode              SetMode
	Rules                []Rule
}

// WithDefaults fills optional fields the way new policies are created.
func (p Policy) WithDefaults() Policy {
	if p.FiscalYearStartMonth == 0 {
		p.FiscalYearStartMonth = time.January
	}
	if p.YearlyAnchor == "" {
		p.YearlyAnchor = AnchorCalendar
	}
	if p.SetMode == "" {
		p.SetMode = SetEntitlement
	}
	if p.WaitingPeriod.Unit == "" {
		p.WaitingPeriod.Unit = WaitDays
	}
	if p.AccrualUnit == "" {
		p.AccrualUnit = generic.UnitDays
	}
	return p
}

// Validate checks the policy invariants. Duplicate rule thresholds are
// allowed; SelectRule breaks ties.
func (p Policy) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPolicy, p.Name, fmt.Sprintf(format, args...))
	}
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidPolicy)
	}
	if !p.Frequency.Valid() {
		return invalid("unknown accrual frequency %q", p.Frequency)
	}
	if p.AccrualAmount.IsNegative() {
		return invalid("accrual amount must be non-negative")
	}
	if !p.AccrualUnit.Valid() {
		return invalid("unknown accrual unit %q", p.AccrualUnit)
	}
	if p.WaitingPeriod.Amount < 0 {
		return invalid("waiting period must be non-negative")
	}
	if p.WaitingPeriod.Unit != WaitDays && p.WaitingPeriod.Unit != WaitMonths {
		return invalid("unknown waiting period unit %q", p.WaitingPeriod.Unit)
	}
	if p.FiscalYearStartMonth < time.January || p.FiscalYearStartMonth > time.December {
		return invalid("fiscal year start month must be 1-12, got %d", p.FiscalYearStartMonth)
	}
	if p.MaxCarryOver.IsNegative() {
		return invalid("max carry-over must be non-negative")
	}
	switch p.YearlyAnchor {
	case AnchorCalendar, AnchorHireAnniversary, AnchorFiscalYear:
	default:
		return invalid("unknown yearly anchor %q", p.YearlyAnchor)
	}
	if p.SetMode != SetEntitlement && p.SetMode != SetIncrement {
		return invalid("unknown set mode %q", p.SetMode)
	}
	for _, r := range p.Rules {
		if r.YearsOfService < 0 {
			return invalid("rule %d: years of service must be non-negative", r.ID)
		}
		if r.Type != RuleAdd && r.Type != RuleSet {
			return invalid("rule %d: unknown rule type %q", r.ID, r.Type)
		}
	}
	return nil
}

// FiscalPeriods returns the period config used to label settlement years.
func (p Policy) FiscalPeriods() generic.PeriodConfig {
	return generic.PeriodConfig{Type: generic.PeriodFiscalYear, FiscalYearStartMonth: p.FiscalYearStartMonth}
}

// IsFiscalBoundary reports whether date is the first day of a fiscal year.
func (p Policy) IsFiscalBoundary(date generic.TimePoint) bool {
	return date.Day() == 1 && date.Month() == p.FiscalYearStartMonth
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmployeeStatus string

const (
	StatusActive   EmployeeStatus = "active"
	StatusInactive EmployeeStatus = "inactive"
)

type Employee struct {
	ID         generic.EntityID
	Name       string
	Email      string
	HireDate   generic.TimePoint // zero when unknown
	Status     EmployeeStatus
	PolicyID   generic.PolicyID // empty: no accrual
	ScheduleID string           // empty: no working days
	ManagerID  generic.EntityID

	// CompensationEligibleAfterMonths overrides the configured default.
	CompensationEligibleAfterMonths *int
}

func (e Employee) Active() bool      { return e.Status == StatusActive }
func (e Employee) HasPolicy() bool   { return e.PolicyID != "" }
func (e Employee) HasSchedule() bool { return e.ScheduleID != "" }

// EligibleAfterMonths resolves the compensation waiting period.
func (e Employee) EligibleAfterMonths(fallback int) int {
	if e.CompensationEligibleAfterMonths != nil {
		return *e.CompensationEligibleAfterMonths
	}
	return fallback
}
