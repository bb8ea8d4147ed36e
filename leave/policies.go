/*
policies.go - Pre-built leave policy configurations

PURPOSE:
  Ready-to-use policies for common HR patterns. These are starting points;
  real deployments load their policies from YAML/JSON through factory.

AVAILABLE POLICIES:
  StandardAnnualLeave:  N days every January 1, capped carry-over
  MonthlyAccrual:       N hours on the first of every month, no carry-over
  TenureTieredLeave:    Yearly days with ADD rules per service band and a
                        SET rule for long service

EXAMPLE:
  p := leave.StandardAnnualLeave("standard", 12, 5)
  p.WaitingPeriod = leave.WaitingPeriod{Amount: 3, Unit: leave.WaitMonths}

SEE ALSO:
  - accrual.go: How these fields drive ComputeAccrual
  - factory/policy.go: JSON/YAML-based policy creation
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// AnnualLeaveName is the leave type accrual targets unless configured otherwise.
const AnnualLeaveName = "Annual Leave"

// StandardAnnualLeave grants annualDays on January 1 and carries over at
// most maxCarryDays at year end.
func StandardAnnualLeave(id generic.PolicyID, annualDays, maxCarryDays int64) Policy {
	return Policy{
		ID:                   id,
		Name:                 "Standard Annual Leave",
		Frequency:            generic.FreqYearly,
		AccrualAmount:        decimal.NewFromInt(annualDays),
		AccrualUnit:          generic.UnitDays,
		WaitingPeriod:        WaitingPeriod{Unit: WaitDays},
		FiscalYearStartMonth: time.January,
		AllowCarryOver:       maxCarryDays > 0,
		MaxCarryOver:         decimal.NewFromInt(maxCarryDays),
		HolidayCompensation:  true,
		YearlyAnchor:         AnchorCalendar,
		SetMode:              SetEntitlement,
	}
}

// MonthlyAccrual grants hoursPerMonth on the first of each month.
func MonthlyAccrual(id generic.PolicyID, hoursPerMonth int64) Policy {
	return Policy{
		ID:                   id,
		Name:                 "Monthly Accrual",
		Frequency:            generic.FreqMonthly,
		AccrualAmount:        decimal.NewFromInt(hoursPerMonth),
		AccrualUnit:          generic.UnitHours,
		WaitingPeriod:        WaitingPeriod{Amount: 3, Unit: WaitMonths},
		FiscalYearStartMonth: time.January,
		HolidayCompensation:  true,
		YearlyAnchor:         AnchorCalendar,
		SetMode:              SetEntitlement,
	}
}

// TenureTieredLeave grants 7 days a year on the hire anniversary, one extra
// day per band from year 2 and 5, and a flat 20-day entitlement from year 10.
func TenureTieredLeave(id generic.PolicyID) Policy {
	return Policy{
		ID:                   id,
		Name:                 "Tenure Tiered Leave",
		Frequency:            generic.FreqYearly,
		AccrualAmount:        decimal.NewFromInt(7),
		AccrualUnit:          generic.UnitDays,
		WaitingPeriod:        WaitingPeriod{Amount: 1, Unit: WaitMonths},
		FiscalYearStartMonth: time.January,
		AllowCarryOver:       true,
		MaxCarryOver:         decimal.NewFromInt(5),
		HolidayCompensation:  true,
		YearlyAnchor:         AnchorHireAnniversary,
		SetMode:              SetEntitlement,
		Rules: []Rule{
			{ID: 1, YearsOfService: 2, Type: RuleAdd, Amount: decimal.NewFromInt(1)},
			{ID: 2, YearsOfService: 5, Type: RuleAdd, Amount: decimal.NewFromInt(2)},
			{ID: 3, YearsOfService: 10, Type: RuleSet, Amount: decimal.NewFromInt(20)},
		},
	}
}
