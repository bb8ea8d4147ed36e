/*
accrual.go - Pure accrual decisions

PURPOSE:
  Decides, for one employee on one date, whether an accrual fires and how
  many hours it is worth. No I/O: the engine loads the facts, calls
  ComputeAccrual and hands the decision to the ledger.

GATES (in order):
  1. Waiting period: date < hire + waiting period → skip
  2. Frequency: DAILY always, WEEKLY Monday, MONTHLY day 1,
     YEARLY on the policy's anchor day (hire anniversaries start one
     year after hire)
  3. Tenure rule: highest threshold ≤ completed years of service

RULE EFFECTS:
  no rule   increment by the base amount
  ADD       increment by base + rule amount
  SET       SetMode "entitlement": the balance becomes the rule amount
            SetMode "increment":   increment by the rule amount instead of base

  Amounts in DAYS are converted with HoursConfig.DailyHours(schedule).

SEE ALSO:
  - schedule.go: DailyHours
  - engine/accrual.go: Applies decisions through the ledger
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// AccrualMode tells the ledger how to apply Hours.
type AccrualMode string

const (
	ModeIncrement AccrualMode = "increment" // add Hours to the balance
	ModeSetTotal  AccrualMode = "set_total" // replace the balance with Hours
)

// SkipReason explains a decision that does not fire.
type SkipReason string

const (
	SkipWaitingPeriod SkipReason = "waiting_period"
	SkipNotScheduled  SkipReason = "not_scheduled"
)

type AccrualInput struct {
	Policy   Policy
	HireDate generic.TimePoint
	Schedule *WorkSchedule
	Date     generic.TimePoint
	Hours    HoursConfig
}

type AccrualDecision struct {
	Fires          bool
	Skip           SkipReason
	PeriodKey      string
	PolicyStart    generic.TimePoint
	YearsOfService int
	DailyHours     decimal.Decimal
	Rule           *Rule
	Mode           AccrualMode
	Hours          decimal.Decimal
}

// Kind maps the decision to the adjustment kind recorded in the ledger.
func (d AccrualDecision) Kind() generic.AdjustmentKind {
	if d.Mode == ModeSetTotal {
		return generic.KindEntitlementReset
	}
	return generic.KindAccrual
}

// BalanceRule maps the decision to a ledger rule.
func (d AccrualDecision) BalanceRule() generic.BalanceRule {
	if d.Mode == ModeSetTotal {
		return generic.SetTo(generic.Hours(d.Hours))
	}
	return generic.Increment(generic.Hours(d.Hours))
}

// AccrualReason is the human-readable adjustment reason.
func AccrualReason(date generic.TimePoint, policyName string) string {
	return fmt.Sprintf("accrual for %s, policy %s", date, policyName)
}

// ComputeAccrual decides what happens for one employee on one date.
func ComputeAccrual(in AccrualInput) (AccrualDecision, error) {
	if in.HireDate.IsZero() {
		return AccrualDecision{}, ErrMissingHireDate
	}
	p := in.Policy.WithDefaults()

	d := AccrualDecision{
		PolicyStart:    PolicyStartDate(p, in.HireDate),
		PeriodKey:      generic.PeriodKey(p.Frequency, in.Date),
		YearsOfService: generic.CompletedYears(in.HireDate, in.Date),
	}
	if in.Date.Before(d.PolicyStart) {
		d.Skip = SkipWaitingPeriod
		return d, nil
	}
	if !FiresOn(p, in.HireDate, in.Date) {
		d.Skip = SkipNotScheduled
		return d, nil
	}

	d.DailyHours = in.Hours.DefaultDailyHours
	if needsDailyHours(p) {
		if err := in.Schedule.Validate(); err != nil {
			return AccrualDecision{}, err
		}
		d.DailyHours = in.Hours.DailyHours(in.Schedule)
	}
	toHours := func(v decimal.Decimal) decimal.Decimal { return ToHours(v, p.AccrualUnit, d.DailyHours) }

	d.Fires = true
	d.Mode = ModeIncrement
	d.Hours = toHours(p.AccrualAmount)

	rule, ok := SelectRule(p.Rules, d.YearsOfService)
	if !ok {
		return d, nil
	}
	d.Rule = &rule
	switch rule.Type {
	case RuleAdd:
		d.Hours = toHours(p.AccrualAmount.Add(rule.Amount))
	case RuleSet:
		d.Hours = toHours(rule.Amount)
		if p.SetMode == SetEntitlement {
			d.Mode = ModeSetTotal
		}
	}
	return d, nil
}

func needsDailyHours(p Policy) bool {
	return p.AccrualUnit == generic.UnitDays
}

// PolicyStartDate is the first date accrual may fire.
func PolicyStartDate(p Policy, hire generic.TimePoint) generic.TimePoint {
	if p.WaitingPeriod.Unit == WaitMonths {
		return hire.AddMonths(p.WaitingPeriod.Amount)
	}
	return hire.AddDays(p.WaitingPeriod.Amount)
}

// FiresOn applies the frequency gate.
func FiresOn(p Policy, hire, date generic.TimePoint) bool {
	switch p.Frequency {
	case generic.FreqDaily:
		return true
	case generic.FreqWeekly:
		return date.Weekday() == time.Monday
	case generic.FreqMonthly:
		return date.Day() == 1
	case generic.FreqYearly:
		if p.YearlyAnchor == AnchorHireAnniversary && !date.After(hire) {
			// The hire date itself is not an anniversary.
			return false
		}
		return date.Equal(YearlyAccrualDate(p, hire, date.Year()))
	}
	return false
}

// YearlyAccrualDate is the day in year a YEARLY policy fires.
func YearlyAccrualDate(p Policy, hire generic.TimePoint, year int) generic.TimePoint {
	switch p.YearlyAnchor {
	case AnchorHireAnniversary:
		return hire.AddYears(year - hire.Year())
	case AnchorFiscalYear:
		month := p.FiscalYearStartMonth
		if month == 0 {
			month = time.January
		}
		return generic.NewTimePoint(year, month, 1)
	default:
		return generic.StartOfYear(year)
	}
}

// SelectRule returns the rule with the highest threshold not above years.
// Rules sharing a threshold resolve to the highest ID.
func SelectRule(rules []Rule, years int) (Rule, bool) {
	var best Rule
	found := false
	for _, r := range rules {
		if r.YearsOfService > years {
			continue
		}
		if !found || r.YearsOfService > best.YearsOfService ||
			(r.YearsOfService == best.YearsOfService && r.ID > best.ID) {
			best = r
			found = true
		}
	}
	return best, found
}
