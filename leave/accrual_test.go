package leave

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func yearlyDays(days int64) Policy {
	return Policy{
		ID:            "p1",
		Name:          "Yearly",
		Frequency:     generic.FreqYearly,
		AccrualAmount: dec(days),
		AccrualUnit:   generic.UnitDays,
	}.WithDefaults()
}

func officeSchedule(start, end string, days ...time.Weekday) *WorkSchedule {
	s := &WorkSchedule{ID: "office"}
	for _, wd := range days {
		st, _ := ParseClockTime(start)
		en, _ := ParseClockTime(end)
		s.Rules = append(s.Rules, ScheduleRule{Weekday: wd, Start: st, End: en})
	}
	return s
}

func compute(t *testing.T, p Policy, hire, date string, schedule *WorkSchedule) AccrualDecision {
	t.Helper()
	got, err := ComputeAccrual(AccrualInput{
		Policy:   p,
		HireDate: d(hire),
		Schedule: schedule,
		Date:     d(date),
		Hours:    DefaultHoursConfig(),
	})
	require.NoError(t, err)
	return got
}

// =============================================================================
// WAITING PERIOD
// =============================================================================

func TestComputeAccrual_InsideWaitingPeriod_Skips(t *testing.T) {
	// GIVEN: A daily policy with a 3 month waiting period, hire 2024-01-31
	// WHEN: Computing on 2024-04-29 (one day before 2024-04-30)
	// THEN: No accrual, reason is the waiting period

	p := Policy{ID: "p", Name: "Daily", Frequency: generic.FreqDaily, AccrualAmount: dec(1),
		AccrualUnit: generic.UnitHours, WaitingPeriod: WaitingPeriod{Amount: 3, Unit: WaitMonths}}.WithDefaults()

	got := compute(t, p, "2024-01-31", "2024-04-29", nil)
	assert.False(t, got.Fires)
	assert.Equal(t, SkipWaitingPeriod, got.Skip)
	assert.Equal(t, d("2024-04-30"), got.PolicyStart, "Jan 31 + 3 months clamps to Apr 30")

	got = compute(t, p, "2024-01-31", "2024-04-30", nil)
	assert.True(t, got.Fires)
}

func TestPolicyStartDate_Days(t *testing.T) {
	p := Policy{WaitingPeriod: WaitingPeriod{Amount: 90, Unit: WaitDays}}
	assert.Equal(t, d("2024-03-31"), PolicyStartDate(p, d("2024-01-01")))
}

// =============================================================================
// FREQUENCY GATE
// =============================================================================

func TestFiresOn_Frequencies(t *testing.T) {
	hire := d("2020-06-15")
	tests := []struct {
		name string
		freq generic.AccrualFrequency
		date string
		want bool
	}{
		{"daily any day", generic.FreqDaily, "2024-03-13", true},
		{"weekly monday", generic.FreqWeekly, "2024-03-11", true},
		{"weekly tuesday", generic.FreqWeekly, "2024-03-12", false},
		{"monthly first", generic.FreqMonthly, "2024-03-01", true},
		{"monthly second", generic.FreqMonthly, "2024-03-02", false},
		{"yearly jan 1", generic.FreqYearly, "2024-01-01", true},
		{"yearly other", generic.FreqYearly, "2024-06-15", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Frequency: tt.freq}.WithDefaults()
			assert.Equal(t, tt.want, FiresOn(p, hire, d(tt.date)))
		})
	}
}

func TestFiresOn_YearlyAnchoredOnCalendar(t *testing.T) {
	// GIVEN: YEARLY policy anchored on the calendar year, hire 2020-06-15
	// THEN: Fires on January 1, not on the anniversary

	p := yearlyDays(12)
	assert.True(t, FiresOn(p, d("2020-06-15"), d("2024-01-01")))
	assert.False(t, FiresOn(p, d("2020-06-15"), d("2024-06-15")))
}

func TestFiresOn_YearlyAnchoredOnHireAnniversary(t *testing.T) {
	// GIVEN: YEARLY policy anchored on the hire anniversary, hire 2020-06-15
	// THEN: Fires on June 15, not on January 1

	p := yearlyDays(12)
	p.YearlyAnchor = AnchorHireAnniversary
	assert.True(t, FiresOn(p, d("2020-06-15"), d("2024-06-15")))
	assert.False(t, FiresOn(p, d("2020-06-15"), d("2024-01-01")))

	// Leap-day hires fire on Feb 28 in common years
	assert.True(t, FiresOn(p, d("2020-02-29"), d("2023-02-28")))
}

func TestFiresOn_HireDayIsNotAnAnniversary(t *testing.T) {
	// GIVEN: YEARLY policy anchored on the hire anniversary, hire 2024-06-15
	// WHEN: Checking the hire date and the first anniversary
	// THEN: Only 2025-06-15 fires

	p := yearlyDays(12)
	p.YearlyAnchor = AnchorHireAnniversary
	assert.False(t, FiresOn(p, d("2024-06-15"), d("2024-06-15")))
	assert.True(t, FiresOn(p, d("2024-06-15"), d("2025-06-15")))

	dec, err := ComputeAccrual(AccrualInput{
		Policy:   p,
		HireDate: d("2024-06-15"),
		Date:     d("2024-06-15"),
		Hours:    DefaultHoursConfig(),
	})
	require.NoError(t, err)
	assert.False(t, dec.Fires)
}

func TestFiresOn_YearlyAnchoredOnFiscalYear(t *testing.T) {
	p := yearlyDays(12)
	p.YearlyAnchor = AnchorFiscalYear
	p.FiscalYearStartMonth = time.April
	assert.True(t, FiresOn(p, d("2020-06-15"), d("2024-04-01")))
	assert.False(t, FiresOn(p, d("2020-06-15"), d("2024-01-01")))
}

// =============================================================================
// UNIT CONVERSION
// =============================================================================

func TestComputeAccrual_DaysWithoutScheduleUseEightHours(t *testing.T) {
	// GIVEN: Hired 2023-01-01, YEARLY 12 DAYS, no waiting period, no rules
	// WHEN: Computing on 2024-01-01
	// THEN: 96 hours (12 x 8)

	got := compute(t, yearlyDays(12), "2023-01-01", "2024-01-01", nil)
	require.True(t, got.Fires)
	assert.True(t, got.Hours.Equal(dec(96)), "hours = %s", got.Hours)
	assert.Equal(t, ModeIncrement, got.Mode)
	assert.Equal(t, "2024", got.PeriodKey)
}

func TestComputeAccrual_DaysUseScheduleWithMealBreak(t *testing.T) {
	// GIVEN: A 09:00-18:00 schedule (9h, minus 1h meal break = 8h)
	//        and a 09:00-13:00 schedule (4h, no deduction)
	// THEN: 12 days = 96h and 48h respectively

	long := officeSchedule("09:00", "18:00", time.Monday, time.Tuesday)
	got := compute(t, yearlyDays(12), "2023-01-01", "2024-01-01", long)
	assert.True(t, got.Hours.Equal(dec(96)), "hours = %s", got.Hours)

	short := officeSchedule("09:00", "13:00", time.Monday)
	got = compute(t, yearlyDays(12), "2023-01-01", "2024-01-01", short)
	assert.True(t, got.Hours.Equal(dec(48)), "hours = %s", got.Hours)
}

func TestComputeAccrual_MalformedScheduleIsError(t *testing.T) {
	bad := officeSchedule("18:00", "09:00", time.Monday)
	_, err := ComputeAccrual(AccrualInput{
		Policy: yearlyDays(12), HireDate: d("2023-01-01"), Schedule: bad,
		Date: d("2024-01-01"), Hours: DefaultHoursConfig(),
	})
	assert.True(t, errors.Is(err, ErrMalformedSchedule))
}

func TestComputeAccrual_MissingHireDate(t *testing.T) {
	_, err := ComputeAccrual(AccrualInput{Policy: yearlyDays(12), Date: d("2024-01-01"), Hours: DefaultHoursConfig()})
	assert.ErrorIs(t, err, ErrMissingHireDate)
}

// =============================================================================
// TENURE RULES
// =============================================================================

func TestSelectRule_HighestThresholdWins(t *testing.T) {
	// GIVEN: Rules {1: ADD 2, 3: SET 20}
	// WHEN: Employee has 4 years of service
	// THEN: The threshold-3 rule applies, not threshold-1

	rules := []Rule{
		{ID: 1, YearsOfService: 1, Type: RuleAdd, Amount: dec(2)},
		{ID: 2, YearsOfService: 3, Type: RuleSet, Amount: dec(20)},
	}
	r, ok := SelectRule(rules, 4)
	require.True(t, ok)
	assert.Equal(t, 3, r.YearsOfService)
	assert.Equal(t, RuleSet, r.Type)

	r, ok = SelectRule(rules, 2)
	require.True(t, ok)
	assert.Equal(t, 1, r.YearsOfService)

	_, ok = SelectRule(rules, 0)
	assert.False(t, ok)
}

func TestSelectRule_DuplicateThresholdHighestIDWins(t *testing.T) {
	// GIVEN: Two rules with the same threshold, inserted in order 7 then 4
	// THEN: ID 7 wins regardless of slice order

	rules := []Rule{
		{ID: 7, YearsOfService: 3, Type: RuleAdd, Amount: dec(5)},
		{ID: 4, YearsOfService: 3, Type: RuleAdd, Amount: dec(1)},
		{ID: 9, YearsOfService: 1, Type: RuleAdd, Amount: dec(9)},
	}
	r, ok := SelectRule(rules, 3)
	require.True(t, ok)
	assert.Equal(t, int64(7), r.ID)
}

func TestComputeAccrual_AddRule(t *testing.T) {
	// GIVEN: YEARLY 12 days, rule {1: ADD 2}, 1 year of service
	// THEN: (12 + 2) x 8 = 112h incremental

	p := yearlyDays(12)
	p.Rules = []Rule{{ID: 1, YearsOfService: 1, Type: RuleAdd, Amount: dec(2)}}

	got := compute(t, p, "2023-01-01", "2024-01-01", nil)
	assert.True(t, got.Hours.Equal(dec(112)), "hours = %s", got.Hours)
	assert.Equal(t, ModeIncrement, got.Mode)
	assert.Equal(t, generic.KindAccrual, got.Kind())
}

func TestComputeAccrual_SetRuleReplacesEntitlement(t *testing.T) {
	// GIVEN: Rules {1: ADD 2, 3: SET 20}, SetMode entitlement, 4 years of service
	// THEN: Target total is 20 x 8 = 160h, applied as set-total

	p := yearlyDays(12)
	p.Rules = []Rule{
		{ID: 1, YearsOfService: 1, Type: RuleAdd, Amount: dec(2)},
		{ID: 2, YearsOfService: 3, Type: RuleSet, Amount: dec(20)},
	}

	got := compute(t, p, "2020-01-01", "2024-01-01", nil)
	assert.Equal(t, 4, got.YearsOfService)
	require.NotNil(t, got.Rule)
	assert.Equal(t, 3, got.Rule.YearsOfService)
	assert.Equal(t, ModeSetTotal, got.Mode)
	assert.True(t, got.Hours.Equal(dec(160)), "hours = %s", got.Hours)
	assert.Equal(t, generic.KindEntitlementReset, got.Kind())

	after := got.BalanceRule()(generic.NewAmount(30, generic.UnitHours))
	assert.True(t, after.Value.Equal(dec(160)))
}

func TestComputeAccrual_SetRuleReplacesIncrement(t *testing.T) {
	// GIVEN: Same rules, SetMode increment
	// THEN: 160h is added on top of the existing balance

	p := yearlyDays(12)
	p.SetMode = SetIncrement
	p.Rules = []Rule{
		{ID: 1, YearsOfService: 1, Type: RuleAdd, Amount: dec(2)},
		{ID: 2, YearsOfService: 3, Type: RuleSet, Amount: dec(20)},
	}

	got := compute(t, p, "2020-01-01", "2024-01-01", nil)
	assert.Equal(t, ModeIncrement, got.Mode)
	assert.True(t, got.Hours.Equal(dec(160)))

	after := got.BalanceRule()(generic.NewAmount(30, generic.UnitHours))
	assert.True(t, after.Value.Equal(dec(190)))
}

func TestComputeAccrual_HoursUnitIgnoresSchedule(t *testing.T) {
	p := Policy{ID: "m", Name: "Monthly", Frequency: generic.FreqMonthly, AccrualAmount: dec(10),
		AccrualUnit: generic.UnitHours}.WithDefaults()
	bad := officeSchedule("18:00", "09:00", time.Monday)

	got := compute(t, p, "2023-01-01", "2024-02-01", bad)
	assert.True(t, got.Hours.Equal(dec(10)))
	assert.Equal(t, "2024-02", got.PeriodKey)
}

// =============================================================================
// POLICY VALIDATION
// =============================================================================

func TestPolicy_Validate(t *testing.T) {
	ok := StandardAnnualLeave("std", 12, 5)
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.FiscalYearStartMonth = 13
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPolicy)

	bad = ok
	bad.AccrualAmount = dec(-1)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPolicy)

	bad = ok
	bad.Rules = []Rule{{ID: 1, Type: "PERCENT"}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPolicy)

	dup := ok
	dup.Rules = []Rule{{ID: 1, YearsOfService: 2, Type: RuleAdd}, {ID: 2, YearsOfService: 2, Type: RuleSet}}
	assert.NoError(t, dup.Validate(), "duplicate thresholds are allowed")

	for _, p := range []Policy{MonthlyAccrual("m", 10), TenureTieredLeave("t")} {
		assert.NoError(t, p.Validate(), p.Name)
	}
}
