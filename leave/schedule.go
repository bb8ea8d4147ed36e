package leave

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// CLOCK TIME
// =============================================================================

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) Minutes() int   { return c.Hour*60 + c.Minute }
func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// =============================================================================
// WORK SCHEDULE
// =============================================================================

// ScheduleRule is one weekday's shift.
type ScheduleRule struct {
	Weekday time.Weekday
	Start   ClockTime
	End     ClockTime
}

// Duration is the shift length. Non-positive for malformed rules.
func (r ScheduleRule) Duration() time.Duration {
	return time.Duration(r.End.Minutes()-r.Start.Minutes()) * time.Minute
}

// Hours is the shift length in hours.
func (r ScheduleRule) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(r.End.Minutes() - r.Start.Minutes())).Div(decimal.NewFromInt(60))
}

// WorkSchedule owns at most one rule per weekday. A weekday without a rule
// is a rest day.
type WorkSchedule struct {
	ID    string
	Name  string
	Rules []ScheduleRule
}

// Validate reports ErrMalformedSchedule for reversed shifts, out-of-range
// weekdays and duplicate weekdays.
func (s *WorkSchedule) Validate() error {
	if s == nil {
		return nil
	}
	seen := make(map[time.Weekday]bool, len(s.Rules))
	for _, r := range s.Rules {
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("%w: schedule %s: weekday %d out of range", ErrMalformedSchedule, s.ID, r.Weekday)
		}
		if seen[r.Weekday] {
			return fmt.Errorf("%w: schedule %s: %s listed twice", ErrMalformedSchedule, s.ID, r.Weekday)
		}
		seen[r.Weekday] = true
		if r.Duration() <= 0 {
			return fmt.Errorf("%w: schedule %s: %s shift %s-%s ends before it starts",
				ErrMalformedSchedule, s.ID, r.Weekday, r.Start, r.End)
		}
	}
	return nil
}

// WorksOn reports whether the weekday has a shift. A nil schedule has none.
func (s *WorkSchedule) WorksOn(day time.Weekday) bool {
	_, ok := s.RuleFor(day)
	return ok
}

func (s *WorkSchedule) RuleFor(day time.Weekday) (ScheduleRule, bool) {
	if s == nil {
		return ScheduleRule{}, false
	}
	for _, r := range s.Rules {
		if r.Weekday == day {
			return r, true
		}
	}
	return ScheduleRule{}, false
}

// FirstRule returns the rule for the earliest weekday, counting Monday first.
func (s *WorkSchedule) FirstRule() (ScheduleRule, bool) {
	if s == nil || len(s.Rules) == 0 {
		return ScheduleRule{}, false
	}
	return s.Sorted()[0], true
}

// Sorted returns the rules ordered Monday through Sunday.
func (s *WorkSchedule) Sorted() []ScheduleRule {
	rules := append([]ScheduleRule(nil), s.Rules...)
	sort.SliceStable(rules, func(i, j int) bool {
		return mondayIndex(rules[i].Weekday) < mondayIndex(rules[j].Weekday)
	})
	return rules
}

func mondayIndex(d time.Weekday) int { return (int(d) + 6) % 7 }

// =============================================================================
// HOURS - Converting days to hours
// =============================================================================

// HoursConfig holds the knobs for turning schedules into daily hours.
type HoursConfig struct {
	DefaultDailyHours  decimal.Decimal
	MealBreakThreshold decimal.Decimal
	MealBreakDeduction decimal.Decimal
}

func DefaultHoursConfig() HoursConfig {
	return HoursConfig{
		DefaultDailyHours:  decimal.NewFromInt(8),
		MealBreakThreshold: decimal.NewFromInt(5),
		MealBreakDeduction: decimal.NewFromInt(1),
	}
}

// DailyHours is the length of a working day used for DAYS-to-hours
// conversion: the first shift's duration, less the meal break when the shift
// is longer than the threshold. Falls back to the default when there is no
// shift or the result is not positive.
func (c HoursConfig) DailyHours(s *WorkSchedule) decimal.Decimal {
	rule, ok := s.FirstRule()
	if !ok {
		return c.DefaultDailyHours
	}
	h := rule.Hours()
	if h.GreaterThan(c.MealBreakThreshold) {
		h = h.Sub(c.MealBreakDeduction)
	}
	if !h.IsPositive() {
		return c.DefaultDailyHours
	}
	return h
}

// ShiftHours is the first shift's raw duration, or the default.
func (c HoursConfig) ShiftHours(s *WorkSchedule) decimal.Decimal {
	rule, ok := s.FirstRule()
	if !ok || rule.Duration() <= 0 {
		return c.DefaultDailyHours
	}
	return rule.Hours()
}

// ToHours converts an amount in unit to hours.
func ToHours(amount decimal.Decimal, unit generic.Unit, dailyHours decimal.Decimal) decimal.Decimal {
	if unit == generic.UnitDays {
		return amount.Mul(dailyHours)
	}
	return amount
}
