package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (this IS a calendar system)
// =============================================================================

// TimePoint is a calendar date. The wrapped time is always midnight UTC so
// that two TimePoints for the same day compare equal regardless of where
// they were built.
type TimePoint struct {
	Time time.Time
}

const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint { return DateOf(time.Now()) }

// TodayIn returns the current date in loc. A nil loc means UTC.
func TodayIn(loc *time.Location) TimePoint {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate panics on malformed input. Intended for tests and fixtures.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic

func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// AddMonths moves by whole calendar months, clamping to the last day of the
// target month: Jan 31 + 1 month is Feb 28 (or 29).
func (tp TimePoint) AddMonths(n int) TimePoint {
	y, m, d := tp.Time.Date()
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	month := time.Month(total + 1)
	if last := daysIn(y, month); d > last {
		d = last
	}
	return NewTimePoint(y, month, d)
}

func (tp TimePoint) AddYears(n int) TimePoint { return tp.AddMonths(12 * n) }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

// ISOWeek returns the ISO 8601 year and week number.
func (tp TimePoint) ISOWeek() (year, week int) { return tp.Time.ISOWeek() }

// At combines the date with a wall-clock time in loc.
func (tp TimePoint) At(hour, minute int, loc *time.Location) time.Time {
	return time.Date(tp.Year(), tp.Month(), tp.Day(), hour, minute, 0, 0, loc)
}

func (tp TimePoint) MarshalText() ([]byte, error) { return []byte(tp.String()), nil }

func (tp *TimePoint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// SERVICE LENGTH - Completed calendar units between two dates
// =============================================================================

// CompletedMonths returns the number of whole calendar months from "from" to
// "to". A month is complete once from.AddMonths(n) is not after to, so an
// employee hired Jan 31 completes one month on Feb 28.
func CompletedMonths(from, to TimePoint) int {
	if to.Before(from) {
		return -CompletedMonths(to, from)
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if from.AddMonths(months).After(to) {
		months--
	}
	return months
}

// CompletedYears returns the number of whole years from "from" to "to".
func CompletedYears(from, to TimePoint) int {
	return CompletedMonths(from, to) / 12
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holiday is a public holiday. Dates are unique.
type Holiday struct {
	ID   string
	Date TimePoint
	Name string
}

// HolidayCalendar provides holiday lookup.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// HolidaySet is a HolidayCalendar backed by a fixed list.
type HolidaySet map[TimePoint]Holiday

func NewHolidaySet(holidays []Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[h.Date] = h
	}
	return set
}

func (s HolidaySet) IsHoliday(date TimePoint) bool {
	_, ok := s[date]
	return ok
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
