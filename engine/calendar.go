/*
calendar.go - Calendar-day arithmetic for the scheduling engine

PURPOSE:
  Every scheduling decision in this system is made on whole calendar
  days. This file defines Day, a time.Time pinned to UTC midnight, and
  the date arithmetic the recurrence evaluator needs (weekday, ordinal
  week, day/month/year distances).

NORMALIZATION CONTRACT:
  A Day is ALWAYS midnight UTC. Inputs from wall-clock time go through
  DayOf exactly once, at the boundary: the user's local year/month/day
  is re-anchored at UTC midnight. Recurrence bounds, additional dates,
  and completion keys all use the same normalization, so two Days are
  comparable with plain Equal/Before/After and map keys never split a
  logical day into two entries.

WEEKDAY CONVENTION:
  Weekday() returns 0..6 with 0 = Sunday, matching the wire format.

SEE ALSO:
  - recurrence.go: Consumes these utilities
  - completion.go: Uses Day as half of the completion key
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - A calendar day, normalized to UTC midnight
// =============================================================================

// Day represents one calendar day. The zero value is "no day".
type Day struct {
	t time.Time
}

// NewDay constructs a Day from calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf normalizes an arbitrary instant to the Day of its wall-clock
// calendar date. The instant's own location decides which date it is;
// the result is re-anchored at UTC midnight.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return NewDay(y, m, d)
}

// Today returns the current local calendar day.
func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses an ISO-8601 date or timestamp string into a Day.
// Timestamps are truncated to their calendar date.
func ParseDay(s string) (Day, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DayOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t.UTC()), nil
}

// Comparison
func (d Day) Before(o Day) bool        { return d.t.Before(o.t) }
func (d Day) After(o Day) bool         { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool         { return d.t.Equal(o.t) }
func (d Day) BeforeOrEqual(o Day) bool { return !d.After(o) }
func (d Day) AfterOrEqual(o Day) bool  { return !d.Before(o) }
func (d Day) IsZero() bool             { return d.t.IsZero() }

// Arithmetic
func (d Day) AddDays(n int) Day   { return DayOf(d.t.AddDate(0, 0, n)) }
func (d Day) AddMonths(n int) Day { return DayOf(d.t.AddDate(0, n, 0)) }
func (d Day) AddYears(n int) Day  { return DayOf(d.t.AddDate(n, 0, 0)) }

// Properties
func (d Day) Year() int         { return d.t.Year() }
func (d Day) Month() time.Month { return d.t.Month() }
func (d Day) DayOfMonth() int   { return d.t.Day() }
func (d Day) Time() time.Time   { return d.t }

// Weekday returns the day of week as 0..6, 0 = Sunday.
func (d Day) Weekday() int { return int(d.t.Weekday()) }

// OrdinalWeek returns which occurrence of its weekday this day is
// within its month: 1 for days 1-7, 2 for 8-14, and so on up to 5.
func (d Day) OrdinalWeek() int { return (d.t.Day()-1)/7 + 1 }

// IsLastWeekdayInMonth reports whether no later day in the same month
// shares this day's weekday. Used for "last Friday" style patterns.
func (d Day) IsLastWeekdayInMonth() bool {
	next := d.AddDays(7)
	return next.Month() != d.Month()
}

func (d Day) String() string { return d.t.Format("2006-01-02") }

// MarshalJSON encodes the day as an ISO UTC-midnight timestamp, the
// form the client exchange format uses.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.t.Format(time.RFC3339) + `"`), nil
}

func (d *Day) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid day literal %s", b)
	}
	parsed, err := ParseDay(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DISTANCES
// =============================================================================

// DaysBetween returns the signed number of whole days from a to b.
func DaysBetween(a, b Day) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}

// MonthsBetween returns the calendar-month difference from a to b.
// It counts month boundaries, not elapsed days: Jan 31 to Feb 1 is 1.
func MonthsBetween(a, b Day) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// YearsBetween returns the calendar-year difference from a to b.
func YearsBetween(a, b Day) int {
	return b.Year() - a.Year()
}

// RangeDays returns every day in [from, to] inclusive.
func RangeDays(from, to Day) []Day {
	var days []Day
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
