/*
recurrence.go - Recurrence rules and the scheduling evaluator

PURPOSE:
  Defines the tagged recurrence union (none/daily/weekly/monthly/yearly)
  and answers the single hottest question in the system: is this task
  scheduled on this day? The answer is recomputed thousands of times per
  render, so evaluation is a pure function over normalized Days with no
  allocation on the hot path.

RULE SEMANTICS:
  none:    occurs exactly once, on the start day
  daily:   every Interval days counted from the start day
  weekly:  any day whose weekday is in Days
  monthly: listed day numbers, or the Nth/last weekday, of every
           Interval-th month counted from the start day's month
  yearly:  same as monthly, anchored to one month, stepping in years

  AdditionalDates are explicit one-off occurrences outside the rule.
  They always win, even outside the start/end bounds - they are how
  off-schedule check-ins stay visible.

EDGE POLICY:
  Days are never rolled to the nearest valid day. A dayOfMonth=31 rule
  simply never matches in February. Bounds are inclusive day boundaries.

SEE ALSO:
  - calendar.go: Day arithmetic
  - wire.go:     JSON exchange format for these rules
*/
package engine

import "log"

// =============================================================================
// RECURRENCE KIND
// =============================================================================

type Kind string

const (
	KindNone    Kind = "none"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindYearly  Kind = "yearly"
)

// =============================================================================
// WEEK PATTERN - "the Nth weekday of the month"
// =============================================================================

// WeekPattern selects a weekday occurrence within a month.
// Ordinal -1 means the last occurrence of that weekday.
type WeekPattern struct {
	Ordinal   int // -1, or 1..5
	DayOfWeek int // 0..6, 0 = Sunday
}

// matches reports whether d is the occurrence the pattern selects.
func (wp WeekPattern) matches(d Day) bool {
	if d.Weekday() != wp.DayOfWeek {
		return false
	}
	if wp.Ordinal == -1 {
		return d.IsLastWeekdayInMonth()
	}
	return d.OrdinalWeek() == wp.Ordinal
}

// =============================================================================
// RECURRENCE - Tagged union over scheduling rules
// =============================================================================

type Recurrence struct {
	Kind Kind

	// Inclusive day bounds. A zero Start means unbounded start (daily
	// only; other kinds require an anchor). A zero End means open-ended.
	Start Day
	End   Day

	// Interval multiplies the base step: every N days, every N months,
	// every N years. Zero is treated as 1.
	Interval int

	// Weekly: weekday set, 0..6 with 0 = Sunday.
	Days []int

	// Monthly/yearly: exactly one of DaysOfMonth or WeekPattern.
	DaysOfMonth []int
	WeekPattern *WeekPattern

	// Yearly: anchor month, 1..12.
	Month int

	// Explicit extra occurrences outside the base rule. Always
	// scheduled, regardless of rule and bounds.
	AdditionalDates []Day
}

// interval returns the effective step multiplier.
func (r *Recurrence) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// HasAdditionalDate reports whether day is an explicit extra occurrence.
func (r *Recurrence) HasAdditionalDate(day Day) bool {
	for _, d := range r.AdditionalDates {
		if d.Equal(day) {
			return true
		}
	}
	return false
}

// AddAdditionalDate appends day if not already present. Reports
// whether the set changed.
func (r *Recurrence) AddAdditionalDate(day Day) bool {
	if r.HasAdditionalDate(day) {
		return false
	}
	r.AdditionalDates = append(r.AdditionalDates, day)
	return true
}

// RemoveAdditionalDate removes day if present. Reports whether the set
// changed.
func (r *Recurrence) RemoveAdditionalDate(day Day) bool {
	for i, d := range r.AdditionalDates {
		if d.Equal(day) {
			r.AdditionalDates = append(r.AdditionalDates[:i], r.AdditionalDates[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate rejects malformed rules. Returns *InvalidRecurrenceError.
func (r *Recurrence) Validate() error {
	if r.Interval < 0 {
		return &InvalidRecurrenceError{Kind: r.Kind, Reason: "interval must be >= 1"}
	}
	switch r.Kind {
	case KindNone:
		if r.Start.IsZero() {
			return &InvalidRecurrenceError{Kind: r.Kind, Reason: "one-shot rule requires a start day"}
		}
	case KindDaily:
		// Unbounded start is allowed; interval counting then anchors at
		// the zero day, which makes every day a match for interval 1.
	case KindWeekly:
		if len(r.Days) == 0 {
			return &InvalidRecurrenceError{Kind: r.Kind, Reason: "weekly rule requires at least one weekday"}
		}
		for _, wd := range r.Days {
			if wd < 0 || wd > 6 {
				return &InvalidRecurrenceError{Kind: r.Kind, Reason: "weekday out of range 0..6"}
			}
		}
	case KindMonthly:
		if err := r.validateMonthShape(); err != nil {
			return err
		}
	case KindYearly:
		if r.Month < 1 || r.Month > 12 {
			return &InvalidRecurrenceError{Kind: r.Kind, Reason: "yearly rule requires month 1..12"}
		}
		if err := r.validateMonthShape(); err != nil {
			return err
		}
	default:
		return &InvalidRecurrenceError{Kind: r.Kind, Reason: "unknown recurrence kind"}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return &InvalidRecurrenceError{Kind: r.Kind, Reason: "end day before start day"}
	}
	return nil
}

func (r *Recurrence) validateMonthShape() error {
	hasDays := len(r.DaysOfMonth) > 0
	hasPattern := r.WeekPattern != nil
	if hasDays == hasPattern {
		return &InvalidRecurrenceError{Kind: r.Kind, Reason: "requires exactly one of dayOfMonth or weekPattern"}
	}
	if hasDays {
		for _, dom := range r.DaysOfMonth {
			if dom < 1 || dom > 31 {
				return &InvalidRecurrenceError{Kind: r.Kind, Reason: "day of month out of range 1..31"}
			}
		}
	}
	if hasPattern {
		wp := r.WeekPattern
		if wp.DayOfWeek < 0 || wp.DayOfWeek > 6 {
			return &InvalidRecurrenceError{Kind: r.Kind, Reason: "weekPattern weekday out of range 0..6"}
		}
		if wp.Ordinal != -1 && (wp.Ordinal < 1 || wp.Ordinal > 5) {
			return &InvalidRecurrenceError{Kind: r.Kind, Reason: "weekPattern ordinal must be -1 or 1..5"}
		}
	}
	return nil
}

// =============================================================================
// RULE EVALUATION
// =============================================================================

// OccursOn reports whether the rule selects the given day. This is the
// rule-level check only; task-level concerns (notes, nil recurrence,
// subtask inheritance) live in Evaluator.IsScheduled.
func (r *Recurrence) OccursOn(day Day) bool {
	// Off-schedule override wins before anything else, including bounds.
	if r.HasAdditionalDate(day) {
		return true
	}

	if !r.Start.IsZero() && day.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && day.After(r.End) {
		return false
	}

	switch r.Kind {
	case KindNone:
		return day.Equal(r.Start)

	case KindDaily:
		n := r.interval()
		if n == 1 {
			return true
		}
		if r.Start.IsZero() {
			return true
		}
		diff := DaysBetween(r.Start, day)
		return diff%n == 0

	case KindWeekly:
		wd := day.Weekday()
		for _, d := range r.Days {
			if d == wd {
				return true
			}
		}
		return false

	case KindMonthly:
		if !r.Start.IsZero() && MonthsBetween(r.Start, day)%r.interval() != 0 {
			return false
		}
		return r.matchesMonthShape(day)

	case KindYearly:
		if int(day.Month()) != r.Month {
			return false
		}
		if !r.Start.IsZero() && YearsBetween(r.Start, day)%r.interval() != 0 {
			return false
		}
		return r.matchesMonthShape(day)

	default:
		// One bad record must not break rendering of every other task.
		log.Printf("recurrence: unknown kind %q, treating as never scheduled", r.Kind)
		return false
	}
}

func (r *Recurrence) matchesMonthShape(day Day) bool {
	if r.WeekPattern != nil {
		return r.WeekPattern.matches(day)
	}
	dom := day.DayOfMonth()
	for _, d := range r.DaysOfMonth {
		// An invalid day for a short month simply never matches; there
		// is no clamping or rollover to the next month.
		if d == dom {
			return true
		}
	}
	return false
}

// =============================================================================
// EVALUATOR - Task-level scheduling decisions
// =============================================================================

// Evaluator answers IsScheduled for tasks, layering task concerns on
// top of the rule check: notes never schedule, nil recurrence means
// backlog, and a subtask without its own rule inherits its parent's
// schedule.
type Evaluator struct {
	Tasks *TaskSet
}

func NewEvaluator(tasks *TaskSet) *Evaluator { return &Evaluator{Tasks: tasks} }

// maxParentHops bounds the inheritance walk so a corrupted parent
// cycle in stored data cannot recurse without end.
const maxParentHops = 32

// IsScheduled reports whether the task occurs on the given day.
// It never fails; malformed or unknown rules evaluate to false.
func (e *Evaluator) IsScheduled(t *Task, day Day) bool {
	return e.isScheduled(t, day, 0)
}

func (e *Evaluator) isScheduled(t *Task, day Day, hops int) bool {
	if t == nil || !t.CompletionType.Schedulable() {
		return false
	}
	if t.Recurrence == nil {
		// A subtask without its own rule rides its parent's schedule.
		if t.IsSubtask() && e.Tasks != nil {
			if hops >= maxParentHops {
				log.Printf("recurrence: parent chain of task %s exceeds %d hops, treating as never scheduled", t.ID, maxParentHops)
				return false
			}
			if parent := e.Tasks.Get(t.ParentID); parent != nil {
				return e.isScheduled(parent, day, hops+1)
			}
		}
		return false
	}
	return t.Recurrence.OccursOn(day)
}
