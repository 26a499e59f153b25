/*
recurrence_test.go - Behavior tests for rule evaluation

ORGANIZATION:
  1. Per-kind occurrence checks (none/daily/weekly/monthly/yearly)
  2. Edge policy: short months, bounds, additional dates
  3. Validation of malformed rules
  4. Evaluator-level concerns: notes, nil rules, subtask inheritance
  5. A property check over daily intervals

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario.
*/
package engine_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tally/schedule-engine/engine"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func day(y int, m time.Month, d int) engine.Day {
	return engine.NewDay(y, m, d)
}

func checkboxTask(id string, r *engine.Recurrence) *engine.Task {
	return &engine.Task{
		ID:             engine.TaskID(id),
		SectionID:      "sec-1",
		Name:           id,
		Recurrence:     r,
		Status:         engine.StatusTodo,
		CompletionType: engine.CaptureCheckbox,
	}
}

// =============================================================================
// PER-KIND OCCURRENCE
// =============================================================================

func TestOccursOn_None_MatchesOnlyStartDay(t *testing.T) {
	// GIVEN: A one-shot rule anchored to 2024-06-02
	r := &engine.Recurrence{Kind: engine.KindNone, Start: day(2024, time.June, 2)}

	// THEN: Only that exact day matches
	if !r.OccursOn(day(2024, time.June, 2)) {
		t.Error("expected occurrence on the start day")
	}
	if r.OccursOn(day(2024, time.June, 1)) || r.OccursOn(day(2024, time.June, 3)) {
		t.Error("one-shot rule must not match neighboring days")
	}
}

func TestOccursOn_Daily_EveryDayWithinBounds(t *testing.T) {
	// GIVEN: A plain daily rule bounded to June 2024
	r := &engine.Recurrence{
		Kind:  engine.KindDaily,
		Start: day(2024, time.June, 1),
		End:   day(2024, time.June, 30),
	}

	// THEN: Every day inside the bounds matches, none outside
	if !r.OccursOn(day(2024, time.June, 1)) || !r.OccursOn(day(2024, time.June, 30)) {
		t.Error("bounds are inclusive")
	}
	if r.OccursOn(day(2024, time.May, 31)) || r.OccursOn(day(2024, time.July, 1)) {
		t.Error("days outside the bounds must not match")
	}
}

func TestOccursOn_Daily_IntervalCountsFromStart(t *testing.T) {
	// GIVEN: Every 3rd day from 2024-06-01
	r := &engine.Recurrence{
		Kind:     engine.KindDaily,
		Start:    day(2024, time.June, 1),
		Interval: 3,
	}

	// THEN: Day 0, 3, 6... match; the rest do not
	if !r.OccursOn(day(2024, time.June, 1)) || !r.OccursOn(day(2024, time.June, 4)) || !r.OccursOn(day(2024, time.June, 7)) {
		t.Error("expected matches at 3-day steps from the start")
	}
	if r.OccursOn(day(2024, time.June, 2)) || r.OccursOn(day(2024, time.June, 3)) {
		t.Error("off-step days must not match")
	}
}

func TestOccursOn_Weekly_WeekdaySet(t *testing.T) {
	// GIVEN: Mon/Wed/Fri (1, 3, 5) starting 2024-06-01
	r := &engine.Recurrence{
		Kind:  engine.KindWeekly,
		Start: day(2024, time.June, 1),
		Days:  []int{1, 3, 5},
	}

	// WHEN: Walking the week of 2024-06-01 (Saturday) .. 06-07 (Friday)
	var matched []engine.Day
	for _, d := range engine.RangeDays(day(2024, time.June, 1), day(2024, time.June, 7)) {
		if r.OccursOn(d) {
			matched = append(matched, d)
		}
	}

	// THEN: Exactly Mon 06-03, Wed 06-05, Fri 06-07
	want := []engine.Day{day(2024, time.June, 3), day(2024, time.June, 5), day(2024, time.June, 7)}
	if len(matched) != len(want) {
		t.Fatalf("expected %d matches, got %d: %v", len(want), len(matched), matched)
	}
	for i := range want {
		if !matched[i].Equal(want[i]) {
			t.Errorf("match %d: expected %s, got %s", i, want[i], matched[i])
		}
	}
}

func TestOccursOn_Monthly_DayOfMonth(t *testing.T) {
	// GIVEN: The 15th of every month from 2024-01-01
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		DaysOfMonth: []int{15},
	}

	if !r.OccursOn(day(2024, time.March, 15)) {
		t.Error("expected occurrence on 2024-03-15")
	}
	if r.OccursOn(day(2024, time.March, 16)) {
		t.Error("2024-03-16 must not match")
	}
}

func TestOccursOn_Monthly_IntervalSkipsMonths(t *testing.T) {
	// GIVEN: The 10th of every 2nd month from January 2024
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		Interval:    2,
		DaysOfMonth: []int{10},
	}

	// THEN: Jan, Mar, May match; Feb, Apr do not
	if !r.OccursOn(day(2024, time.January, 10)) || !r.OccursOn(day(2024, time.March, 10)) {
		t.Error("expected matches on even month steps")
	}
	if r.OccursOn(day(2024, time.February, 10)) || r.OccursOn(day(2024, time.April, 10)) {
		t.Error("odd month steps must not match")
	}
}

func TestOccursOn_Monthly_LastFridayExactlyOncePerMonth(t *testing.T) {
	// GIVEN: "Last Friday of the month"
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		WeekPattern: &engine.WeekPattern{Ordinal: -1, DayOfWeek: 5},
	}

	// WHEN: Walking each month of 2024
	for m := time.January; m <= time.December; m++ {
		first := day(2024, m, 1)
		last := first.AddMonths(1).AddDays(-1)
		count := 0
		var hit engine.Day
		for _, d := range engine.RangeDays(first, last) {
			if r.OccursOn(d) {
				count++
				hit = d
			}
		}
		// THEN: Exactly one match per month, and it is a Friday with no
		// later Friday in the month
		if count != 1 {
			t.Fatalf("%s 2024: expected exactly 1 match, got %d", m, count)
		}
		if hit.Weekday() != 5 || !hit.IsLastWeekdayInMonth() {
			t.Errorf("%s 2024: %s is not the last Friday", m, hit)
		}
	}
}

func TestOccursOn_Monthly_NthWeekday(t *testing.T) {
	// GIVEN: The 2nd Tuesday of the month
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		WeekPattern: &engine.WeekPattern{Ordinal: 2, DayOfWeek: 2},
	}

	// June 2024: Tuesdays fall on 4, 11, 18, 25. The 2nd is the 11th.
	if !r.OccursOn(day(2024, time.June, 11)) {
		t.Error("expected occurrence on the 2nd Tuesday")
	}
	if r.OccursOn(day(2024, time.June, 4)) || r.OccursOn(day(2024, time.June, 18)) {
		t.Error("other Tuesdays must not match")
	}
}

func TestOccursOn_Yearly_MonthAndShape(t *testing.T) {
	// GIVEN: Every June 2nd
	r := &engine.Recurrence{
		Kind:        engine.KindYearly,
		Start:       day(2023, time.June, 2),
		Month:       6,
		DaysOfMonth: []int{2},
	}

	if !r.OccursOn(day(2024, time.June, 2)) || !r.OccursOn(day(2025, time.June, 2)) {
		t.Error("expected occurrence every June 2nd")
	}
	if r.OccursOn(day(2024, time.July, 2)) {
		t.Error("wrong month must not match")
	}
	if r.OccursOn(day(2024, time.June, 3)) {
		t.Error("wrong day must not match")
	}
}

func TestOccursOn_Yearly_IntervalSkipsYears(t *testing.T) {
	// GIVEN: Every 2nd year on March 1st, anchored 2024
	r := &engine.Recurrence{
		Kind:        engine.KindYearly,
		Start:       day(2024, time.March, 1),
		Interval:    2,
		Month:       3,
		DaysOfMonth: []int{1},
	}

	if !r.OccursOn(day(2024, time.March, 1)) || !r.OccursOn(day(2026, time.March, 1)) {
		t.Error("expected matches on even year steps")
	}
	if r.OccursOn(day(2025, time.March, 1)) {
		t.Error("odd year steps must not match")
	}
}

// =============================================================================
// EDGE POLICY
// =============================================================================

func TestOccursOn_DayOfMonth31_NeverMatchesFebruary(t *testing.T) {
	// GIVEN: The 31st of every month
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		DaysOfMonth: []int{31},
	}

	// WHEN: Walking all of February (leap year, 29 days)
	// THEN: No day matches; the rule is not clamped to the 29th
	for _, d := range engine.RangeDays(day(2024, time.February, 1), day(2024, time.February, 29)) {
		if r.OccursOn(d) {
			t.Fatalf("dayOfMonth=31 matched %s in February", d)
		}
	}
	if !r.OccursOn(day(2024, time.March, 31)) {
		t.Error("expected occurrence on 2024-03-31")
	}
}

func TestOccursOn_NonexistentDayDoesNotPanic(t *testing.T) {
	// GIVEN: A rule asked about a day built from out-of-range components
	r := &engine.Recurrence{
		Kind:        engine.KindMonthly,
		Start:       day(2024, time.January, 1),
		DaysOfMonth: []int{30},
	}

	// WHEN: The caller constructs "February 30th"; time.Date normalizes
	// it to March 1st
	overflow := day(2024, time.February, 30)

	// THEN: Evaluation returns a plain boolean, no panic
	if r.OccursOn(overflow) {
		t.Errorf("normalized day %s must not match dayOfMonth=30 rule on March 1st", overflow)
	}
}

func TestOccursOn_AdditionalDateWinsOverRuleAndBounds(t *testing.T) {
	// GIVEN: A weekly Monday rule bounded to June 2024, plus an explicit
	// extra occurrence on a Saturday after the end bound
	r := &engine.Recurrence{
		Kind:            engine.KindWeekly,
		Start:           day(2024, time.June, 1),
		End:             day(2024, time.June, 30),
		Days:            []int{1},
		AdditionalDates: []engine.Day{day(2024, time.July, 6)},
	}

	// THEN: The extra date matches even though it fails both the weekday
	// check and the bounds check
	if !r.OccursOn(day(2024, time.July, 6)) {
		t.Error("additional date must win over rule and bounds")
	}
	if r.OccursOn(day(2024, time.July, 1)) {
		t.Error("an ordinary Monday past the end bound must not match")
	}
}

func TestAdditionalDates_AddRemoveIdempotent(t *testing.T) {
	r := &engine.Recurrence{Kind: engine.KindDaily, Start: day(2024, time.June, 1)}
	d := day(2024, time.July, 6)

	if !r.AddAdditionalDate(d) {
		t.Error("first add should report a change")
	}
	if r.AddAdditionalDate(d) {
		t.Error("second add of the same day should be a no-op")
	}
	if len(r.AdditionalDates) != 1 {
		t.Fatalf("expected 1 additional date, got %d", len(r.AdditionalDates))
	}
	if !r.RemoveAdditionalDate(d) {
		t.Error("remove should report a change")
	}
	if r.RemoveAdditionalDate(d) {
		t.Error("removing an absent day should be a no-op")
	}
}

func TestOccursOn_UnknownKindIsNeverScheduled(t *testing.T) {
	// GIVEN: A rule whose kind this version does not understand
	r := &engine.Recurrence{Kind: "lunar", Start: day(2024, time.June, 1)}

	// THEN: It evaluates to false rather than failing the whole render
	if r.OccursOn(day(2024, time.June, 1)) {
		t.Error("unknown kind must evaluate to not scheduled")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_RejectsMalformedRules(t *testing.T) {
	cases := []struct {
		name string
		rule engine.Recurrence
	}{
		{"weekly without weekdays", engine.Recurrence{Kind: engine.KindWeekly, Start: day(2024, time.June, 1)}},
		{"weekly weekday out of range", engine.Recurrence{Kind: engine.KindWeekly, Start: day(2024, time.June, 1), Days: []int{7}}},
		{"monthly with neither shape", engine.Recurrence{Kind: engine.KindMonthly, Start: day(2024, time.June, 1)}},
		{"monthly with both shapes", engine.Recurrence{
			Kind: engine.KindMonthly, Start: day(2024, time.June, 1),
			DaysOfMonth: []int{1}, WeekPattern: &engine.WeekPattern{Ordinal: 1, DayOfWeek: 1},
		}},
		{"monthly day out of range", engine.Recurrence{Kind: engine.KindMonthly, Start: day(2024, time.June, 1), DaysOfMonth: []int{32}}},
		{"yearly without month", engine.Recurrence{Kind: engine.KindYearly, Start: day(2024, time.June, 1), DaysOfMonth: []int{1}}},
		{"end before start", engine.Recurrence{Kind: engine.KindDaily, Start: day(2024, time.June, 10), End: day(2024, time.June, 1)}},
		{"one-shot without start", engine.Recurrence{Kind: engine.KindNone}},
		{"unknown kind", engine.Recurrence{Kind: "lunar", Start: day(2024, time.June, 1)}},
		{"negative interval", engine.Recurrence{Kind: engine.KindDaily, Interval: -1}},
		{"weekPattern ordinal out of range", engine.Recurrence{
			Kind: engine.KindMonthly, Start: day(2024, time.June, 1),
			WeekPattern: &engine.WeekPattern{Ordinal: 6, DayOfWeek: 1},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rule.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_AcceptsWellFormedRules(t *testing.T) {
	cases := []struct {
		name string
		rule engine.Recurrence
	}{
		{"plain daily", engine.Recurrence{Kind: engine.KindDaily}},
		{"weekly", engine.Recurrence{Kind: engine.KindWeekly, Days: []int{0, 6}}},
		{"monthly day list", engine.Recurrence{Kind: engine.KindMonthly, DaysOfMonth: []int{1, 15}}},
		{"monthly last weekday", engine.Recurrence{Kind: engine.KindMonthly, WeekPattern: &engine.WeekPattern{Ordinal: -1, DayOfWeek: 5}}},
		{"yearly", engine.Recurrence{Kind: engine.KindYearly, Month: 6, DaysOfMonth: []int{2}}},
		{"one-shot", engine.Recurrence{Kind: engine.KindNone, Start: day(2024, time.June, 2)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rule.Validate(); err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

// =============================================================================
// EVALUATOR - Task-level decisions
// =============================================================================

func TestIsScheduled_NotesNeverSchedule(t *testing.T) {
	// GIVEN: A note carrying a daily rule
	note := checkboxTask("note-1", &engine.Recurrence{Kind: engine.KindDaily})
	note.CompletionType = engine.CaptureNote
	eval := engine.NewEvaluator(engine.NewTaskSet(note))

	// THEN: The rule is ignored entirely
	if eval.IsScheduled(note, day(2024, time.June, 2)) {
		t.Error("notes must never be scheduled")
	}
}

func TestIsScheduled_NilRecurrenceMeansBacklog(t *testing.T) {
	task := checkboxTask("backlog-1", nil)
	eval := engine.NewEvaluator(engine.NewTaskSet(task))

	if eval.IsScheduled(task, day(2024, time.June, 2)) {
		t.Error("a task without a rule is never scheduled")
	}
}

func TestIsScheduled_SubtaskInheritsParentSchedule(t *testing.T) {
	// GIVEN: A weekly parent and a subtask without its own rule
	parent := checkboxTask("parent", &engine.Recurrence{
		Kind: engine.KindWeekly, Start: day(2024, time.June, 1), Days: []int{1},
	})
	sub := checkboxTask("sub", nil)
	sub.ParentID = parent.ID
	eval := engine.NewEvaluator(engine.NewTaskSet(parent, sub))

	monday := day(2024, time.June, 3)
	tuesday := day(2024, time.June, 4)

	// THEN: The subtask rides the parent's schedule
	if !eval.IsScheduled(sub, monday) {
		t.Error("subtask should inherit the parent's Monday schedule")
	}
	if eval.IsScheduled(sub, tuesday) {
		t.Error("subtask should not be scheduled off the parent's days")
	}
}

func TestIsScheduled_SubtaskOwnRuleOverridesParent(t *testing.T) {
	// GIVEN: A daily parent and a subtask with its own weekly rule
	parent := checkboxTask("parent", &engine.Recurrence{Kind: engine.KindDaily, Start: day(2024, time.June, 1)})
	sub := checkboxTask("sub", &engine.Recurrence{
		Kind: engine.KindWeekly, Start: day(2024, time.June, 1), Days: []int{2},
	})
	sub.ParentID = parent.ID
	eval := engine.NewEvaluator(engine.NewTaskSet(parent, sub))

	// THEN: The subtask's own rule wins
	if eval.IsScheduled(sub, day(2024, time.June, 3)) {
		t.Error("subtask with its own rule must not inherit the parent's")
	}
	if !eval.IsScheduled(sub, day(2024, time.June, 4)) {
		t.Error("subtask should be scheduled by its own rule")
	}
}

func TestIsScheduled_ParentCycleEvaluatesFalse(t *testing.T) {
	// GIVEN: Two rule-less subtasks whose parent references form a
	// cycle, as a corrupted row could produce
	a := checkboxTask("cycle-a", nil)
	b := checkboxTask("cycle-b", nil)
	a.ParentID = b.ID
	b.ParentID = a.ID
	eval := engine.NewEvaluator(engine.NewTaskSet(a, b))

	// THEN: The inheritance walk terminates and answers false
	if eval.IsScheduled(a, day(2024, time.June, 3)) {
		t.Error("a parent cycle must evaluate as never scheduled")
	}
	if eval.IsScheduled(b, day(2024, time.June, 3)) {
		t.Error("a parent cycle must evaluate as never scheduled")
	}
}

// =============================================================================
// PROPERTY: Daily interval arithmetic
// =============================================================================

func TestOccursOn_Daily_IntervalProperty(t *testing.T) {
	// GIVEN: Random intervals k in [1, 30] over a 400-day window
	// THEN: A day matches exactly when its distance from the start is a
	// multiple of k
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		k := rng.Intn(30) + 1
		start := day(2024, time.January, 1).AddDays(rng.Intn(60))
		r := &engine.Recurrence{Kind: engine.KindDaily, Start: start, Interval: k}

		for offset := 0; offset < 400; offset++ {
			d := start.AddDays(offset)
			want := offset%k == 0
			if got := r.OccursOn(d); got != want {
				t.Fatalf("interval %d, offset %d (%s): expected %v, got %v", k, offset, d, want, got)
			}
		}
		// Days before the start never match.
		if r.OccursOn(start.AddDays(-k)) {
			t.Fatalf("interval %d: day before start matched", k)
		}
	}
}
