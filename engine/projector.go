/*
projector.go - Derived views over tasks and completions

PURPOSE:
  Three pure derivations feed every list the UI renders:

  TodaysTasks: what belongs on the focal day's list, with per-task
               completion annotations, subtasks included.
  Backlog:     unscheduled work that still needs a home. The most
               failure-prone derivation - it must agree exactly with
               TodaysTasks so a task never shows up in both lists, or
               in neither when it should be somewhere.
  HistoryRows: a (task, day) grid over a date range for the tabular
               history of recurring tasks.

DESIGN:
  The projector is a pure function of (tasks, completions, overrides,
  day). Grace-window visibility is an explicit, owned input - a
  GraceSet handed in at construction - never ambient global state.
  Section expansion is likewise observed, not mutated (collapse.go owns
  that policy).

SEE ALSO:
  - recurrence.go: The evaluator these derivations lean on
  - grace.go:      The visibility override set
*/
package engine

import (
	"context"
	"sort"
)

// =============================================================================
// VIEW TYPES
// =============================================================================

// TaskView is a task annotated with its completion state for one day.
type TaskView struct {
	Task      *Task
	Day       Day
	Scheduled bool
	Completed bool
	Outcome   Outcome
	HasRecord bool
	Subtasks  []TaskView
}

// HistoryCell is one (task, day) cell of the history grid.
type HistoryCell struct {
	Day       Day
	Scheduled bool
	Completion *Completion

	// OffSchedule marks a cell that has a completion even though the
	// base rule does not select the day; the UI renders these
	// distinctly from scheduled-and-completed cells.
	OffSchedule bool
}

// HistoryRow is one recurring task's cells across the requested range.
type HistoryRow struct {
	Task  *Task
	Cells []HistoryCell
}

// =============================================================================
// PROJECTOR
// =============================================================================

type Projector struct {
	Tasks       *TaskSet
	Completions CompletionStore

	// Grace keeps just-completed tasks visible briefly. Optional; nil
	// disables the override.
	Grace *GraceSet

	eval *Evaluator
}

func NewProjector(tasks *TaskSet, completions CompletionStore, grace *GraceSet) *Projector {
	return &Projector{
		Tasks:       tasks,
		Completions: completions,
		Grace:       grace,
		eval:        NewEvaluator(tasks),
	}
}

// Evaluator exposes the scheduling evaluator the projector uses, so
// callers and the projector cannot disagree on scheduling.
func (p *Projector) Evaluator() *Evaluator { return p.eval }

// =============================================================================
// TODAY'S TASKS
// =============================================================================

// TodaysTasks returns the top-level tasks that belong on the given
// day's list, annotated with completion state, subtasks resolved
// recursively.
//
// A task qualifies when it is scheduled on the day, or when it is a
// one-time task currently in progress: "in progress" is a stronger
// signal than date match, so such tasks follow the user until resolved.
// That override lives here, not in the evaluator, which stays a pure
// function of recurrence and day.
func (p *Projector) TodaysTasks(ctx context.Context, day Day) ([]TaskView, error) {
	var views []TaskView
	for _, t := range p.Tasks.TopLevel() {
		if !t.CompletionType.Schedulable() {
			continue
		}
		scheduled := p.eval.IsScheduled(t, day)
		if !scheduled && !p.inProgressOverride(t) {
			continue
		}
		view, err := p.annotate(ctx, t, day, scheduled)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	p.sortViews(views)
	return views, nil
}

// inProgressOverride reports whether a one-time task is shown
// regardless of its nominal date.
func (p *Projector) inProgressOverride(t *Task) bool {
	if t.Status != StatusInProgress {
		return false
	}
	return t.Recurrence == nil || t.Recurrence.Kind == KindNone
}

// annotate builds the TaskView for a task and recurses into subtasks.
func (p *Projector) annotate(ctx context.Context, t *Task, day Day, scheduled bool) (TaskView, error) {
	outcome, err := p.Completions.OutcomeOnDay(ctx, t.ID, day)
	if err != nil {
		return TaskView{}, err
	}
	hasRecord, err := p.Completions.HasRecordOnDay(ctx, t.ID, day)
	if err != nil {
		return TaskView{}, err
	}
	view := TaskView{
		Task:      t,
		Day:       day,
		Scheduled: scheduled,
		Completed: outcome == OutcomeCompleted,
		Outcome:   outcome,
		HasRecord: hasRecord,
	}
	for _, sub := range p.Tasks.Subtasks(t.ID) {
		if !sub.CompletionType.Schedulable() {
			continue
		}
		sv, err := p.annotate(ctx, sub, day, p.eval.IsScheduled(sub, day))
		if err != nil {
			return TaskView{}, err
		}
		view.Subtasks = append(view.Subtasks, sv)
	}
	return view, nil
}

func (p *Projector) sortViews(views []TaskView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Task, views[j].Task
		if a.SectionID != b.SectionID {
			return a.SectionID < b.SectionID
		}
		if !a.Order.Equal(b.Order) {
			return a.Order.LessThan(b.Order)
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// BACKLOG
// =============================================================================

// Backlog returns the top-level tasks that have no qualifying
// occurrence today and no disqualifying completion history.
//
// Selection rules, in order:
//   - notes never appear
//   - anything scheduled today belongs to today, not the backlog
//   - true recurring tasks never appear; their misses show in history
//   - one-shot ("none") tasks are excluded once they have any
//     completion on any day - they belong to the day they were
//     completed on - unless that completion is inside the grace window
//   - never-scheduled tasks (nil recurrence) are included unless an
//     outcome is already recorded for today, with the same grace
//     exception
//   - tasks whose schedule starts in the future stay out of the
//     backlog; they will surface on their start day
func (p *Projector) Backlog(ctx context.Context, today Day) ([]TaskView, error) {
	var views []TaskView
	for _, t := range p.Tasks.TopLevel() {
		if !t.CompletionType.Schedulable() {
			continue
		}
		if p.eval.IsScheduled(t, today) {
			continue
		}
		if p.inProgressOverride(t) {
			// Already on today's list via the in-progress override.
			continue
		}

		include, err := p.backlogEligible(ctx, t, today)
		if err != nil {
			return nil, err
		}
		if !include {
			continue
		}
		view, err := p.annotate(ctx, t, today, false)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	p.sortViews(views)
	return views, nil
}

func (p *Projector) backlogEligible(ctx context.Context, t *Task, today Day) (bool, error) {
	if t.Recurrence != nil {
		if t.Recurrence.Kind != KindNone {
			// True recurring tasks never sit in the backlog.
			return false, nil
		}
		// Future-dated one-shots surface on their start day.
		if t.Recurrence.Start.After(today) {
			return false, nil
		}
		done, err := p.Completions.HasAnyCompletion(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if done {
			return p.graceActive(t.ID), nil
		}
		return true, nil
	}

	// Pure backlog item: out only while today's outcome is recorded.
	outcome, err := p.Completions.OutcomeOnDay(ctx, t.ID, today)
	if err != nil {
		return false, err
	}
	if outcome != OutcomeNone {
		return p.graceActive(t.ID), nil
	}
	return true, nil
}

func (p *Projector) graceActive(id TaskID) bool {
	return p.Grace != nil && p.Grace.ActiveForTask(id)
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryRows builds the (task, day) grid for every recurring task
// over [from, to]. Cells carry the completion record when one exists;
// a record on an unscheduled day is flagged OffSchedule.
func (p *Projector) HistoryRows(ctx context.Context, from, to Day) ([]HistoryRow, error) {
	days := RangeDays(from, to)
	var rows []HistoryRow
	for _, t := range p.Tasks.TopLevel() {
		if !t.IsRecurring() || !t.CompletionType.Schedulable() {
			continue
		}
		records, err := p.Completions.InRange(ctx, t.ID, from, to)
		if err != nil {
			return nil, err
		}
		byDay := make(map[Day]*Completion, len(records))
		for i := range records {
			byDay[records[i].Day] = &records[i]
		}

		row := HistoryRow{Task: t, Cells: make([]HistoryCell, 0, len(days))}
		for _, day := range days {
			scheduled := p.eval.IsScheduled(t, day)
			completion := byDay[day]
			row.Cells = append(row.Cells, HistoryCell{
				Day:         day,
				Scheduled:   scheduled,
				Completion:  completion,
				OffSchedule: completion != nil && !p.scheduledByRule(t, day),
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// scheduledByRule checks the base rule only, ignoring additional
// dates, so an off-schedule check-in renders as such even after its
// day was added to the additional set.
func (p *Projector) scheduledByRule(t *Task, day Day) bool {
	if t.Recurrence == nil {
		return false
	}
	base := *t.Recurrence
	base.AdditionalDates = nil
	return base.OccursOn(day)
}
