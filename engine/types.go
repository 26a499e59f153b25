/*
Package engine implements the recurrence evaluation and completion
tracking core of a personal task/habit tracker.

PURPOSE:
  Given a task's recurrence rule and a calendar day, decide whether the
  task is scheduled on that day, and maintain the per-(task, day)
  completion records that drive every derived view: today's list, the
  backlog, and the tabular history grid.

KEY CONCEPTS IN THIS FILE (types.go):
  - Task:    A schedulable item; subtasks are first-class Tasks that
             reference their parent by ID
  - Section: A named, ordered grouping of tasks
  - TaskSet: An ID-keyed arena holding all tasks; parents hold child
             IDs, never embedded copies
  - CompletionType: Closed enum selecting how a day's entry is captured

DESIGN PRINCIPLES:
  1. Purity: Evaluation and projection are functions of their inputs;
     nothing in this package reads ambient state
  2. One representation: A subtask exists exactly once, in the arena.
  3. Type safety: TaskID/SectionID are distinct types
  4. Closed enums: completion types and statuses are matched
     exhaustively, never compared as loose strings at call sites

SEE ALSO:
  - calendar.go:   Day normalization
  - recurrence.go: The scheduling rule union and evaluator
  - completion.go: Completion records and their store
  - projector.go:  Derived views
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TaskID string
type SectionID string

// =============================================================================
// COMPLETION TYPE - How a day's entry is captured for a task
// =============================================================================

type CompletionType string

const (
	CaptureCheckbox   CompletionType = "checkbox"
	CaptureText       CompletionType = "text"
	CaptureTextInput  CompletionType = "text_input"
	CaptureWorkout    CompletionType = "workout"
	CaptureNote       CompletionType = "note"
	CaptureReflection CompletionType = "reflection"
	CaptureSelection  CompletionType = "selection"
)

// Valid reports whether ct is a known completion type.
func (ct CompletionType) Valid() bool {
	switch ct {
	case CaptureCheckbox, CaptureText, CaptureTextInput, CaptureWorkout,
		CaptureNote, CaptureReflection, CaptureSelection:
		return true
	}
	return false
}

// Schedulable reports whether tasks of this type participate in
// scheduling at all. Notes never do.
func (ct CompletionType) Schedulable() bool { return ct != CaptureNote }

// =============================================================================
// STATUS - Lifecycle state for one-time tasks
// =============================================================================
// Recurring tasks express per-day completion through Completion records,
// not through Status.

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// =============================================================================
// TASK
// =============================================================================

type Task struct {
	ID        TaskID
	ParentID  TaskID    // empty for top-level tasks
	SectionID SectionID // required unless CompletionType is note
	Name      string

	// Recurrence is nil for pure backlog items. A backlog item placed
	// on a date is modeled as a one-shot ("none") recurrence.
	Recurrence *Recurrence

	// TimeOfDay is an optional "HH:MM" local time used for calendar
	// placement. Independent of the recurrence rule.
	TimeOfDay string

	Status         Status
	CompletionType CompletionType

	// Order is a fractional sort key within the section. Fractional so
	// a task can be placed between two neighbors without renumbering.
	Order decimal.Decimal

	// SubtaskIDs is the ordered list of child task IDs. The children
	// themselves live in the arena; this is a reference list, not an
	// owning copy.
	SubtaskIDs []TaskID
}

// IsSubtask reports whether the task has a parent.
func (t *Task) IsSubtask() bool { return t.ParentID != "" }

// IsRecurring reports whether the task has a true repeating rule.
// A one-shot ("none") recurrence does not count.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != nil && t.Recurrence.Kind != KindNone
}

// =============================================================================
// SECTION
// =============================================================================

// Section groups tasks in the UI. Expanded is user-controlled state;
// the engine observes it for auto-collapse decisions but never writes
// it on its own.
type Section struct {
	ID       SectionID
	Name     string
	Order    decimal.Decimal
	Expanded bool
}

// =============================================================================
// TASK SET - ID-keyed arena of tasks
// =============================================================================

// TaskSet holds every task exactly once, keyed by ID. Parent/child
// structure is expressed through ID references only.
type TaskSet struct {
	tasks map[TaskID]*Task
}

func NewTaskSet(tasks ...*Task) *TaskSet {
	s := &TaskSet{tasks: make(map[TaskID]*Task, len(tasks))}
	for _, t := range tasks {
		s.Put(t)
	}
	return s
}

// Put inserts or replaces a task and registers it with its parent's
// child list if the parent is present and doesn't know it yet.
func (s *TaskSet) Put(t *Task) {
	s.tasks[t.ID] = t
	if t.ParentID == "" {
		return
	}
	if parent, ok := s.tasks[t.ParentID]; ok {
		for _, id := range parent.SubtaskIDs {
			if id == t.ID {
				return
			}
		}
		parent.SubtaskIDs = append(parent.SubtaskIDs, t.ID)
	}
}

// Get returns the task with the given ID, or nil.
func (s *TaskSet) Get(id TaskID) *Task { return s.tasks[id] }

// Remove deletes a task and detaches it from its parent's child list.
func (s *TaskSet) Remove(id TaskID) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	delete(s.tasks, id)
	if t.ParentID != "" {
		if parent, ok := s.tasks[t.ParentID]; ok {
			kept := parent.SubtaskIDs[:0]
			for _, cid := range parent.SubtaskIDs {
				if cid != id {
					kept = append(kept, cid)
				}
			}
			parent.SubtaskIDs = kept
		}
	}
}

// All returns every task, ordered by section then Order then ID for
// deterministic iteration.
func (s *TaskSet) All() []*Task {
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionID != out[j].SectionID {
			return out[i].SectionID < out[j].SectionID
		}
		if !out[i].Order.Equal(out[j].Order) {
			return out[i].Order.LessThan(out[j].Order)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TopLevel returns every task without a parent, in arena order.
func (s *TaskSet) TopLevel() []*Task {
	var out []*Task
	for _, t := range s.All() {
		if !t.IsSubtask() {
			out = append(out, t)
		}
	}
	return out
}

// Subtasks returns the resolved children of a task, in the parent's
// declared order. Missing IDs are skipped.
func (s *TaskSet) Subtasks(id TaskID) []*Task {
	t := s.tasks[id]
	if t == nil {
		return nil
	}
	out := make([]*Task, 0, len(t.SubtaskIDs))
	for _, cid := range t.SubtaskIDs {
		if c := s.tasks[cid]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of tasks in the set.
func (s *TaskSet) Len() int { return len(s.tasks) }

// OrderBetween returns a sort key strictly between lo and hi, for
// inserting a task between two neighbors. With the zero value for lo
// the result sits below hi; with the zero value for hi it sits above lo.
func OrderBetween(lo, hi decimal.Decimal) decimal.Decimal {
	switch {
	case lo.IsZero() && hi.IsZero():
		return decimal.NewFromInt(1)
	case lo.IsZero():
		return hi.Sub(decimal.NewFromInt(1))
	case hi.IsZero():
		return lo.Add(decimal.NewFromInt(1))
	default:
		return lo.Add(hi).Div(decimal.NewFromInt(2))
	}
}
