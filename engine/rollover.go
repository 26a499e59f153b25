/*
rollover.go - Mutation helpers: rollover, toggle, off-schedule entries

PURPOSE:
  The write side of the engine. Wraps the completion store with the
  invariants the views depend on:

  Rollover:      mark a missed scheduled day rolled_over. Defined only
                 for scheduled days; no new occurrence is materialized
                 anywhere - the label lives on the original day.
  Toggle:        the checkbox path. Create a completed record if the
                 day is unmarked, clear it if marked, and drive the
                 grace window either way.
  Off-schedule:  record a completion on a day the rule does not select.
                 The day is appended to the rule's additional dates in
                 the same transaction as the completion write, so the
                 evaluator and the record can never disagree for long;
                 deletion symmetrically removes the date.
  Reconcile:     read-time self-heal for the completion/additional-date
                 pair, in case a past pair of writes half-failed.

CONCURRENCY:
  Every mutation is routed through a per-key FlightGroup: at most one
  in-flight mutation per (task, day), so a later toggle observes the
  result of an earlier one rather than an interleaved partial state.

SEE ALSO:
  - completion.go: The store contract underneath
  - grace.go, flight.go: The concurrency pieces
*/
package engine

import (
	"context"
	"errors"
	"log"
)

// Coordinator applies completion mutations while holding the engine's
// invariants.
type Coordinator struct {
	Tasks       *TaskSet
	Completions TxCompletionStore

	flight FlightGroup
	grace  *GraceSet
	eval   *Evaluator
}

func NewCoordinator(tasks *TaskSet, completions TxCompletionStore, grace *GraceSet) *Coordinator {
	return &Coordinator{
		Tasks:       tasks,
		Completions: completions,
		grace:       grace,
		eval:        NewEvaluator(tasks),
	}
}

// =============================================================================
// ROLLOVER
// =============================================================================

// Rollover marks a scheduled day as rolled over. The next naturally
// scheduled day is unaffected. Rolling over a day the task is not
// scheduled on returns an InvalidOperationError.
func (c *Coordinator) Rollover(ctx context.Context, taskID TaskID, day Day) error {
	t := c.Tasks.Get(taskID)
	if t == nil {
		return ErrTaskNotFound
	}
	if !c.eval.IsScheduled(t, day) {
		return &InvalidOperationError{
			Op: "rollover", TaskID: taskID, Day: day,
			Reason: "task is not scheduled on this day",
		}
	}

	key := Key{TaskID: taskID, Day: day}
	outcome := OutcomeRolledOver
	return c.flight.Do(key, func() error {
		err := c.Completions.Update(ctx, key, CompletionPatch{Outcome: &outcome})
		if errors.Is(err, ErrCompletionNotFound) {
			return c.Completions.Create(ctx, Completion{TaskID: taskID, Day: day, Outcome: outcome})
		}
		return err
	})
}

// =============================================================================
// TOGGLE
// =============================================================================

// Toggle flips the completed mark for a (task, day). Creating a mark
// arms the grace window; clearing one cancels it immediately so the
// task does not linger in a list it no longer belongs to.
// Returns the resulting completed state.
func (c *Coordinator) Toggle(ctx context.Context, taskID TaskID, day Day) (bool, error) {
	if c.Tasks.Get(taskID) == nil {
		return false, ErrTaskNotFound
	}
	key := Key{TaskID: taskID, Day: day}
	var completed bool
	err := c.flight.Do(key, func() error {
		has, err := c.Completions.HasRecordOnDay(ctx, taskID, day)
		if err != nil {
			return err
		}
		if has {
			if err := c.Completions.Delete(ctx, key); err != nil {
				return err
			}
			if c.grace != nil {
				c.grace.Cancel(key)
			}
			completed = false
			return nil
		}
		if err := c.Completions.Create(ctx, Completion{TaskID: taskID, Day: day, Outcome: OutcomeCompleted}); err != nil {
			return err
		}
		if c.grace != nil {
			c.grace.Arm(key)
		}
		completed = true
		return nil
	})
	return completed, err
}

// SetOutcome records a definite outcome for a (task, day), creating
// the record if needed. The outcome-picker path.
func (c *Coordinator) SetOutcome(ctx context.Context, taskID TaskID, day Day, outcome Outcome) error {
	if c.Tasks.Get(taskID) == nil {
		return ErrTaskNotFound
	}
	key := Key{TaskID: taskID, Day: day}
	return c.flight.Do(key, func() error {
		err := c.Completions.Update(ctx, key, CompletionPatch{Outcome: &outcome})
		if errors.Is(err, ErrCompletionNotFound) {
			return c.Completions.Create(ctx, Completion{TaskID: taskID, Day: day, Outcome: outcome})
		}
		return err
	})
}

// =============================================================================
// SUBTASK CASCADE
// =============================================================================

// CompleteWithSubtasks marks a task and all of its subtasks completed
// for the day. Each key is independent: a duplicate on one subtask
// does not roll back its siblings. Returns one result per task.
func (c *Coordinator) CompleteWithSubtasks(ctx context.Context, taskID TaskID, day Day) ([]BatchResult, error) {
	t := c.Tasks.Get(taskID)
	if t == nil {
		return nil, ErrTaskNotFound
	}
	batch := []Completion{{TaskID: taskID, Day: day, Outcome: OutcomeCompleted}}
	for _, sub := range c.Tasks.Subtasks(taskID) {
		if sub.CompletionType.Schedulable() {
			batch = append(batch, Completion{TaskID: sub.ID, Day: day, Outcome: OutcomeCompleted})
		}
	}
	results, err := c.Completions.CreateBatch(ctx, batch)
	if err != nil {
		return results, err
	}
	if c.grace != nil {
		for _, r := range results {
			if r.Err == nil {
				c.grace.Arm(r.Key)
			}
		}
	}
	return results, nil
}

// =============================================================================
// OFF-SCHEDULE ENTRIES
// =============================================================================

// CompleteOffSchedule records a completion on a day the task's rule
// does not select. The completion write and the additional-date append
// land in one transaction; afterwards the evaluator reports the day as
// scheduled. Calling it for an already-scheduled day degrades to a
// plain create.
func (c *Coordinator) CompleteOffSchedule(ctx context.Context, taskID TaskID, day Day, patch CompletionPatch) error {
	t := c.Tasks.Get(taskID)
	if t == nil {
		return ErrTaskNotFound
	}
	if t.Recurrence == nil {
		return &InvalidOperationError{
			Op: "off-schedule completion", TaskID: taskID, Day: day,
			Reason: "task has no recurrence to attach the day to",
		}
	}

	record := Completion{TaskID: taskID, Day: day, Outcome: OutcomeCompleted}
	patch.Apply(&record)

	key := Key{TaskID: taskID, Day: day}
	return c.flight.Do(key, func() error {
		wasScheduled := c.eval.IsScheduled(t, day)
		err := c.Completions.WithTx(ctx, func(s CompletionStore) error {
			return s.Create(ctx, record)
		})
		if err != nil {
			return err
		}
		if !wasScheduled {
			t.Recurrence.AddAdditionalDate(day)
		}
		if c.grace != nil {
			c.grace.Arm(key)
		}
		return nil
	})
}

// RemoveOffSchedule deletes an off-schedule completion and removes the
// matching additional date, so the evaluator reverts to the base rule.
func (c *Coordinator) RemoveOffSchedule(ctx context.Context, taskID TaskID, day Day) error {
	t := c.Tasks.Get(taskID)
	if t == nil {
		return ErrTaskNotFound
	}
	key := Key{TaskID: taskID, Day: day}
	return c.flight.Do(key, func() error {
		err := c.Completions.WithTx(ctx, func(s CompletionStore) error {
			return s.Delete(ctx, key)
		})
		if err != nil {
			return err
		}
		if t.Recurrence != nil {
			t.Recurrence.RemoveAdditionalDate(day)
		}
		if c.grace != nil {
			c.grace.Cancel(key)
		}
		return nil
	})
}

// =============================================================================
// RECONCILE - Self-heal the completion/additional-date pair
// =============================================================================

// Reconcile repairs a task whose off-schedule pair half-failed at some
// point: a completion on a day the rule does not select re-adds the
// missing additional date, and an additional date with neither a
// record nor a rule match is dropped. Presence of the record is
// authoritative. Returns whether the task's rule was changed.
func (c *Coordinator) Reconcile(ctx context.Context, taskID TaskID, from, to Day) (bool, error) {
	t := c.Tasks.Get(taskID)
	if t == nil {
		return false, ErrTaskNotFound
	}
	if t.Recurrence == nil {
		return false, nil
	}

	changed := false

	records, err := c.Completions.InRange(ctx, taskID, from, to)
	if err != nil {
		return false, err
	}
	base := *t.Recurrence
	base.AdditionalDates = nil
	for _, rec := range records {
		if !base.OccursOn(rec.Day) && t.Recurrence.AddAdditionalDate(rec.Day) {
			log.Printf("reconcile: task %s re-added additional date %s from orphaned completion", taskID, rec.Day)
			changed = true
		}
	}

	kept := t.Recurrence.AdditionalDates[:0]
	for _, d := range t.Recurrence.AdditionalDates {
		if d.Before(from) || d.After(to) {
			kept = append(kept, d)
			continue
		}
		has, err := c.Completions.HasRecordOnDay(ctx, taskID, d)
		if err != nil {
			return changed, err
		}
		if has || base.OccursOn(d) {
			kept = append(kept, d)
			continue
		}
		log.Printf("reconcile: task %s dropped dangling additional date %s", taskID, d)
		changed = true
	}
	t.Recurrence.AdditionalDates = kept

	return changed, nil
}
