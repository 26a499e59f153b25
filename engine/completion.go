/*
completion.go - Completion records and their store contract

PURPOSE:
  A Completion is the record of what happened for one task on one
  calendar day. The store enforces the core invariant: at most one
  record per (task, day) key. Everything derived - today's checkmarks,
  backlog exclusion, history cells - reads through the query helpers
  defined here.

KEY CONTRACT:
  Create:  fails with ErrDuplicateCompletion if the key exists
  Update:  fails with ErrCompletionNotFound if the key is absent
  Delete:  idempotent; clearing an absent mark is a no-op
  Batches: each item is independent. A failure on one key never rolls
           back the others; callers get a per-item result list. This
           matters for subtask cascade operations.

LIFECYCLE:
  Created when a user marks a day (toggle, outcome picker, off-schedule
  entry), updated in place when fields change, deleted when the mark is
  cleared. A record may exist for a day the rule does not select - the
  off-schedule path in rollover.go keeps the rule's additional dates in
  step with such records.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory, for tests and single-process use
  - store/sqlite:           Durable, unique index backs the key invariant

SEE ALSO:
  - rollover.go: Mutation helpers built on this contract
  - projector.go: Read-side derivations
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the definite result recorded for a day. The empty value
// means the record exists for metadata only (e.g. a note) without a
// definite outcome.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeNotCompleted Outcome = "not_completed"
	OutcomeRolledOver   Outcome = "rolled_over"
	OutcomeNone         Outcome = ""
)

// =============================================================================
// COMPLETION
// =============================================================================

// Completion records what happened for one task on one day.
// (TaskID, Day) is the composite key; Day is always UTC-midnight
// normalized (see calendar.go).
type Completion struct {
	TaskID TaskID
	Day    Day

	Outcome Outcome

	// Free-form payloads for text/text_input capture types.
	Note        string
	ActualValue string

	// Optional duration tracking.
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Key identifies a completion record.
type Key struct {
	TaskID TaskID
	Day    Day
}

func (c *Completion) Key() Key { return Key{TaskID: c.TaskID, Day: c.Day} }

// Duration returns the tracked duration, if both timestamps are set.
func (c *Completion) Duration() (time.Duration, bool) {
	if c.StartedAt == nil || c.CompletedAt == nil {
		return 0, false
	}
	return c.CompletedAt.Sub(*c.StartedAt), true
}

// CompletionPatch carries partial updates. Nil fields are left as-is.
type CompletionPatch struct {
	Outcome     *Outcome
	Note        *string
	ActualValue *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Apply copies the set fields onto c.
func (p CompletionPatch) Apply(c *Completion) {
	if p.Outcome != nil {
		c.Outcome = *p.Outcome
	}
	if p.Note != nil {
		c.Note = *p.Note
	}
	if p.ActualValue != nil {
		c.ActualValue = *p.ActualValue
	}
	if p.StartedAt != nil {
		c.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		c.CompletedAt = p.CompletedAt
	}
}

// =============================================================================
// BATCH RESULTS
// =============================================================================

// BatchResult reports the outcome for one key of a batch operation.
type BatchResult struct {
	Key Key
	Err error
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

// CompletionStore persists completion records keyed by (task, day).
type CompletionStore interface {
	// Create persists a new record. Returns ErrDuplicateCompletion
	// (wrapped in DuplicateCompletionError) if the key already exists.
	Create(ctx context.Context, c Completion) error

	// Update patches an existing record. Returns ErrCompletionNotFound
	// if the key is absent.
	Update(ctx context.Context, key Key, patch CompletionPatch) error

	// Delete removes a record. Absent keys are a no-op, not an error.
	Delete(ctx context.Context, key Key) error

	// CreateBatch applies each create independently and returns one
	// result per input, in input order.
	CreateBatch(ctx context.Context, cs []Completion) ([]BatchResult, error)

	// DeleteBatch applies each delete independently.
	DeleteBatch(ctx context.Context, keys []Key) ([]BatchResult, error)

	// Get returns the record for the key, or ErrCompletionNotFound.
	Get(ctx context.Context, key Key) (*Completion, error)

	// HasRecordOnDay reports whether any record exists for the key.
	HasRecordOnDay(ctx context.Context, taskID TaskID, day Day) (bool, error)

	// OutcomeOnDay returns the recorded outcome for the key, or
	// OutcomeNone when no record exists or the record has no outcome.
	OutcomeOnDay(ctx context.Context, taskID TaskID, day Day) (Outcome, error)

	// IsCompletedOnDay reports whether the key has outcome completed.
	IsCompletedOnDay(ctx context.Context, taskID TaskID, day Day) (bool, error)

	// HasAnyCompletion reports whether the task has a record with a
	// definite outcome on any day, ever. Drives backlog exclusion.
	HasAnyCompletion(ctx context.Context, taskID TaskID) (bool, error)

	// InRange returns the task's records with from <= Day <= to,
	// ordered by day.
	InRange(ctx context.Context, taskID TaskID, from, to Day) ([]Completion, error)
}

// TxCompletionStore adds transactional grouping for writes that must
// land together, such as the off-schedule completion + additional-date
// pair.
type TxCompletionStore interface {
	CompletionStore

	// WithTx executes fn against a transactional view. If fn returns
	// an error, none of its writes are kept.
	WithTx(ctx context.Context, fn func(CompletionStore) error) error
}
