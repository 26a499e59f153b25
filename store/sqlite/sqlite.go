/*
Package sqlite provides the SQLite-backed implementation of the
engine's storage interfaces.

PURPOSE:
  Durable persistence for tasks, sections, and completion records. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  engine.CompletionStore:   (task, day)-keyed completion records
  engine.TxCompletionStore: transactional grouping for paired writes

KEY TABLES:
  tasks:       One row per task, subtasks included (parent_id reference,
               never embedded). The recurrence rule is stored as its
               wire-format JSON document.
  sections:    Named, ordered groupings
  completions: One row per (task, day); the PRIMARY KEY enforces the
               engine's core uniqueness invariant at the database level

DAY ENCODING:
  Days are stored as "YYYY-MM-DD" text. The engine normalizes every
  day to UTC midnight before it reaches this layer, so lexicographic
  comparison in SQL matches chronological comparison.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode (multiple
  readers, single writer, better crash recovery).

USAGE:
  store, err := sqlite.New("./data/tracker.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/completion.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/tally/schedule-engine/engine"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sort_order TEXT NOT NULL DEFAULT '0',
		expanded BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		section_id TEXT,
		name TEXT NOT NULL,
		recurrence_json TEXT,
		time_of_day TEXT,
		status TEXT NOT NULL DEFAULT 'todo',
		completion_type TEXT NOT NULL DEFAULT 'checkbox',
		sort_order TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_section ON tasks(section_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id) WHERE parent_id IS NOT NULL;

	-- CRITICAL: at most one completion per (task, day). The engine's
	-- duplicate-key error maps straight off this constraint.
	CREATE TABLE IF NOT EXISTS completions (
		task_id TEXT NOT NULL,
		day TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		actual_value TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (task_id, day)
	);

	-- Backlog exclusion: "has any definite outcome ever"
	CREATE INDEX IF NOT EXISTS idx_completions_task_outcome ON completions(task_id, outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COMPLETION STORE (engine.CompletionStore interface)
// =============================================================================

func (s *Store) Create(ctx context.Context, c engine.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCompletion(ctx, s.db, c)
}

func createCompletion(ctx context.Context, db dbtx, c engine.Completion) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
		INSERT INTO completions
		(task_id, day, outcome, note, actual_value, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TaskID, c.Day.String(), c.Outcome, c.Note, c.ActualValue,
		nullTime(c.StartedAt), nullTime(c.CompletedAt), now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.DuplicateCompletionError{TaskID: c.TaskID, Day: c.Day}
		}
		return fmt.Errorf("failed to create completion: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key engine.Key, patch engine.CompletionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCompletion(ctx, s.db, key, patch)
}

func updateCompletion(ctx context.Context, db dbtx, key engine.Key, patch engine.CompletionPatch) error {
	existing, err := getCompletion(ctx, db, key)
	if err != nil {
		return err
	}
	patch.Apply(existing)

	_, err = db.ExecContext(ctx, `
		UPDATE completions
		SET outcome = ?, note = ?, actual_value = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE task_id = ? AND day = ?`,
		existing.Outcome, existing.Note, existing.ActualValue,
		nullTime(existing.StartedAt), nullTime(existing.CompletedAt),
		time.Now().UTC().Format(time.RFC3339),
		key.TaskID, key.Day.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update completion: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key engine.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCompletion(ctx, s.db, key)
}

func deleteCompletion(ctx context.Context, db dbtx, key engine.Key) error {
	// Deleting an absent mark is a no-op by contract.
	_, err := db.ExecContext(ctx,
		`DELETE FROM completions WHERE task_id = ? AND day = ?`,
		key.TaskID, key.Day.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete completion: %w", err)
	}
	return nil
}

// CreateBatch applies each create independently; one conflicting key
// does not roll back its siblings.
func (s *Store) CreateBatch(ctx context.Context, cs []engine.Completion) ([]engine.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]engine.BatchResult, len(cs))
	for i, c := range cs {
		results[i] = engine.BatchResult{Key: c.Key(), Err: createCompletion(ctx, s.db, c)}
	}
	return results, nil
}

func (s *Store) DeleteBatch(ctx context.Context, keys []engine.Key) ([]engine.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]engine.BatchResult, len(keys))
	for i, k := range keys {
		results[i] = engine.BatchResult{Key: k, Err: deleteCompletion(ctx, s.db, k)}
	}
	return results, nil
}

func (s *Store) Get(ctx context.Context, key engine.Key) (*engine.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCompletion(ctx, s.db, key)
}

func getCompletion(ctx context.Context, db dbtx, key engine.Key) (*engine.Completion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT task_id, day, outcome, note, actual_value, started_at, completed_at
		FROM completions WHERE task_id = ? AND day = ?`,
		key.TaskID, key.Day.String(),
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrCompletionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return c, nil
}

func (s *Store) HasRecordOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasRecordOnDay(ctx, s.db, taskID, day)
}

func hasRecordOnDay(ctx context.Context, db dbtx, taskID engine.TaskID, day engine.Day) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE task_id = ? AND day = ?`,
		taskID, day.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return n > 0, nil
}

func (s *Store) OutcomeOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (engine.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return outcomeOnDay(ctx, s.db, taskID, day)
}

func outcomeOnDay(ctx context.Context, db dbtx, taskID engine.TaskID, day engine.Day) (engine.Outcome, error) {
	var outcome string
	err := db.QueryRowContext(ctx,
		`SELECT outcome FROM completions WHERE task_id = ? AND day = ?`,
		taskID, day.String(),
	).Scan(&outcome)
	if err == sql.ErrNoRows {
		return engine.OutcomeNone, nil
	}
	if err != nil {
		return engine.OutcomeNone, fmt.Errorf("failed to read outcome: %w", err)
	}
	return engine.Outcome(outcome), nil
}

func (s *Store) IsCompletedOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	outcome, err := s.OutcomeOnDay(ctx, taskID, day)
	return outcome == engine.OutcomeCompleted, err
}

func (s *Store) HasAnyCompletion(ctx context.Context, taskID engine.TaskID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE task_id = ? AND outcome != ''`,
		taskID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check completions: %w", err)
	}
	return n > 0, nil
}

func (s *Store) InRange(ctx context.Context, taskID engine.TaskID, from, to engine.Day) ([]engine.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return completionsInRange(ctx, s.db, taskID, from, to)
}

func completionsInRange(ctx context.Context, db dbtx, taskID engine.TaskID, from, to engine.Day) ([]engine.Completion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT task_id, day, outcome, note, actual_value, started_at, completed_at
		FROM completions
		WHERE task_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC`,
		taskID, from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var out []engine.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS (engine.TxCompletionStore interface)
// =============================================================================

// WithTx executes fn against a transactional view. If fn returns an
// error, none of its writes are kept.
func (s *Store) WithTx(ctx context.Context, fn func(engine.CompletionStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txView{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txView adapts a *sql.Tx to the CompletionStore interface. No
// re-locking; the store's lock is held for the whole transaction.
type txView struct {
	tx *sql.Tx
}

func (tv *txView) Create(ctx context.Context, c engine.Completion) error {
	return createCompletion(ctx, tv.tx, c)
}

func (tv *txView) Update(ctx context.Context, key engine.Key, patch engine.CompletionPatch) error {
	return updateCompletion(ctx, tv.tx, key, patch)
}

func (tv *txView) Delete(ctx context.Context, key engine.Key) error {
	return deleteCompletion(ctx, tv.tx, key)
}

func (tv *txView) CreateBatch(ctx context.Context, cs []engine.Completion) ([]engine.BatchResult, error) {
	results := make([]engine.BatchResult, len(cs))
	for i, c := range cs {
		results[i] = engine.BatchResult{Key: c.Key(), Err: createCompletion(ctx, tv.tx, c)}
	}
	return results, nil
}

func (tv *txView) DeleteBatch(ctx context.Context, keys []engine.Key) ([]engine.BatchResult, error) {
	results := make([]engine.BatchResult, len(keys))
	for i, k := range keys {
		results[i] = engine.BatchResult{Key: k, Err: deleteCompletion(ctx, tv.tx, k)}
	}
	return results, nil
}

func (tv *txView) Get(ctx context.Context, key engine.Key) (*engine.Completion, error) {
	return getCompletion(ctx, tv.tx, key)
}

func (tv *txView) HasRecordOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	return hasRecordOnDay(ctx, tv.tx, taskID, day)
}

func (tv *txView) OutcomeOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (engine.Outcome, error) {
	return outcomeOnDay(ctx, tv.tx, taskID, day)
}

func (tv *txView) IsCompletedOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	outcome, err := outcomeOnDay(ctx, tv.tx, taskID, day)
	return outcome == engine.OutcomeCompleted, err
}

func (tv *txView) HasAnyCompletion(ctx context.Context, taskID engine.TaskID) (bool, error) {
	var n int
	err := tv.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE task_id = ? AND outcome != ''`,
		taskID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check completions: %w", err)
	}
	return n > 0, nil
}

func (tv *txView) InRange(ctx context.Context, taskID engine.TaskID, from, to engine.Day) ([]engine.Completion, error) {
	return completionsInRange(ctx, tv.tx, taskID, from, to)
}

// =============================================================================
// TASKS
// =============================================================================

// SaveTask inserts or replaces a task row. The recurrence rule is
// stored as its wire-format JSON.
func (s *Store) SaveTask(ctx context.Context, t *engine.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recurrenceJSON, err := engine.MarshalRecurrenceJSON(t.Recurrence)
	if err != nil {
		return fmt.Errorf("failed to encode recurrence: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(id, parent_id, section_id, name, recurrence_json, time_of_day, status, completion_type, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			section_id = excluded.section_id,
			name = excluded.name,
			recurrence_json = excluded.recurrence_json,
			time_of_day = excluded.time_of_day,
			status = excluded.status,
			completion_type = excluded.completion_type,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at`,
		t.ID, nullString(string(t.ParentID)), nullString(string(t.SectionID)),
		t.Name, string(recurrenceJSON), nullString(t.TimeOfDay),
		t.Status, t.CompletionType, t.Order.String(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// SaveTaskRecurrence persists only the task's rule. The off-schedule
// write path calls this right after its completion write; a failure
// here is healed by Coordinator.Reconcile on the next read.
func (s *Store) SaveTaskRecurrence(ctx context.Context, id engine.TaskID, r *engine.Recurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recurrenceJSON, err := engine.MarshalRecurrenceJSON(r)
	if err != nil {
		return fmt.Errorf("failed to encode recurrence: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET recurrence_json = ?, updated_at = ? WHERE id = ?`,
		string(recurrenceJSON), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save recurrence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task row, its subtasks, and its completions.
func (s *Store) DeleteTask(ctx context.Context, id engine.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM completions WHERE task_id = ? OR task_id IN
			(SELECT id FROM tasks WHERE parent_id = ?)`, id, id); err != nil {
		return fmt.Errorf("failed to delete completions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? OR parent_id = ?`, id, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return tx.Commit()
}

// LoadTasks returns every task as a populated TaskSet.
func (s *Store) LoadTasks(ctx context.Context) (*engine.TaskSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, section_id, name, recurrence_json, time_of_day, status, completion_type, sort_order
		FROM tasks ORDER BY parent_id IS NOT NULL, sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	set := engine.NewTaskSet()
	for rows.Next() {
		var (
			t              engine.Task
			parentID       sql.NullString
			sectionID      sql.NullString
			recurrenceJSON sql.NullString
			timeOfDay      sql.NullString
			sortOrder      string
		)
		if err := rows.Scan(&t.ID, &parentID, &sectionID, &t.Name, &recurrenceJSON, &timeOfDay, &t.Status, &t.CompletionType, &sortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.ParentID = engine.TaskID(parentID.String)
		t.SectionID = engine.SectionID(sectionID.String)
		t.TimeOfDay = timeOfDay.String
		if t.Order, err = decimal.NewFromString(sortOrder); err != nil {
			t.Order = decimal.Zero
		}
		if recurrenceJSON.Valid && recurrenceJSON.String != "" && recurrenceJSON.String != "null" {
			r, err := engine.ParseRecurrenceJSON([]byte(recurrenceJSON.String))
			if err != nil {
				// One bad row must not block every other task.
				log.Printf("sqlite: skipping malformed recurrence for task %s: %v", t.ID, err)
			} else {
				t.Recurrence = r
			}
		}
		set.Put(&t)
	}
	return set, rows.Err()
}

// =============================================================================
// SECTIONS
// =============================================================================

func (s *Store) SaveSection(ctx context.Context, sec engine.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, name, sort_order, expanded, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sort_order = excluded.sort_order,
			expanded = excluded.expanded`,
		sec.ID, sec.Name, sec.Order.String(), sec.Expanded,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save section: %w", err)
	}
	return nil
}

func (s *Store) ListSections(ctx context.Context) ([]engine.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sort_order, expanded FROM sections ORDER BY sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []engine.Section
	for rows.Next() {
		var (
			sec       engine.Section
			sortOrder string
		)
		if err := rows.Scan(&sec.ID, &sec.Name, &sortOrder, &sec.Expanded); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if sec.Order, err = decimal.NewFromString(sortOrder); err != nil {
			sec.Order = decimal.Zero
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

func scanCompletion(row scannable) (*engine.Completion, error) {
	var (
		c           engine.Completion
		dayStr      string
		outcome     string
		startedAt   sql.NullString
		completedAt sql.NullString
	)
	if err := row.Scan(&c.TaskID, &dayStr, &outcome, &c.Note, &c.ActualValue, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	day, err := engine.ParseDay(dayStr)
	if err != nil {
		return nil, err
	}
	c.Day = day
	c.Outcome = engine.Outcome(outcome)
	c.StartedAt = parseNullTime(startedAt)
	c.CompletedAt = parseNullTime(completedAt)
	return &c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
