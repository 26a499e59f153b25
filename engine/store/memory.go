// Package store provides CompletionStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tally/schedule-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[engine.Key]engine.Completion
}

func NewMemory() *Memory {
	return &Memory{records: make(map[engine.Key]engine.Completion)}
}

func (m *Memory) Create(_ context.Context, c engine.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(c)
}

func (m *Memory) createLocked(c engine.Completion) error {
	k := c.Key()
	if _, exists := m.records[k]; exists {
		return &engine.DuplicateCompletionError{TaskID: k.TaskID, Day: k.Day}
	}
	m.records[k] = c
	return nil
}

func (m *Memory) Update(_ context.Context, key engine.Key, patch engine.CompletionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(key, patch)
}

func (m *Memory) updateLocked(key engine.Key, patch engine.CompletionPatch) error {
	c, exists := m.records[key]
	if !exists {
		return engine.ErrCompletionNotFound
	}
	patch.Apply(&c)
	m.records[key] = c
	return nil
}

func (m *Memory) Delete(_ context.Context, key engine.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// CreateBatch applies each create independently: one bad key does not
// roll back its siblings.
func (m *Memory) CreateBatch(_ context.Context, cs []engine.Completion) ([]engine.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]engine.BatchResult, len(cs))
	for i, c := range cs {
		results[i] = engine.BatchResult{Key: c.Key(), Err: m.createLocked(c)}
	}
	return results, nil
}

func (m *Memory) DeleteBatch(_ context.Context, keys []engine.Key) ([]engine.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]engine.BatchResult, len(keys))
	for i, k := range keys {
		delete(m.records, k)
		results[i] = engine.BatchResult{Key: k}
	}
	return results, nil
}

func (m *Memory) Get(_ context.Context, key engine.Key) (*engine.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.records[key]
	if !exists {
		return nil, engine.ErrCompletionNotFound
	}
	out := c
	return &out, nil
}

func (m *Memory) HasRecordOnDay(_ context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.records[engine.Key{TaskID: taskID, Day: day}]
	return exists, nil
}

func (m *Memory) OutcomeOnDay(_ context.Context, taskID engine.TaskID, day engine.Day) (engine.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, exists := m.records[engine.Key{TaskID: taskID, Day: day}]
	if !exists {
		return engine.OutcomeNone, nil
	}
	return c.Outcome, nil
}

func (m *Memory) IsCompletedOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	outcome, err := m.OutcomeOnDay(ctx, taskID, day)
	return outcome == engine.OutcomeCompleted, err
}

func (m *Memory) HasAnyCompletion(_ context.Context, taskID engine.TaskID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, c := range m.records {
		if k.TaskID == taskID && c.Outcome != engine.OutcomeNone {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InRange(_ context.Context, taskID engine.TaskID, from, to engine.Day) ([]engine.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Completion
	for k, c := range m.records {
		if k.TaskID == taskID && from.BeforeOrEqual(k.Day) && k.Day.BeforeOrEqual(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot + rollback on error.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.CompletionStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := make(map[engine.Key]engine.Completion, len(tm.records))
	for k, v := range tm.records {
		snapshot[k] = v
	}

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.records = snapshot
		return err
	}
	return nil
}

// txMemoryView writes through to the parent without re-locking; the
// parent's lock is held for the whole transaction.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Create(_ context.Context, c engine.Completion) error {
	return tv.parent.createLocked(c)
}

func (tv *txMemoryView) Update(_ context.Context, key engine.Key, patch engine.CompletionPatch) error {
	return tv.parent.updateLocked(key, patch)
}

func (tv *txMemoryView) Delete(_ context.Context, key engine.Key) error {
	delete(tv.parent.records, key)
	return nil
}

func (tv *txMemoryView) CreateBatch(_ context.Context, cs []engine.Completion) ([]engine.BatchResult, error) {
	results := make([]engine.BatchResult, len(cs))
	for i, c := range cs {
		results[i] = engine.BatchResult{Key: c.Key(), Err: tv.parent.createLocked(c)}
	}
	return results, nil
}

func (tv *txMemoryView) DeleteBatch(_ context.Context, keys []engine.Key) ([]engine.BatchResult, error) {
	results := make([]engine.BatchResult, len(keys))
	for i, k := range keys {
		delete(tv.parent.records, k)
		results[i] = engine.BatchResult{Key: k}
	}
	return results, nil
}

func (tv *txMemoryView) Get(_ context.Context, key engine.Key) (*engine.Completion, error) {
	c, exists := tv.parent.records[key]
	if !exists {
		return nil, engine.ErrCompletionNotFound
	}
	out := c
	return &out, nil
}

func (tv *txMemoryView) HasRecordOnDay(_ context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	_, exists := tv.parent.records[engine.Key{TaskID: taskID, Day: day}]
	return exists, nil
}

func (tv *txMemoryView) OutcomeOnDay(_ context.Context, taskID engine.TaskID, day engine.Day) (engine.Outcome, error) {
	c, exists := tv.parent.records[engine.Key{TaskID: taskID, Day: day}]
	if !exists {
		return engine.OutcomeNone, nil
	}
	return c.Outcome, nil
}

func (tv *txMemoryView) IsCompletedOnDay(ctx context.Context, taskID engine.TaskID, day engine.Day) (bool, error) {
	outcome, err := tv.OutcomeOnDay(ctx, taskID, day)
	return outcome == engine.OutcomeCompleted, err
}

func (tv *txMemoryView) HasAnyCompletion(_ context.Context, taskID engine.TaskID) (bool, error) {
	for k, c := range tv.parent.records {
		if k.TaskID == taskID && c.Outcome != engine.OutcomeNone {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txMemoryView) InRange(_ context.Context, taskID engine.TaskID, from, to engine.Day) ([]engine.Completion, error) {
	var out []engine.Completion
	for k, c := range tv.parent.records {
		if k.TaskID == taskID && from.BeforeOrEqual(k.Day) && k.Day.BeforeOrEqual(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
