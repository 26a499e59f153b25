/*
grace.go - Time-boxed visibility overrides for just-completed tasks

PURPOSE:
  When a user completes a task, the derivations would hide it from its
  originating list immediately. That reads as a jarring disappearance,
  so the task stays visible for a short fixed window after the
  completion event. The window is an in-memory override set, never a
  change to persisted state, and it is cancelable: un-completing within
  the window clears the override at once instead of waiting out the
  timer.
*/
package engine

import (
	"sync"
	"time"
)

// DefaultGraceWindow is how long a just-completed task stays visible.
const DefaultGraceWindow = 2 * time.Second

// GraceSet tracks which (task, day) keys are inside their grace window.
// Safe for concurrent use. The zero value is not usable; call
// NewGraceSet.
type GraceSet struct {
	mu      sync.Mutex
	until   map[Key]time.Time
	window  time.Duration
	nowFunc func() time.Time
}

func NewGraceSet(window time.Duration) *GraceSet {
	if window <= 0 {
		window = DefaultGraceWindow
	}
	return &GraceSet{
		until:   make(map[Key]time.Time),
		window:  window,
		nowFunc: time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (g *GraceSet) SetClock(now func() time.Time) { g.nowFunc = now }

// Arm starts (or restarts) the grace window for a key.
func (g *GraceSet) Arm(key Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until[key] = g.nowFunc().Add(g.window)
}

// Cancel clears the override immediately, e.g. when the user
// un-completes within the window.
func (g *GraceSet) Cancel(key Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.until, key)
}

// Active reports whether the key is inside its grace window. Expired
// entries are pruned as they are observed.
func (g *GraceSet) Active(key Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline, ok := g.until[key]
	if !ok {
		return false
	}
	if g.nowFunc().After(deadline) {
		delete(g.until, key)
		return false
	}
	return true
}

// ActiveForTask reports whether any day of the task is inside a grace
// window. Backlog retention uses this for one-shot tasks whose
// disqualifying completion may be on a different day than today.
func (g *GraceSet) ActiveForTask(taskID TaskID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFunc()
	for key, deadline := range g.until {
		if key.TaskID != taskID {
			continue
		}
		if now.After(deadline) {
			delete(g.until, key)
			continue
		}
		return true
	}
	return false
}
