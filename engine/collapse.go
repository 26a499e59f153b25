/*
collapse.go - Auto-collapse policy for sections

PURPOSE:
  When "hide completed" mode is on and the last visible task in a
  section gets completed, the section should fold away - but only
  until the user says otherwise. The policy is a small deterministic
  state machine per section:

    SectionExpanded --(list empties after a completion)--> SectionAutoCollapsed
    any state --(user toggles)--> SectionManuallyReexpanded

  A manually re-expanded section is immune to further auto-collapse
  until "hide completed" is switched off and on again.

  Collapse events are debounced so the grace-window visibility override
  (grace.go) can settle before a section disappears under the user.
*/
package engine

import (
	"sync"
	"time"
)

// CollapseState is the auto-collapse state of one section.
type CollapseState int

const (
	SectionExpanded CollapseState = iota
	SectionAutoCollapsed
	SectionManuallyReexpanded
)

func (s CollapseState) String() string {
	switch s {
	case SectionExpanded:
		return "expanded"
	case SectionAutoCollapsed:
		return "auto_collapsed"
	case SectionManuallyReexpanded:
		return "manually_reexpanded"
	default:
		return "unknown"
	}
}

// DefaultCollapseDebounce delays auto-collapse so the UI can settle
// after a completion event.
const DefaultCollapseDebounce = 300 * time.Millisecond

// CollapseController tracks per-section collapse state. Safe for
// concurrent use.
type CollapseController struct {
	mu            sync.Mutex
	hideCompleted bool
	states        map[SectionID]CollapseState
	pending       map[SectionID]*time.Timer
	debounce      time.Duration
}

func NewCollapseController(debounce time.Duration) *CollapseController {
	if debounce < 0 {
		debounce = DefaultCollapseDebounce
	}
	return &CollapseController{
		states:   make(map[SectionID]CollapseState),
		pending:  make(map[SectionID]*time.Timer),
		debounce: debounce,
	}
}

// State returns the current state for a section.
func (cc *CollapseController) State(id SectionID) CollapseState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.states[id]
}

// SetHideCompleted switches the mode. Turning it off cancels pending
// collapses and resets every section to expanded, which also re-arms
// auto-collapse for manually re-expanded sections.
func (cc *CollapseController) SetHideCompleted(on bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.hideCompleted = on
	if !on {
		for id, timer := range cc.pending {
			timer.Stop()
			delete(cc.pending, id)
		}
		cc.states = make(map[SectionID]CollapseState)
	}
}

// OnCompletionEvent reports that a completion changed the section's
// visible-task count. With zero visible tasks, hide-completed active,
// and no manual override, the section auto-collapses after the
// debounce. A non-empty list cancels any pending collapse.
func (cc *CollapseController) OnCompletionEvent(id SectionID, visibleTasks int) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if timer, ok := cc.pending[id]; ok {
		timer.Stop()
		delete(cc.pending, id)
	}

	if !cc.hideCompleted || visibleTasks > 0 {
		return
	}
	if cc.states[id] != SectionExpanded {
		return
	}

	if cc.debounce == 0 {
		cc.states[id] = SectionAutoCollapsed
		return
	}
	cc.pending[id] = time.AfterFunc(cc.debounce, func() {
		cc.mu.Lock()
		defer cc.mu.Unlock()
		delete(cc.pending, id)
		if cc.hideCompleted && cc.states[id] == SectionExpanded {
			cc.states[id] = SectionAutoCollapsed
		}
	})
}

// OnManualToggle reports an explicit user toggle. It cancels any
// pending collapse and pins the section to the manual state, which
// suppresses auto-collapse until the mode is reset.
func (cc *CollapseController) OnManualToggle(id SectionID) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if timer, ok := cc.pending[id]; ok {
		timer.Stop()
		delete(cc.pending, id)
	}
	cc.states[id] = SectionManuallyReexpanded
}

// Collapsed reports whether the section should currently be hidden.
func (cc *CollapseController) Collapsed(id SectionID) bool {
	return cc.State(id) == SectionAutoCollapsed
}
