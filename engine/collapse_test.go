package engine_test

import (
	"testing"
	"time"

	"github.com/tally/schedule-engine/engine"
)

// Debounce 0 makes collapse decisions synchronous for these tests.
func newController() *engine.CollapseController {
	return engine.NewCollapseController(0)
}

func TestCollapse_OnlyWhenHideCompletedAndEmpty(t *testing.T) {
	cc := newController()
	sec := engine.SectionID("s1")

	// GIVEN: Hide-completed off
	// WHEN: The section empties
	cc.OnCompletionEvent(sec, 0)
	// THEN: Nothing happens
	if cc.Collapsed(sec) {
		t.Error("must not collapse while hide-completed is off")
	}

	// GIVEN: Hide-completed on but tasks still visible
	cc.SetHideCompleted(true)
	cc.OnCompletionEvent(sec, 2)
	if cc.Collapsed(sec) {
		t.Error("must not collapse while tasks are visible")
	}

	// WHEN: The last visible task completes
	cc.OnCompletionEvent(sec, 0)
	// THEN: The section auto-collapses
	if !cc.Collapsed(sec) {
		t.Error("expected auto-collapse")
	}
	if cc.State(sec) != engine.SectionAutoCollapsed {
		t.Errorf("expected auto_collapsed, got %s", cc.State(sec))
	}
}

func TestCollapse_ManualReexpandPinsTheSection(t *testing.T) {
	// GIVEN: An auto-collapsed section
	cc := newController()
	sec := engine.SectionID("s1")
	cc.SetHideCompleted(true)
	cc.OnCompletionEvent(sec, 0)
	if !cc.Collapsed(sec) {
		t.Fatal("precondition: section should be collapsed")
	}

	// WHEN: The user re-expands it and the list empties again
	cc.OnManualToggle(sec)
	cc.OnCompletionEvent(sec, 0)

	// THEN: The section stays open; the user's choice wins
	if cc.Collapsed(sec) {
		t.Error("manually re-expanded section must not auto-collapse again")
	}
	if cc.State(sec) != engine.SectionManuallyReexpanded {
		t.Errorf("expected manually_reexpanded, got %s", cc.State(sec))
	}
}

func TestCollapse_ModeResetRearmsAutoCollapse(t *testing.T) {
	// GIVEN: A section pinned by a manual re-expand
	cc := newController()
	sec := engine.SectionID("s1")
	cc.SetHideCompleted(true)
	cc.OnCompletionEvent(sec, 0)
	cc.OnManualToggle(sec)

	// WHEN: Hide-completed is switched off and on again
	cc.SetHideCompleted(false)
	cc.SetHideCompleted(true)

	// THEN: The pin is gone; auto-collapse works again
	if cc.State(sec) != engine.SectionExpanded {
		t.Errorf("mode reset should clear states, got %s", cc.State(sec))
	}
	cc.OnCompletionEvent(sec, 0)
	if !cc.Collapsed(sec) {
		t.Error("auto-collapse should be re-armed after a mode reset")
	}
}

func TestCollapse_DebounceCancellableByNewVisibleTask(t *testing.T) {
	// GIVEN: A controller with a real debounce
	cc := engine.NewCollapseController(30 * time.Millisecond)
	sec := engine.SectionID("s1")
	cc.SetHideCompleted(true)

	// WHEN: The section empties, then a task reappears before the
	// debounce fires (e.g. an un-complete inside the grace window)
	cc.OnCompletionEvent(sec, 0)
	cc.OnCompletionEvent(sec, 1)
	time.Sleep(60 * time.Millisecond)

	// THEN: The pending collapse was canceled
	if cc.Collapsed(sec) {
		t.Error("reappearing task should cancel the pending collapse")
	}

	// WHEN: The section empties and stays empty past the debounce
	cc.OnCompletionEvent(sec, 0)
	time.Sleep(60 * time.Millisecond)
	if !cc.Collapsed(sec) {
		t.Error("expected collapse after the debounce elapsed")
	}
}

func TestCollapse_SectionsAreIndependent(t *testing.T) {
	cc := newController()
	cc.SetHideCompleted(true)
	cc.OnCompletionEvent("s1", 0)
	if cc.Collapsed("s2") {
		t.Error("collapsing one section must not affect another")
	}
	if !cc.Collapsed("s1") {
		t.Error("s1 should be collapsed")
	}
}
