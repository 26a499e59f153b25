package engine_test

import (
	"testing"
	"time"

	"github.com/tally/schedule-engine/engine"
)

func graceKey(id string, d engine.Day) engine.Key {
	return engine.Key{TaskID: engine.TaskID(id), Day: d}
}

func TestGraceSet_ArmExpireCancel(t *testing.T) {
	// GIVEN: A grace set with a controllable clock
	g := engine.NewGraceSet(2 * time.Second)
	now := time.Date(2024, time.June, 4, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	key := graceKey("t1", day(2024, time.June, 4))

	if g.Active(key) {
		t.Error("unarmed key must not be active")
	}

	// WHEN: Arming and staying inside the window
	g.Arm(key)
	now = now.Add(1500 * time.Millisecond)
	if !g.Active(key) {
		t.Error("key should be active inside the window")
	}

	// WHEN: The window lapses
	now = now.Add(time.Second)
	if g.Active(key) {
		t.Error("key should expire after the window")
	}

	// WHEN: Arming again and canceling early
	g.Arm(key)
	g.Cancel(key)
	if g.Active(key) {
		t.Error("cancel must clear the override immediately")
	}
}

func TestGraceSet_RearmRestartsTheWindow(t *testing.T) {
	g := engine.NewGraceSet(2 * time.Second)
	now := time.Date(2024, time.June, 4, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	key := graceKey("t1", day(2024, time.June, 4))

	g.Arm(key)
	now = now.Add(1800 * time.Millisecond)
	g.Arm(key)
	now = now.Add(1800 * time.Millisecond)

	// 3.6s after the first arm, but only 1.8s after the second.
	if !g.Active(key) {
		t.Error("re-arming should restart the window")
	}
}

func TestGraceSet_ActiveForTask(t *testing.T) {
	// GIVEN: One task armed on yesterday's key, another not armed at all
	g := engine.NewGraceSet(2 * time.Second)
	now := time.Date(2024, time.June, 4, 12, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })

	g.Arm(graceKey("t1", day(2024, time.June, 3)))

	// THEN: Task-level lookup matches regardless of the day
	if !g.ActiveForTask("t1") {
		t.Error("t1 has an active window on some day")
	}
	if g.ActiveForTask("t2") {
		t.Error("t2 has no window")
	}

	// AND: Expiry applies to the task-level lookup too
	now = now.Add(3 * time.Second)
	if g.ActiveForTask("t1") {
		t.Error("t1's window has lapsed")
	}
}
