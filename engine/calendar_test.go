package engine_test

import (
	"testing"
	"time"

	"github.com/tally/schedule-engine/engine"
)

func TestDayOf_NormalizesToUTCMidnight(t *testing.T) {
	// GIVEN: A late-evening instant in a non-UTC zone
	loc := time.FixedZone("UTC+9", 9*3600)
	instant := time.Date(2024, time.March, 15, 23, 45, 0, 0, loc)

	// WHEN: Normalizing it to a Day
	day := engine.DayOf(instant)

	// THEN: The wall-clock calendar date is kept and re-anchored at UTC midnight
	if day.Year() != 2024 || day.Month() != time.March || day.DayOfMonth() != 15 {
		t.Errorf("expected 2024-03-15, got %s", day)
	}
	if !day.Time().Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected UTC midnight, got %v", day.Time())
	}
}

func TestDay_EqualityAcrossConstructions(t *testing.T) {
	// GIVEN: The same calendar day reached through different constructors
	a := engine.NewDay(2024, time.June, 2)
	b := engine.DayOf(time.Date(2024, time.June, 2, 18, 30, 0, 0, time.UTC))
	c, err := engine.ParseDay("2024-06-02")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}

	// THEN: All three compare equal and collapse to one map key
	if !a.Equal(b) || !a.Equal(c) {
		t.Errorf("expected equal days, got %s, %s, %s", a, b, c)
	}
	seen := map[engine.Day]bool{a: true, b: true, c: true}
	if len(seen) != 1 {
		t.Errorf("expected one map key, got %d", len(seen))
	}
}

func TestParseDay_AcceptsTimestamps(t *testing.T) {
	// GIVEN: An ISO timestamp rather than a bare date
	day, err := engine.ParseDay("2024-06-02T00:00:00Z")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if !day.Equal(engine.NewDay(2024, time.June, 2)) {
		t.Errorf("expected 2024-06-02, got %s", day)
	}

	// AND: Garbage is rejected
	if _, err := engine.ParseDay("yesterday"); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestDay_OrdinalWeek(t *testing.T) {
	cases := []struct {
		day  engine.Day
		want int
	}{
		{engine.NewDay(2024, time.June, 1), 1},
		{engine.NewDay(2024, time.June, 7), 1},
		{engine.NewDay(2024, time.June, 8), 2},
		{engine.NewDay(2024, time.June, 21), 3},
		{engine.NewDay(2024, time.June, 29), 5},
	}
	for _, tc := range cases {
		if got := tc.day.OrdinalWeek(); got != tc.want {
			t.Errorf("%s: expected ordinal week %d, got %d", tc.day, tc.want, got)
		}
	}
}

func TestDay_IsLastWeekdayInMonth(t *testing.T) {
	// GIVEN: June 2024, where the last Friday is the 28th
	lastFriday := engine.NewDay(2024, time.June, 28)
	earlierFriday := engine.NewDay(2024, time.June, 21)

	if !lastFriday.IsLastWeekdayInMonth() {
		t.Errorf("%s should be the last Friday of its month", lastFriday)
	}
	if earlierFriday.IsLastWeekdayInMonth() {
		t.Errorf("%s is not the last Friday of its month", earlierFriday)
	}
}

func TestDaysBetween(t *testing.T) {
	a := engine.NewDay(2024, time.January, 1)
	b := engine.NewDay(2024, time.March, 1)
	if got := engine.DaysBetween(a, b); got != 60 {
		t.Errorf("expected 60 days (2024 is a leap year), got %d", got)
	}
	if got := engine.DaysBetween(b, a); got != -60 {
		t.Errorf("expected -60 days, got %d", got)
	}
}

func TestMonthsBetween_CountsBoundariesNotDays(t *testing.T) {
	// Jan 31 to Feb 1 crosses one month boundary.
	a := engine.NewDay(2024, time.January, 31)
	b := engine.NewDay(2024, time.February, 1)
	if got := engine.MonthsBetween(a, b); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := engine.MonthsBetween(engine.NewDay(2023, time.November, 5), engine.NewDay(2024, time.February, 5)); got != 3 {
		t.Errorf("expected 3 across the year boundary, got %d", got)
	}
}

func TestRangeDays_Inclusive(t *testing.T) {
	from := engine.NewDay(2024, time.June, 1)
	to := engine.NewDay(2024, time.June, 7)
	days := engine.RangeDays(from, to)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	if !days[0].Equal(from) || !days[6].Equal(to) {
		t.Errorf("range endpoints wrong: %s .. %s", days[0], days[6])
	}
}

func TestDay_JSONRoundTrip(t *testing.T) {
	day := engine.NewDay(2024, time.June, 2)
	b, err := day.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `"2024-06-02T00:00:00Z"` {
		t.Errorf("unexpected encoding: %s", b)
	}
	var back engine.Day
	if err := back.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !back.Equal(day) {
		t.Errorf("round trip lost the day: %s != %s", back, day)
	}
}
