package recur

import (
	"errors"
	"testing"
	"time"

	"taskcal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandStepRules(t *testing.T) {
	start := date(2025, time.March, 1)
	end := date(2025, time.March, 31)

	cases := []struct {
		rule  Rule
		count int
		step  int // days between consecutive occurrences
	}{
		{RuleDaily, 31, 1},
		{RuleEveryOtherDay, 16, 2},
		{RuleWeekly, 5, 7},
		{RuleEveryOtherWeek, 3, 14},
	}

	for _, tc := range cases {
		got, err := Expand(start, end, tc.rule)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.rule, err)
		}
		if len(got) != tc.count {
			t.Errorf("%s: expected %d dates, got %d", tc.rule, tc.count, len(got))
			continue
		}
		if !got[0].Equal(start) {
			t.Errorf("%s: first date is %v, want %v", tc.rule, got[0], start)
		}
		for i := 1; i < len(got); i++ {
			if !got[i].After(got[i-1]) {
				t.Errorf("%s: dates not strictly increasing at %d", tc.rule, i)
			}
			if d := int(got[i].Sub(got[i-1]).Hours() / 24); d != tc.step {
				t.Errorf("%s: step of %d days at %d, want %d", tc.rule, d, i, tc.step)
			}
		}
		if last := got[len(got)-1]; last.After(end) {
			t.Errorf("%s: last date %v exceeds end %v", tc.rule, last, end)
		}
	}
}

func TestExpandEmptyWhenStartAfterEnd(t *testing.T) {
	got, err := Expand(date(2025, time.March, 2), date(2025, time.March, 1), RuleDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty sequence, got %v", got)
	}
}

func TestExpandMonthlyWrapsYear(t *testing.T) {
	got, err := Expand(date(2024, time.November, 15), date(2025, time.February, 28), RuleMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{
		date(2024, time.November, 15),
		date(2024, time.December, 15),
		date(2025, time.January, 15),
		date(2025, time.February, 15),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("date %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestExpandMonthlyMissingDaySignalsError(t *testing.T) {
	// Day 31 stepping into February cannot exist; this is signaled, not
	// clamped and not skipped.
	_, err := Expand(date(2024, time.January, 31), date(2024, time.April, 30), RuleMonthly)
	if !errors.Is(err, ErrInvalidDateArithmetic) {
		t.Fatalf("expected ErrInvalidDateArithmetic, got %v", err)
	}

	// Day 28 always exists, so the same range is fine.
	got, err := Expand(date(2024, time.January, 28), date(2024, time.April, 30), RuleMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected 4 dates, got %v", got)
	}
}

func TestParseRule(t *testing.T) {
	for _, s := range []string{"Daily", "Every Other Day", "Weekly", "Every Other Week", "Monthly"} {
		if _, err := ParseRule(s); err != nil {
			t.Errorf("unexpected error for %q: %v", s, err)
		}
	}
	if _, err := ParseRule("Yearly"); err == nil {
		t.Error("expected error for unknown rule")
	}
}

func TestExpandTaskIndependentCopies(t *testing.T) {
	task := model.Task{
		Name:     "Water plants",
		Category: "Home",
		Status:   model.StatusUnfinished,
		DueTime:  "8:00 AM",
	}

	entries, err := ExpandTask(task, date(2025, time.June, 1), date(2025, time.June, 3), RuleDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	seen := map[string]bool{}
	for i, e := range entries {
		if e.Task.ID == "" {
			t.Errorf("entry %d: missing ID", i)
		}
		if seen[e.Task.ID] {
			t.Errorf("entry %d: ID %s shared between instances", i, e.Task.ID)
		}
		seen[e.Task.ID] = true
		if e.Task.Name != task.Name || e.Task.Category != task.Category ||
			e.Task.Status != task.Status || e.Task.DueTime != task.DueTime {
			t.Errorf("entry %d: fields not copied: %v", i, e.Task)
		}
	}
	if entries[0].DateKey != "2025-06-01" || entries[2].DateKey != "2025-06-03" {
		t.Errorf("unexpected date keys: %v, %v", entries[0].DateKey, entries[2].DateKey)
	}
}
