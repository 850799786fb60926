package notify

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		timeTo   time.Duration
		interval int
		ok       bool
	}{
		{"45 minutes", 45 * time.Minute, 1, true},
		{"exactly 1 hour", time.Hour, 1, true},
		{"5 hours", 5 * time.Hour, 6, true},
		{"exactly 6 hours", 6 * time.Hour, 6, true},
		{"11 hours", 11 * time.Hour, 12, true},
		{"20 hours", 20 * time.Hour, 24, true},
		{"30 hours", 30 * time.Hour, 48, true},
		{"exactly 48 hours", 48 * time.Hour, 48, true},
		{"50 hours", 50 * time.Hour, 0, false},
		{"due now", 0, 0, false},
		{"overdue by 1 hour", -time.Hour, 0, false},
	}

	for _, tc := range cases {
		interval, ok := Classify(tc.timeTo)
		if ok != tc.ok || interval != tc.interval {
			t.Errorf("%s: got (%d, %v), want (%d, %v)", tc.name, interval, ok, tc.interval, tc.ok)
		}
	}
}

// snapshotFor builds a one-task store snapshot with the task due at dueAt.
func snapshotFor(name string, dueAt time.Time) map[string][]model.Task {
	return map[string][]model.Task{
		model.FormatDateKey(dueAt): {{
			ID:       model.NewID(),
			Name:     name,
			Category: "General",
			Status:   model.StatusUnfinished,
			DueTime:  dueAt.Format(model.ClockLayout),
		}},
	}
}

func TestCheckFiresOnceThenSuppresses(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	tasks := snapshotFor("Essay", now.Add(5*time.Hour))

	rems := n.Check(now, tasks)
	if len(rems) != 1 {
		t.Fatalf("expected one reminder, got %v", rems)
	}
	if rems[0].Interval != 6 {
		t.Errorf("expected interval 6, got %d", rems[0].Interval)
	}

	// One hour later the task still classifies at 6, but only 1h elapsed
	// since the last notification: suppressed.
	later := now.Add(time.Hour)
	if rems := n.Check(later, tasks); len(rems) != 0 {
		t.Errorf("expected suppression, got %v", rems)
	}
}

func TestCheckRefiresWhenWindowElapsed(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tasks := snapshotFor("Deploy", now.Add(30*time.Hour))

	// 30h out classifies at 48.
	rems := n.Check(now, tasks)
	if len(rems) != 1 || rems[0].Interval != 48 {
		t.Fatalf("expected one interval-48 reminder, got %v", rems)
	}

	// 19h later the task is 11h out (interval 12) and 19h >= 12h have
	// elapsed since the last firing: a new reminder fires even though the
	// 48h window is nowhere near elapsed.
	at19 := now.Add(19 * time.Hour)
	rems = n.Check(at19, tasks)
	if len(rems) != 1 || rems[0].Interval != 12 {
		t.Fatalf("expected one interval-12 reminder, got %v", rems)
	}

	// Another hour later it is still interval 12 with only 1h elapsed.
	if rems := n.Check(now.Add(20*time.Hour), tasks); len(rems) != 0 {
		t.Errorf("expected suppression, got %v", rems)
	}
}

func TestCheckDeduplicatesByName(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	// Two tasks named identically on different dates collide in the
	// notification log: only one reminder fires per cycle.
	tasks := snapshotFor("Standup", now.Add(5*time.Hour))
	other := snapshotFor("Standup", now.Add(26*time.Hour))
	for k, v := range other {
		tasks[k] = append(tasks[k], v...)
	}

	if rems := n.Check(now, tasks); len(rems) != 1 {
		t.Errorf("expected one reminder for colliding names, got %v", rems)
	}
}

// countingSender records deliveries and is safe for concurrent use.
type countingSender struct {
	mu sync.Mutex
	n  int
}

func (c *countingSender) Notify(title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Sweeps can overlap when one cycle outlasts the schedule period; the
// notifier state must stay consistent and de-duplication must still hold
// under that overlap. Run with -race.
func TestConcurrentSweepsFireOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	due := time.Now().UTC().Add(5 * time.Hour)
	task := model.Task{
		Name: "Busy", Category: "General",
		Status: model.StatusUnfinished, DueTime: due.Format(model.ClockLayout),
	}
	if _, err := st.Add(model.FormatDateKey(due), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sender := &countingSender{}
	r := NewRunner(path, "@every 30s", time.UTC, sender)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Sweep()
		}()
	}
	wg.Wait()

	if got := sender.count(); got != 1 {
		t.Errorf("expected exactly one notification across concurrent sweeps, got %d", got)
	}
}

func TestCheckSkipsUnresolvableDueTime(t *testing.T) {
	n := New(time.UTC)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	tasks := map[string][]model.Task{
		"2025-05-01": {{
			ID:       model.NewID(),
			Name:     "Broken",
			Category: "General",
			Status:   model.StatusUnfinished,
			DueTime:  "half past nine",
		}},
	}

	if rems := n.Check(now, tasks); len(rems) != 0 {
		t.Errorf("expected no reminders, got %v", rems)
	}
}
