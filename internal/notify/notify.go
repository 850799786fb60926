// Package notify decides which tasks have crossed a due-date proximity
// threshold and should fire a desktop reminder, de-duplicating per
// threshold, and runs the periodic background sweep that does so.
package notify

import (
	"sync"
	"time"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// Classify maps a time-to-due into the notification interval gating the
// reminder, smallest window first: (0h,1h] -> 1, (1h,6h] -> 6,
// (6h,12h] -> 12, (12h,24h] -> 24, (24h,48h] -> 48. Anything outside
// (0h,48h], including overdue tasks, yields no interval.
func Classify(timeToDue time.Duration) (int, bool) {
	if timeToDue <= 0 {
		return 0, false
	}
	switch {
	case timeToDue <= 1*time.Hour:
		return 1, true
	case timeToDue <= 6*time.Hour:
		return 6, true
	case timeToDue <= 12*time.Hour:
		return 12, true
	case timeToDue <= 24*time.Hour:
		return 24, true
	case timeToDue <= 48*time.Hour:
		return 48, true
	}
	return 0, false
}

// Reminder is a single notification to be fired.
type Reminder struct {
	Task     model.Task
	DateKey  string
	DueAt    time.Time
	Interval int // hours
}

// Notifier holds the per-task de-duplication state: the last time a
// reminder fired for each task name. The state lives for the process
// lifetime and is never persisted; a restart resets every task to
// unnotified. De-duplication keys on the task name only, so tasks sharing
// a name across different dates share one notification slot. A mutex
// serializes Check so the state survives overlapping sweep cycles.
type Notifier struct {
	loc *time.Location

	mu           sync.Mutex
	lastNotified map[string]time.Time
}

// New creates a Notifier resolving due times in loc (nil means time.Local).
func New(loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.Local
	}
	return &Notifier{
		loc:          loc,
		lastNotified: make(map[string]time.Time),
	}
}

// Check classifies every task in the snapshot against now and returns the
// reminders that are due to fire: tasks never notified before, or whose
// last notification is at least the classified interval old. A selected
// task is recorded as notified at now even if the caller's delivery later
// fails; reminders are fire-and-forget and a flaky sender must not turn
// into a notification flood. Tasks with unresolvable due times are logged
// and skipped, never dropped silently.
func (n *Notifier) Check(now time.Time, tasks map[string][]model.Task) []Reminder {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Reminder

	for dateKey, bucket := range tasks {
		for _, t := range bucket {
			dueAt, err := t.DueAt(dateKey, n.loc)
			if err != nil {
				appLog.Warn("skipping task with unresolvable due time",
					"name", t.Name, "date", dateKey, "due_time", t.DueTime)
				continue
			}

			interval, ok := Classify(dueAt.Sub(now))
			if !ok {
				continue
			}

			last, seen := n.lastNotified[t.Name]
			if seen && now.Sub(last) < time.Duration(interval)*time.Hour {
				continue
			}

			out = append(out, Reminder{
				Task:     t,
				DateKey:  dateKey,
				DueAt:    dueAt,
				Interval: interval,
			})
			n.lastNotified[t.Name] = now
		}
	}

	return out
}
