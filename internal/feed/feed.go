// Package feed exports the task store as an iCalendar VTODO feed so
// external calendar clients can subscribe to it read-only.
package feed

import (
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

const productID = "-//taskcal//Task Calendar//EN"

// Serialize renders the full task mapping as an iCalendar document. Due
// times are resolved in loc. Tasks with unresolvable due times are logged
// and left out of the feed rather than aborting the whole export.
func Serialize(tasks map[string][]model.Task, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ics.NewCalendar()
	cal.SetProductId(productID)

	// Walk buckets in date order so the output is stable across requests.
	keys := make([]string, 0, len(tasks))
	for key := range tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, t := range tasks[key] {
			dueAt, err := t.DueAt(key, loc)
			if err != nil {
				appLog.Warn("feed: skipping task with unresolvable due time",
					"name", t.Name, "date", key)
				continue
			}

			todo := cal.AddTodo(t.ID)
			todo.SetSummary(t.Name)
			todo.SetProperty(ics.ComponentPropertyDescription, t.Category)
			todo.SetDueAt(dueAt)
			todo.SetPercentComplete(percentComplete(t.Status))
		}
	}

	return cal.Serialize()
}

func percentComplete(s model.Status) int {
	switch s {
	case model.StatusCompleted:
		return 100
	case model.StatusInProgress:
		return 50
	default:
		return 0
	}
}
