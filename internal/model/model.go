package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DateKeyLayout is the canonical serialization of a store bucket key.
	DateKeyLayout = "2006-01-02"

	// ClockLayout is the 12-hour due-time format, e.g. "9:30 PM".
	ClockLayout = "3:04 PM"
)

// Status is a task's completion state. The string values are the literal
// labels used in the persisted file.
type Status string

const (
	StatusUnfinished Status = "Unfinished"
	StatusInProgress Status = "Work in Progress"
	StatusCompleted  Status = "Completed"
)

// legacyCompleted is an inconsistent label found in files written by older
// versions. It is normalized to StatusCompleted on load.
const legacyCompleted = "Complete"

// NormalizeStatus validates a persisted status label. It returns the
// canonical status and whether the input was a legacy spelling that had to
// be migrated.
func NormalizeStatus(s string) (Status, bool, error) {
	switch Status(s) {
	case StatusUnfinished, StatusInProgress, StatusCompleted:
		return Status(s), false, nil
	}
	if s == legacyCompleted {
		return StatusCompleted, true, nil
	}
	return "", false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// Task is a single dated to-do item. The date it belongs to is the key of
// the store bucket holding it; the task itself carries no date.
type Task struct {
	// ID is a stable generated identifier. Store operations resolve tasks
	// by ID, never by position within a bucket.
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   Status `json:"status"`
	// DueTime is a 12-hour wall-clock time in ClockLayout form.
	DueTime string `json:"due_time"`
}

// NewID returns a fresh task identifier.
func NewID() string {
	return uuid.NewString()
}

// Validate rejects tasks with empty required fields or malformed time
// values before they reach the store.
func (t Task) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if t.Category == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if _, _, err := NormalizeStatus(string(t.Status)); err != nil {
		return err
	}
	if _, err := ParseClock(t.DueTime); err != nil {
		return err
	}
	return nil
}

// ParseClock parses a 12-hour due time such as "11:05 AM". Only the clock
// fields of the result are meaningful.
func ParseClock(s string) (time.Time, error) {
	c, err := time.Parse(ClockLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "due_time", Reason: fmt.Sprintf("%q is not a valid %s time", s, ClockLayout)}
	}
	return c, nil
}

// ParseDateKey parses a bucket key into midnight of that day in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid %s date", key, DateKeyLayout)}
	}
	return d, nil
}

// FormatDateKey serializes a date into the canonical bucket-key form.
func FormatDateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// DueAt resolves the task's absolute due timestamp on the given date.
func (t Task) DueAt(dateKey string, loc *time.Location) (time.Time, error) {
	day, err := ParseDateKey(dateKey, loc)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(t.DueTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}

// ValidationError reports a rejected user-entry field. The store is left
// untouched whenever one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
