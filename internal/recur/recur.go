// Package recur expands a recurrence rule over an inclusive date range into
// the concrete dates on which a repeating task is materialized. Expansion is
// a pure function of its inputs.
package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"taskcal/internal/model"
	"taskcal/internal/store"
)

// ErrInvalidDateArithmetic is returned when a monthly rule lands on a
// day-of-month that does not exist in some month of the range (e.g. the
// 31st stepping into a 30-day month). The condition is signaled, never
// silently skipped.
var ErrInvalidDateArithmetic = errors.New("recur: recurrence produces a non-existent calendar date")

// Rule is a repeat pattern. The string values are the labels offered to the
// presentation layer.
type Rule string

const (
	RuleDaily          Rule = "Daily"
	RuleEveryOtherDay  Rule = "Every Other Day"
	RuleWeekly         Rule = "Weekly"
	RuleEveryOtherWeek Rule = "Every Other Week"
	RuleMonthly        Rule = "Monthly"
)

// ParseRule validates a rule label.
func ParseRule(s string) (Rule, error) {
	switch Rule(s) {
	case RuleDaily, RuleEveryOtherDay, RuleWeekly, RuleEveryOtherWeek, RuleMonthly:
		return Rule(s), nil
	}
	return "", fmt.Errorf("recur: unknown rule %q", s)
}

// Expand returns the dates on which a task recurring per rule occurs,
// inclusive of both endpoints and strictly increasing. An empty sequence is
// returned when start is after end. Only the calendar-date component of the
// inputs is significant.
func Expand(start, end time.Time, rule Rule) ([]time.Time, error) {
	start = midnight(start)
	end = midnight(end)
	if start.After(end) {
		return nil, nil
	}

	if rule == RuleMonthly {
		return expandMonthly(start, end)
	}

	opt := rrule.ROption{Dtstart: start, Until: end}
	switch rule {
	case RuleDaily:
		opt.Freq = rrule.DAILY
		opt.Interval = 1
	case RuleEveryOtherDay:
		opt.Freq = rrule.DAILY
		opt.Interval = 2
	case RuleWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 1
	case RuleEveryOtherWeek:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	default:
		return nil, fmt.Errorf("recur: unknown rule %q", rule)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}
	return r.Between(start, end, true), nil
}

// expandMonthly advances to the same day-of-month in the next calendar
// month, wrapping December into January. An rrule MONTHLY rule would
// silently drop months lacking the start day; that is exactly the failure
// this walk turns into ErrInvalidDateArithmetic instead.
func expandMonthly(start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	cur := start
	for !cur.After(end) {
		out = append(out, cur)
		// time.Date normalizes month 13 to January of the next year; a
		// missing day-of-month spills into the following month and is
		// detected by the day comparison.
		next := time.Date(cur.Year(), cur.Month()+1, start.Day(), 0, 0, 0, 0, cur.Location())
		if next.Day() != start.Day() {
			return nil, fmt.Errorf("%w: no day %d in %s %d",
				ErrInvalidDateArithmetic, start.Day(), cur.Month()+1, cur.Year())
		}
		cur = next
	}
	return out, nil
}

// ExpandTask materializes one independent copy of the task per occurrence
// date, each with a fresh ID. Instances share no identity or back-link.
func ExpandTask(t model.Task, start, end time.Time, rule Rule) ([]store.Entry, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	dates, err := Expand(start, end, rule)
	if err != nil {
		return nil, err
	}

	entries := make([]store.Entry, 0, len(dates))
	for _, d := range dates {
		cp := t
		cp.ID = model.NewID()
		entries = append(entries, store.Entry{
			DateKey: model.FormatDateKey(d),
			Task:    cp,
		})
	}
	return entries, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
