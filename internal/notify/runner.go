package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "taskcal/internal/log"
	"taskcal/internal/store"
)

// Runner drives the deadline sweep on a fixed schedule. Each cycle it
// re-reads the task file from disk rather than sharing the API server's
// in-memory store, so it never contends with mutations and tolerates edits
// made while it slept. It keeps running while the presentation layer is
// hidden and stops cleanly when the context is canceled.
type Runner struct {
	storePath string
	schedule  string
	notifier  *Notifier
	sender    Sender
	cron      *cron.Cron
}

// NewRunner creates a Runner sweeping the tasks file at storePath on the
// given cron schedule (e.g. "@every 30s").
func NewRunner(storePath, schedule string, loc *time.Location, sender Sender) *Runner {
	return &Runner{
		storePath: storePath,
		schedule:  schedule,
		notifier:  New(loc),
		sender:    sender,
	}
}

// Start schedules the sweep and returns immediately. A sweep that outlasts
// the period (slow disk, blocking notification call) causes the next
// activation to be skipped rather than run concurrently, so at most one
// sweep is ever in flight. The cron loop is stopped, letting any in-flight
// sweep finish, when ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := r.cron.AddFunc(r.schedule, r.Sweep); err != nil {
		return fmt.Errorf("notify: bad check schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	appLog.Info("deadline sweep scheduled", "schedule", r.schedule, "tasks_file", r.storePath)

	go func() {
		<-ctx.Done()
		stopCtx := r.cron.Stop()
		<-stopCtx.Done()
		appLog.Info("deadline sweep stopped")
	}()

	return nil
}

// cronLogger adapts the application logger to the cron.Logger interface so
// skipped activations show up in the normal log stream.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Sweep runs one check cycle: reload the store, classify, fire reminders.
// Exposed so -once mode can run a single cycle without a scheduler.
func (r *Runner) Sweep() {
	tasks, err := store.Load(r.storePath)
	if err != nil {
		// A corrupt or unreadable file is surfaced every cycle; the sweep
		// must not guess at the user's data.
		appLog.Error("deadline sweep: failed to load tasks", err, "tasks_file", r.storePath)
		return
	}

	now := time.Now().In(r.notifier.loc)
	for _, rem := range r.notifier.Check(now, tasks) {
		title := fmt.Sprintf("Task Reminder: %s", rem.Task.Name)
		message := fmt.Sprintf("%s is due in %d hours!", rem.Task.Name, rem.Interval)
		if err := r.sender.Notify(title, message); err != nil {
			appLog.Error("deadline sweep: notification failed", err, "name", rem.Task.Name)
			continue
		}
		appLog.Info("reminder fired",
			"name", rem.Task.Name,
			"date", rem.DateKey,
			"interval_hours", rem.Interval,
			"due_at", rem.DueAt.Format(time.RFC3339),
		)
	}
}
