package notify

import (
	"github.com/gen2brain/beeep"

	appLog "taskcal/internal/log"
)

// Sender delivers a reminder to the user. Delivery is fire-and-forget: a
// returned error is logged by the caller, never retried.
type Sender interface {
	Notify(title, message string) error
}

// DesktopSender fires a native desktop notification.
type DesktopSender struct{}

func (DesktopSender) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// LogSender writes reminders to the application log. Used for headless
// runs and as the fallback when desktop notifications are disabled.
type LogSender struct{}

func (LogSender) Notify(title, message string) error {
	appLog.Info("reminder", "title", title, "message", message)
	return nil
}
