package notify

import (
	"context"
	"os/exec"
)

// Urgency levels for desktop notifications.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// DesktopNotifier tells the user about daemon problems they would
// otherwise only find in the log, such as history falling back to memory.
type DesktopNotifier struct {
	appName  string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier creates a notifier backed by notify-send.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{
		appName:  "Ropy",
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Available checks if notify-send is available.
func (n *DesktopNotifier) Available() bool {
	_, err := n.lookPath("notify-send")
	return err == nil
}

// Send sends a desktop notification.
func (n *DesktopNotifier) Send(ctx context.Context, title, body string, urgency Urgency) error {
	if !n.Available() {
		return nil // Silently skip if not available
	}
	return n.run(ctx, "notify-send", n.args(title, body, urgency)...)
}

func (n *DesktopNotifier) args(title, body string, urgency Urgency) []string {
	args := []string{
		"--app-name=" + n.appName,
		"--urgency=" + string(urgency),
	}

	switch urgency {
	case UrgencyCritical:
		args = append(args, "--icon=dialog-warning")
	default:
		args = append(args, "--icon=edit-paste")
	}

	return append(args, title, body)
}
