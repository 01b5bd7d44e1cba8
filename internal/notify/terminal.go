// Package notify provides notification functionality for the alert engine.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to stdout with color. It is
// the default channel for development runs where neither Telegram nor
// a webhook is configured.
type TerminalNotifier struct {
	enabled bool
}

// NewTerminalNotifier creates a new TerminalNotifier.
func NewTerminalNotifier(enabled bool) *TerminalNotifier {
	return &TerminalNotifier{enabled: enabled}
}

// Name returns the name of the notifier.
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TerminalNotifier) IsEnabled() bool {
	return t.enabled
}

// Send prints the notification with a type-appropriate color.
func (t *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	switch n.Type {
	case NotificationDecision:
		color.Cyan(n.Title)
	case NotificationPosition:
		color.Green(n.Title)
	case NotificationAlarm:
		color.Yellow(n.Title)
	case NotificationError:
		color.Red(n.Title)
	default:
		color.White(n.Title)
	}

	for _, line := range strings.Split(n.Message, "\n") {
		fmt.Println("  " + line)
	}
	return nil
}
