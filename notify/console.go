package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ConsoleNotifier writes a single plain text line per message
type ConsoleNotifier struct {
	w io.Writer
}

// NewConsoleNotifier creates a notifier writing to w
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (c *ConsoleNotifier) Notify(_ context.Context, msg Message) error {
	line := fmt.Sprintf("[role-ci] %s: %s", strings.ToUpper(msg.Status), msg.Message)
	if msg.RunID != "" {
		line += fmt.Sprintf(" (run %s)", msg.RunID)
	}
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("console notification failed: %w", err)
	}
	return nil
}
