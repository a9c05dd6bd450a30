package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/reporting"
	"github.com/ethereum-optimism/infra/role-ci/types"
)

// Channel names a notification destination
type Channel string

const (
	ChannelConsole Channel = "console"
	ChannelWebhook Channel = "webhook"
)

var (
	// ErrUnknownChannel is returned for a channel other than console or webhook
	ErrUnknownChannel = errors.New("unknown notification channel")
	// ErrMissingWebhookURL is returned when the webhook channel has no URL
	ErrMissingWebhookURL = errors.New("webhook channel requires a URL")
)

// Message is the summary relayed to a channel. It doubles as the webhook envelope.
type Message struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers a message to a single channel
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// MessageFromRun summarizes a sealed run
func MessageFromRun(run *types.PipelineRun) Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline %s: %d passed, %d failed, %d skipped",
		run.Status, run.Stats.Passed, run.Stats.Failed, run.Stats.Skipped)
	if run.DryRun {
		sb.WriteString(" (dry-run)")
	}
	if failed := run.FailedTargets(); len(failed) > 0 {
		sb.WriteString(". Failed targets: ")
		sb.WriteString(strings.Join(failed, ", "))
	}

	ts := run.EndedAt
	if ts.IsZero() {
		ts = run.StartedAt
	}
	return Message{
		Status:    string(run.Status),
		Message:   sb.String(),
		RunID:     run.RunID,
		Passed:    run.Stats.Passed,
		Failed:    run.Stats.Failed,
		Skipped:   run.Stats.Skipped,
		Timestamp: ts.UTC(),
	}
}

// MessageFromLatest summarizes the most recent JSON report in dir
func MessageFromLatest(dir string) (Message, error) {
	run, _, err := reporting.LatestRun(dir)
	if err != nil {
		return Message{}, err
	}
	return MessageFromRun(run), nil
}

// ParseChannel validates a channel name
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelConsole, ChannelWebhook:
		return c, nil
	default:
		return "", fmt.Errorf("%w %q (supported: console, webhook)", ErrUnknownChannel, s)
	}
}
