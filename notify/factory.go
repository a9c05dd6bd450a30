package notify

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Config holds what the channels need to be constructed
type Config struct {
	Channel    Channel
	WebhookURL string
	Timeout    time.Duration
	Console    io.Writer
	Log        log.Logger
}

// New builds the notifier for the configured channel. Errors here mean the
// channel is misconfigured, not that delivery failed.
func New(cfg Config) (Notifier, error) {
	channel, err := ParseChannel(string(cfg.Channel))
	if err != nil {
		return nil, err
	}
	switch channel {
	case ChannelWebhook:
		webhook, err := NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, cfg.Log)
		if err != nil {
			return nil, err
		}
		return webhook, nil
	default:
		w := cfg.Console
		if w == nil {
			w = io.Discard
		}
		return NewConsoleNotifier(w), nil
	}
}
