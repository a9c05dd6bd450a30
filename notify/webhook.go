package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultWebhookTimeout bounds a single webhook delivery
const DefaultWebhookTimeout = 10 * time.Second

// maxErrorBody caps how much of a rejected response is kept in the error
const maxErrorBody = 512

// WebhookNotifier posts the message as JSON to a URL
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
	log     log.Logger
}

// NewWebhookNotifier validates the URL and creates a notifier
func NewWebhookNotifier(rawURL string, timeout time.Duration, logger log.Logger) (*WebhookNotifier, error) {
	if rawURL == "" {
		return nil, ErrMissingWebhookURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook URL %q: scheme must be http or https", rawURL)
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = log.Root()
	}
	return &WebhookNotifier{
		url:     rawURL,
		timeout: timeout,
		client:  &http.Client{},
		log:     logger.New("component", "webhook"),
	}, nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return &types.NotificationError{Channel: string(ChannelWebhook), Err: fmt.Errorf("marshal: %w", err)}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &types.NotificationError{Channel: string(ChannelWebhook), Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "role-ci")

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return &types.NotificationError{Channel: string(ChannelWebhook), Err: fmt.Errorf("send: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &types.NotificationError{
			Channel:    string(ChannelWebhook),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	w.log.Debug("Delivered webhook notification", "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}
