package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierDelivers(t *testing.T) {
	var got map[string]any
	var contentType, method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n, err := NewWebhookNotifier(server.URL, time.Second, log.New())
	require.NoError(t, err)

	msg := MessageFromRun(sealedRun(t, true))
	require.NoError(t, n.Notify(context.Background(), msg))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "run-42", got["run_id"])
	assert.Equal(t, float64(1), got["passed"])
	assert.Equal(t, float64(1), got["failed"])
	assert.Equal(t, float64(1), got["skipped"])
	assert.Equal(t, "2024-05-01T12:01:00Z", got["timestamp"])
	assert.Contains(t, got["message"], "Pipeline failed")
}

func TestWebhookNotifierRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	n, err := NewWebhookNotifier(server.URL, time.Second, log.New())
	require.NoError(t, err)

	err = n.Notify(context.Background(), Message{Status: "passed"})
	var notifyErr *types.NotificationError
	require.ErrorAs(t, err, &notifyErr)
	assert.Equal(t, "webhook", notifyErr.Channel)
	assert.Equal(t, http.StatusUnauthorized, notifyErr.StatusCode)
	assert.Contains(t, err.Error(), "bad token")
}

func TestWebhookNotifierTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	n, err := NewWebhookNotifier(url, time.Second, log.New())
	require.NoError(t, err)

	err = n.Notify(context.Background(), Message{Status: "passed"})
	var notifyErr *types.NotificationError
	require.ErrorAs(t, err, &notifyErr)
	assert.Zero(t, notifyErr.StatusCode)
}

func TestWebhookNotifierTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	n, err := NewWebhookNotifier(server.URL, 100*time.Millisecond, log.New())
	require.NoError(t, err)

	start := time.Now()
	err = n.Notify(context.Background(), Message{Status: "passed"})
	var notifyErr *types.NotificationError
	require.ErrorAs(t, err, &notifyErr)
	assert.Zero(t, notifyErr.StatusCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}
