package notify

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/reporting"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runEnd = time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

func sealedRun(t *testing.T, failing bool) *types.PipelineRun {
	t.Helper()
	start := runEnd.Add(-time.Minute)
	run := types.NewPipelineRun("run-42", start, false)
	stage := types.StageSummary{Name: "lint", StartedAt: start, EndedAt: runEnd}

	add := func(target string, status types.TaskStatus) {
		task := types.NewTask(target, "lint", types.DefaultScenario)
		require.NoError(t, task.Resolve(status, runEnd))
		stage.Tasks = append(stage.Tasks, task)
		stage.Stats.Add(status)
		run.Stats.Add(status)
		if status.IsFailure() {
			stage.FailedTargets = append(stage.FailedTargets, target)
		}
	}
	add("a/one", types.TaskStatusPassed)
	add("c/three", types.TaskStatusSkipped)
	if failing {
		add("b/two", types.TaskStatusFailed)
	}
	stage.Status = stage.Stats.Status()
	run.Stages = []types.StageSummary{stage}
	require.NoError(t, run.Seal(runEnd))
	return run
}

func TestMessageFromRun(t *testing.T) {
	msg := MessageFromRun(sealedRun(t, true))
	assert.Equal(t, "failed", msg.Status)
	assert.Equal(t, "run-42", msg.RunID)
	assert.Equal(t, 1, msg.Passed)
	assert.Equal(t, 1, msg.Failed)
	assert.Equal(t, 1, msg.Skipped)
	assert.Equal(t, runEnd, msg.Timestamp)
	assert.Equal(t, "Pipeline failed: 1 passed, 1 failed, 1 skipped. Failed targets: lint: b/two", msg.Message)

	msg = MessageFromRun(sealedRun(t, false))
	assert.Equal(t, "passed", msg.Status)
	assert.Equal(t, "Pipeline passed: 1 passed, 0 failed, 1 skipped", msg.Message)
}

func TestMessageFromLatest(t *testing.T) {
	dir := t.TempDir()
	_, err := MessageFromLatest(dir)
	require.ErrorIs(t, err, reporting.ErrNoReports)

	emitter, err := reporting.NewEmitter(dir, log.New())
	require.NoError(t, err)
	_, err = emitter.Emit(sealedRun(t, true), reporting.FormatJSON)
	require.NoError(t, err)

	msg, err := MessageFromLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, "failed", msg.Status)
	assert.Equal(t, "run-42", msg.RunID)
	assert.Contains(t, msg.Message, "lint: b/two")
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("Console")
	require.NoError(t, err)
	assert.Equal(t, ChannelConsole, c)

	c, err = ParseChannel("webhook")
	require.NoError(t, err)
	assert.Equal(t, ChannelWebhook, c)

	_, err = ParseChannel("slack")
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestNew(t *testing.T) {
	n, err := New(Config{Channel: ChannelConsole})
	require.NoError(t, err)
	assert.IsType(t, &ConsoleNotifier{}, n)

	n, err = New(Config{Channel: ChannelWebhook, WebhookURL: "https://hooks.example.com/ci"})
	require.NoError(t, err)
	assert.IsType(t, &WebhookNotifier{}, n)

	n, err = New(Config{Channel: ChannelWebhook})
	require.ErrorIs(t, err, ErrMissingWebhookURL)
	// assert.Nil would accept a nil *WebhookNotifier wrapped in the interface
	assert.True(t, n == nil, "a misconfigured webhook yields no notifier")

	n, err = New(Config{Channel: ChannelWebhook, WebhookURL: "ftp://example.com"})
	require.Error(t, err)
	assert.True(t, n == nil)

	_, err = New(Config{Channel: "email"})
	require.ErrorIs(t, err, ErrUnknownChannel)
}
