//go:build linux

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRunnerExitCodes(t *testing.T) {
	runner := NewProcessRunner(log.New())
	dir := t.TempDir()

	tests := []struct {
		name     string
		line     string
		exitCode int
		output   string
	}{
		{"success", "echo hello", 0, "hello\n"},
		{"failure", "echo oops >&2; exit 3", 3, "oops\n"},
		{"working dir", "pwd", 0, dir + "\n"},
		{"environment", "echo $ROLE_CI_TEST_VALUE", 0, "from-env\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := runner.Run(context.Background(), Command{
				Line:    tt.line,
				Dir:     dir,
				Env:     []string{"ROLE_CI_TEST_VALUE=from-env"},
				Timeout: 10 * time.Second,
			})
			require.NoError(t, outcome.Err)
			assert.Equal(t, tt.exitCode, outcome.ExitCode)
			assert.Equal(t, tt.output, outcome.Output)
			assert.False(t, outcome.TimedOut)
			assert.False(t, outcome.Cancelled)
			assert.Equal(t, tt.exitCode == 0, outcome.Succeeded())
		})
	}
}

func TestProcessRunnerMissingDir(t *testing.T) {
	runner := NewProcessRunner(log.New())
	outcome := runner.Run(context.Background(), Command{
		Line: "true",
		Dir:  filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, outcome.Err)
	assert.Equal(t, -1, outcome.ExitCode)
	assert.False(t, outcome.Succeeded())
}

func TestProcessRunnerTimeoutKillsProcessGroup(t *testing.T) {
	runner := NewProcessRunner(log.New())
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	start := time.Now()
	outcome := runner.Run(context.Background(), Command{
		Line:    "sleep 30 & echo $! > " + pidFile + "; echo started; wait",
		Timeout: 300 * time.Millisecond,
	})
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, outcome.TimedOut)
	assert.False(t, outcome.Cancelled)
	assert.Equal(t, -1, outcome.ExitCode)
	assert.Contains(t, outcome.Output, "started")

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 50*time.Millisecond)
}

// processGone reports whether pid is dead: gone, or a zombie awaiting its
// new parent
func processGone(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(stat))
	return len(fields) > 2 && fields[2] == "Z"
}

func TestProcessRunnerLeaderExitWithBackgroundChild(t *testing.T) {
	runner := NewProcessRunner(log.New())
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	start := time.Now()
	outcome := runner.Run(context.Background(), Command{
		Line:    "sleep 8 & echo $! > " + pidFile + "; echo done; exit 0",
		Timeout: time.Minute,
	})
	assert.Less(t, time.Since(start), drainDelay, "the command's exit must not wait on its background child")
	require.NoError(t, outcome.Err)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.Succeeded())
	assert.False(t, outcome.TimedOut)
	assert.Equal(t, "done\n", outcome.Output)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 50*time.Millisecond)
}

func TestProcessRunnerLeaderFailureWithBackgroundChild(t *testing.T) {
	runner := NewProcessRunner(log.New())
	outcome := runner.Run(context.Background(), Command{
		Line:    "sleep 8 & echo failing; exit 4",
		Timeout: time.Minute,
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 4, outcome.ExitCode)
	assert.Equal(t, "failing\n", outcome.Output)
}

func TestProcessRunnerCancellation(t *testing.T) {
	runner := NewProcessRunner(log.New())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	outcome := runner.Run(ctx, Command{Line: "sleep 30", Timeout: time.Minute})
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, outcome.Cancelled)
	assert.False(t, outcome.TimedOut)
	require.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestProcessRunnerAlreadyCancelled(t *testing.T) {
	runner := NewProcessRunner(log.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	marker := filepath.Join(t.TempDir(), "ran")
	outcome := runner.Run(ctx, Command{Line: "touch " + marker})
	assert.True(t, outcome.Cancelled)
	assert.NoFileExists(t, marker)
}

func TestProcessRunnerOutputCap(t *testing.T) {
	runner := NewProcessRunner(log.New())
	outcome := runner.Run(context.Background(), Command{
		Line:      "echo BEGIN; i=0; while [ $i -lt 500 ]; do echo filler-line; i=$((i+1)); done; echo END",
		OutputCap: 100,
		Timeout:   10 * time.Second,
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.Truncated)
	assert.True(t, strings.HasPrefix(outcome.Output, "BEGIN\n"))
	assert.True(t, strings.HasSuffix(outcome.Output, "END\n"))
	assert.Contains(t, outcome.Output, "bytes truncated ...]")
}
