package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/role-ci/templates"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	RunDirectoryPrefix = "run-"
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"

	PassedDir  = "passed"
	FailedDir  = "failed"
	SkippedDir = "skipped"
)

// TaskLogger persists the captured output of every task under
// <baseDir>/run-<runID>/{passed,failed,skipped}
type TaskLogger struct {
	baseDir string
	log     log.Logger

	mu   sync.Mutex
	runs map[string]*runLogs
}

type runLogs struct {
	dir     string
	all     *Appender
	stats   types.RunStats
	failed  []string
	started time.Time
}

// NewTaskLogger creates a task logger rooted at baseDir
func NewTaskLogger(baseDir string, logger log.Logger) (*TaskLogger, error) {
	if baseDir == "" {
		return nil, errors.New("baseDir cannot be empty")
	}
	if logger == nil {
		logger = log.Root()
	}
	return &TaskLogger{
		baseDir: baseDir,
		log:     logger.New("component", "task-logger"),
		runs:    make(map[string]*runLogs),
	}, nil
}

// RunDir returns the log directory for a run
func (l *TaskLogger) RunDir(runID string) string {
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID)
}

// Consume writes the task's log file and appends it to all.log
func (l *TaskLogger) Consume(task *types.ExecutionTask, runID string) error {
	if runID == "" {
		return errors.New("runID cannot be empty")
	}

	// The lock only covers run bookkeeping; file I/O happens outside it
	l.mu.Lock()
	run, err := l.runFor(runID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	run.stats.Add(task.Status)
	if task.Status.IsFailure() {
		run.failed = append(run.failed, task.Key())
	}
	l.mu.Unlock()

	content := formatTaskLog(task)
	path := filepath.Join(run.dir, statusDir(task.Status), TaskLogFilename(task))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write task log %s: %w", path, err)
	}
	return run.all.Append([]byte(content + "\n"))
}

// Complete writes summary.log and releases the run's files
func (l *TaskLogger) Complete(runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, err := l.runFor(runID)
	if err != nil {
		return err
	}
	delete(l.runs, runID)
	closeErr := run.all.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:      %s\n", runID)
	fmt.Fprintf(&sb, "Started:  %s\n", run.started.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Total:    %d\n", run.stats.Total)
	fmt.Fprintf(&sb, "Passed:   %d\n", run.stats.Passed)
	fmt.Fprintf(&sb, "Failed:   %d (timed out: %d)\n", run.stats.Failed, run.stats.TimedOut)
	fmt.Fprintf(&sb, "Skipped:  %d\n", run.stats.Skipped)
	fmt.Fprintf(&sb, "Status:   %s\n", run.stats.Status())
	fmt.Fprintf(&sb, "All log:  %s (%d bytes)\n", AllLogsFilename, run.all.Written())
	if len(run.failed) > 0 {
		sb.WriteString("\nFailed tasks:\n")
		for _, key := range run.failed {
			fmt.Fprintf(&sb, "  %s\n", key)
		}
	}

	writeErr := os.WriteFile(filepath.Join(run.dir, SummaryFilename), []byte(sb.String()), 0644)
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("failed to complete logs for run %s: %w", runID, err)
	}
	l.log.Info("Task logs written", "dir", run.dir)
	return nil
}

// runFor returns the state for a run, creating its directories on first use.
// Callers hold l.mu.
func (l *TaskLogger) runFor(runID string) (*runLogs, error) {
	if run, ok := l.runs[runID]; ok {
		return run, nil
	}

	dir := l.RunDir(runID)
	for _, d := range []string{PassedDir, FailedDir, SkippedDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	all, err := NewAppender(filepath.Join(dir, AllLogsFilename), l.log)
	if err != nil {
		return nil, err
	}

	run := &runLogs{dir: dir, all: all, started: time.Now()}
	l.runs[runID] = run
	return run, nil
}

func statusDir(status types.TaskStatus) string {
	switch {
	case status.IsFailure():
		return FailedDir
	case status == types.TaskStatusSkipped:
		return SkippedDir
	default:
		return PassedDir
	}
}

// TaskLogFilename returns the file name used for a task's log
func TaskLogFilename(task *types.ExecutionTask) string {
	return safeFilename(fmt.Sprintf("%s_%s_%s", task.Stage, task.Target, task.Scenario)) + ".log"
}

// safeFilename replaces characters that are problematic in file names
func safeFilename(s string) string {
	return strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	).Replace(s)
}

func formatTaskLog(task *types.ExecutionTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s\n", task.Key())
	fmt.Fprintf(&sb, "Target:    %s\n", task.Target)
	fmt.Fprintf(&sb, "Stage:     %s\n", task.Stage)
	fmt.Fprintf(&sb, "Scenario:  %s\n", task.Scenario)
	fmt.Fprintf(&sb, "Status:    %s\n", task.Status)
	if task.Command != "" {
		fmt.Fprintf(&sb, "Command:   %s\n", task.Command)
	}
	fmt.Fprintf(&sb, "Exit code: %d\n", task.ExitCode)
	fmt.Fprintf(&sb, "Duration:  %s\n", templates.FormatDuration(task.Duration()))
	if task.Reason != "" {
		fmt.Fprintf(&sb, "Reason:    %s\n", task.Reason)
	}
	if task.Output != "" {
		sb.WriteString("\nOUTPUT")
		if task.Truncated {
			sb.WriteString(" (truncated)")
		}
		sb.WriteString(":\n")
		sb.WriteString(stripansi.Strip(task.Output))
		if !strings.HasSuffix(task.Output, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
