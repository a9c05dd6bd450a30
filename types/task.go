package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskStatus represents the possible states of an execution task
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusPassed   TaskStatus = "passed"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusSkipped  TaskStatus = "skipped"
	TaskStatusTimedOut TaskStatus = "timed_out"
)

// IsTerminal reports whether the status is final
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusPassed, TaskStatusFailed, TaskStatusSkipped, TaskStatusTimedOut:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status counts as a failure. Timeouts are failures.
func (s TaskStatus) IsFailure() bool {
	return s == TaskStatusFailed || s == TaskStatusTimedOut
}

// ErrTaskResolved is returned when a task that is already terminal is resolved again
var ErrTaskResolved = errors.New("task already has a terminal status")

// ExecutionTask is one (target, stage, scenario) execution
type ExecutionTask struct {
	Target    string     `json:"target"`
	Stage     string     `json:"stage"`
	Scenario  string     `json:"scenario"`
	Command   string     `json:"command,omitempty"`
	Status    TaskStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
	ExitCode  int        `json:"exit_code"`
	Output    string     `json:"output,omitempty"`
	Truncated bool       `json:"output_truncated,omitempty"`
	Reason    string     `json:"reason,omitempty"` // Why the task failed or was skipped
}

// NewTask creates a pending task
func NewTask(target, stage, scenario string) *ExecutionTask {
	return &ExecutionTask{
		Target:   target,
		Stage:    stage,
		Scenario: scenario,
		Status:   TaskStatusPending,
		ExitCode: -1,
	}
}

// Key returns a stable identifier for the task within a run
func (t *ExecutionTask) Key() string {
	return fmt.Sprintf("%s:%s:%s", t.Stage, t.Target, t.Scenario)
}

// Duration returns how long the task ran
func (t *ExecutionTask) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// MarkRunning moves a pending task to running
func (t *ExecutionTask) MarkRunning(at time.Time) error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("task %s: cannot start from status %s", t.Key(), t.Status)
	}
	t.Status = TaskStatusRunning
	t.StartedAt = at
	return nil
}

// Resolve moves the task to a terminal status. It succeeds exactly once.
func (t *ExecutionTask) Resolve(status TaskStatus, at time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s (%s): %w", t.Key(), t.Status, ErrTaskResolved)
	}
	if !status.IsTerminal() {
		return fmt.Errorf("task %s: %s is not a terminal status", t.Key(), status)
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = at
	}
	t.Status = status
	t.EndedAt = at
	return nil
}

// Skip resolves the task as skipped with the given reason
func (t *ExecutionTask) Skip(reason string, at time.Time) error {
	if err := t.Resolve(TaskStatusSkipped, at); err != nil {
		return err
	}
	t.Reason = reason
	return nil
}

// MarshalJSON adds the derived duration to the encoded task
func (t *ExecutionTask) MarshalJSON() ([]byte, error) {
	type alias ExecutionTask
	return json.Marshal(struct {
		*alias
		DurationMS int64 `json:"duration_ms"`
	}{
		alias:      (*alias)(t),
		DurationMS: t.Duration().Milliseconds(),
	})
}
