package types

import (
	"fmt"
	"time"
)

// DiscoveryError is returned when the targets root is unusable or a unit is malformed
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed at %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ExecutionError describes a command that exited non-zero or could not be started
type ExecutionError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command failed (exit code %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command failed (exit code %d)", e.ExitCode)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError describes a command killed after exceeding its time limit
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// ReportWriteError is returned when a report artifact cannot be written
type ReportWriteError struct {
	Path string
	Err  error
}

func (e *ReportWriteError) Error() string {
	return fmt.Sprintf("failed to write report %s: %v", e.Path, e.Err)
}

func (e *ReportWriteError) Unwrap() error {
	return e.Err
}

// NotificationError is returned when a notification could not be delivered
type NotificationError struct {
	Channel    string
	StatusCode int // Zero for transport failures
	Err        error
}

func (e *NotificationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s notification rejected with status %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s notification failed: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
