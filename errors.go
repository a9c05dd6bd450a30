package roleci

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/role-ci/exitcodes"
)

// RuntimeError represents an operational error that should lead to exit code 2.
// Examples include configuration errors, an unusable targets directory and
// reports that could not be written.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// PipelineFailureError reports a run whose overall status is failed (exit code 1)
type PipelineFailureError struct {
	RunID         string
	FailedTargets []string
}

func (e *PipelineFailureError) Error() string {
	if len(e.FailedTargets) == 0 {
		return fmt.Sprintf("pipeline run %s failed", e.RunID)
	}
	return fmt.Sprintf("pipeline run %s failed: %s", e.RunID, strings.Join(e.FailedTargets, ", "))
}

// NewPipelineFailureError creates a new PipelineFailureError
func NewPipelineFailureError(runID string, failedTargets []string) *PipelineFailureError {
	return &PipelineFailureError{RunID: runID, FailedTargets: failedTargets}
}

// IsPipelineFailureError checks if the error is or wraps a PipelineFailureError
func IsPipelineFailureError(err error) bool {
	var failureErr *PipelineFailureError
	return err != nil && errors.As(err, &failureErr)
}

// InterruptedError reports a run cut short by a signal (exit code 130). The
// partial run has still been reported.
type InterruptedError struct {
	RunID string
	Err   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("pipeline run %s interrupted: %v", e.RunID, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// IsInterruptedError checks if the error is or wraps an InterruptedError
func IsInterruptedError(err error) bool {
	var interruptedErr *InterruptedError
	return err != nil && errors.As(err, &interruptedErr)
}

// ExitCode maps an error returned by a command to the process exit code.
// Runtime errors win over interruptions, which win over pipeline failures.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case IsInterruptedError(err):
		return exitcodes.Interrupted
	case IsPipelineFailureError(err):
		return exitcodes.PipelineFailure
	default:
		return exitcodes.RuntimeErr
	}
}
