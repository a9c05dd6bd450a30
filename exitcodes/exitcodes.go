// Package exitcodes defines the exit codes used by role-ci.
package exitcodes

// Exit code constants used by role-ci:
//
// * Success (0): the run passed, or nothing was executed
// * PipelineFailure (1): at least one task failed or timed out
// * RuntimeErr (2): configuration, discovery or report errors
// * Interrupted (130): the run was cancelled by a signal
const (
	Success         = 0
	PipelineFailure = 1
	RuntimeErr      = 2
	Interrupted     = 130
)
