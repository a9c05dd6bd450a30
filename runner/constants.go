package runner

import "time"

// Execution constants
const (
	// DefaultTaskTimeout applies to stages that do not declare their own timeout
	DefaultTaskTimeout = 10 * time.Minute

	// DefaultCleanupTimeout bounds a stage cleanup command
	DefaultCleanupTimeout = 2 * time.Minute

	// DefaultOutputCap is the number of output bytes kept per task
	DefaultOutputCap = 1024 * 1024

	// DefaultParallelism is the worker pool size when none is configured
	DefaultParallelism = 4

	// MaxReasonableConcurrency is the pool size above which a warning is logged
	MaxReasonableConcurrency = 32

	// drainDelay bounds how long output is read after the command exited,
	// for descendants that left the process group but kept the pipe open
	drainDelay = 5 * time.Second

	// Skip reasons
	ReasonDryRun    = "dry-run"
	ReasonFailFast  = "fail-fast"
	ReasonCancelled = "cancelled"
)
