package runner

import (
	"context"
	"time"
)

// Command is a fully rendered command line ready to be executed
type Command struct {
	Line      string
	Dir       string
	Env       []string // Appended to the current environment
	Timeout   time.Duration
	OutputCap int
}

// Outcome is what a CommandRunner observed while running a Command
type Outcome struct {
	ExitCode  int
	Output    string
	Truncated bool
	TimedOut  bool
	Cancelled bool  // The parent context ended before the command did
	Err       error // Set when the command could not be started or waited on
	Duration  time.Duration
}

// Succeeded reports whether the command ran to completion with exit code 0
func (o Outcome) Succeeded() bool {
	return o.Err == nil && !o.TimedOut && !o.Cancelled && o.ExitCode == 0
}

// CommandRunner executes commands. It is the only place processes get spawned.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) Outcome
}

// CommandRunnerFunc adapts a function to the CommandRunner interface
type CommandRunnerFunc func(ctx context.Context, cmd Command) Outcome

func (f CommandRunnerFunc) Run(ctx context.Context, cmd Command) Outcome {
	return f(ctx, cmd)
}
