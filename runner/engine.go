package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ Executor = (*Engine)(nil)

// Executor turns one (target, stage, scenario) into a terminal task.
// Implementations never return a non-terminal task and never panic on
// command failures; the failure is recorded on the task.
type Executor interface {
	Execute(ctx context.Context, target types.Target, stage types.Stage, scenario string) *types.ExecutionTask
}

// Cleaner tears down whatever a killed task may have left behind
type Cleaner interface {
	Cleanup(ctx context.Context, target types.Target, stage types.Stage, scenario string)
}

// EngineConfig holds the configuration for an Engine
type EngineConfig struct {
	Log            log.Logger
	Runner         CommandRunner
	Cleaner        Cleaner // Defaults to running the stage cleanup command through Runner
	DefaultTimeout time.Duration
	OutputCap      int
	Env            []string
	Clock          func() time.Time
}

// Engine executes tasks by rendering the stage command and handing it to a CommandRunner
type Engine struct {
	log            log.Logger
	runner         CommandRunner
	cleaner        Cleaner
	defaultTimeout time.Duration
	outputCap      int
	env            []string
	now            func() time.Time
}

// NewEngine creates an execution engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("command runner cannot be nil")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.DefaultTimeout < 0 {
		return nil, fmt.Errorf("default timeout cannot be negative")
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTaskTimeout
	}
	if cfg.OutputCap <= 0 {
		cfg.OutputCap = DefaultOutputCap
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	e := &Engine{
		log:            cfg.Log.New("component", "engine"),
		runner:         cfg.Runner,
		cleaner:        cfg.Cleaner,
		defaultTimeout: cfg.DefaultTimeout,
		outputCap:      cfg.OutputCap,
		env:            cfg.Env,
		now:            cfg.Clock,
	}
	if e.cleaner == nil {
		e.cleaner = NewCommandCleaner(cfg.Log, cfg.Runner, DefaultCleanupTimeout)
	}
	return e, nil
}

// Execute runs a single task to a terminal status
func (e *Engine) Execute(ctx context.Context, target types.Target, stage types.Stage, scenario string) *types.ExecutionTask {
	task := types.NewTask(target.ID, stage.Name, scenario)
	_ = task.MarkRunning(e.now())

	line, err := stage.RenderCommand(target, scenario)
	if err != nil {
		task.Reason = fmt.Sprintf("rendering command: %v", err)
		_ = task.Resolve(types.TaskStatusFailed, e.now())
		return task
	}
	task.Command = line

	timeout := stage.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	e.log.Info("Running task", "stage", stage.Name, "target", target.ID, "scenario", scenario)
	outcome := e.runner.Run(ctx, Command{
		Line:      line,
		Dir:       target.Dir,
		Env:       e.taskEnv(target, stage, scenario),
		Timeout:   timeout,
		OutputCap: e.outputCap,
	})

	task.Output = outcome.Output
	task.Truncated = outcome.Truncated
	task.ExitCode = outcome.ExitCode

	status := types.TaskStatusPassed
	switch {
	case outcome.TimedOut:
		status = types.TaskStatusTimedOut
		task.Reason = (&types.TimeoutError{Command: line, Timeout: timeout}).Error()
	case outcome.Cancelled:
		status = types.TaskStatusFailed
		cause := outcome.Err
		if cause == nil {
			cause = context.Cause(ctx)
		}
		task.Reason = fmt.Sprintf("%s: %v", ReasonCancelled, cause)
	case !outcome.Succeeded():
		status = types.TaskStatusFailed
		task.Reason = (&types.ExecutionError{Command: line, ExitCode: outcome.ExitCode, Err: outcome.Err}).Error()
	}
	_ = task.Resolve(status, e.now())

	e.log.Info("Task finished", "stage", stage.Name, "target", target.ID, "scenario", scenario,
		"status", task.Status, "exitCode", task.ExitCode, "duration", task.Duration())

	if (outcome.TimedOut || outcome.Cancelled) && stage.HasCleanup() {
		e.cleaner.Cleanup(ctx, target, stage, scenario)
	}
	return task
}

func (e *Engine) taskEnv(target types.Target, stage types.Stage, scenario string) []string {
	env := make([]string, 0, len(e.env)+4)
	env = append(env, e.env...)
	return append(env,
		"ROLE_CI_TARGET="+target.ID,
		"ROLE_CI_STAGE="+stage.Name,
		"ROLE_CI_SCENARIO="+scenario,
		"ROLE_CI_PLATFORM="+target.Platform.String(),
	)
}

// CommandCleaner runs a stage's cleanup command after a task was killed
type CommandCleaner struct {
	log     log.Logger
	runner  CommandRunner
	timeout time.Duration
}

// NewCommandCleaner creates a cleaner that shares the given runner
func NewCommandCleaner(logger log.Logger, runner CommandRunner, timeout time.Duration) *CommandCleaner {
	if logger == nil {
		logger = log.Root()
	}
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}
	return &CommandCleaner{
		log:     logger.New("component", "cleaner"),
		runner:  runner,
		timeout: timeout,
	}
}

// Cleanup is best-effort; the outcome is only logged. It runs even when ctx
// is already cancelled.
func (c *CommandCleaner) Cleanup(ctx context.Context, target types.Target, stage types.Stage, scenario string) {
	line, err := stage.RenderCleanup(target, scenario)
	if err != nil {
		c.log.Warn("Failed to render cleanup command", "stage", stage.Name, "target", target.ID, "err", err)
		return
	}
	if line == "" {
		return
	}

	c.log.Info("Running cleanup", "stage", stage.Name, "target", target.ID, "scenario", scenario)
	outcome := c.runner.Run(context.WithoutCancel(ctx), Command{
		Line:      line,
		Dir:       target.Dir,
		Timeout:   c.timeout,
		OutputCap: DefaultOutputCap,
	})
	if !outcome.Succeeded() {
		c.log.Warn("Cleanup failed", "stage", stage.Name, "target", target.ID, "scenario", scenario,
			"exitCode", outcome.ExitCode, "timedOut", outcome.TimedOut, "err", outcome.Err)
		return
	}
	c.log.Info("Cleanup finished", "stage", stage.Name, "target", target.ID, "duration", outcome.Duration)
}
