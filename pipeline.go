package roleci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/role-ci/logging"
	"github.com/ethereum-optimism/infra/role-ci/metrics"
	"github.com/ethereum-optimism/infra/role-ci/notify"
	"github.com/ethereum-optimism/infra/role-ci/registry"
	"github.com/ethereum-optimism/infra/role-ci/reporting"
	"github.com/ethereum-optimism/infra/role-ci/runner"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Pipeline implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Pipeline)(nil)

// Pipeline runs the selected stages once against the discovered targets,
// reports the result and asks the application to exit.
type Pipeline struct {
	config   *Config
	registry *registry.Registry
	emitter  *reporting.Emitter
	summary  *reporting.SummaryPrinter
	out      io.Writer

	// Replaced in tests
	commandRunner runner.CommandRunner

	result    *types.PipelineRun
	artifacts []string
	running   atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates a pipeline. Summaries and console notifications are written to out.
func New(config *Config, out io.Writer, shutdownCallback func(error)) (*Pipeline, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating pipeline with config",
		"targetsDir", config.TargetsDir,
		"reportsDir", config.ReportsDir,
		"stage", config.Stage,
		"parallelism", config.Parallelism,
		"dryRun", config.DryRun)

	reg, err := registry.NewRegistry(registry.Config{
		Log:        config.Log,
		TargetsDir: config.TargetsDir,
		StagesFile: config.StagesFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	emitter, err := reporting.NewEmitter(config.ReportsDir, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create report emitter: %w", err)
	}

	return &Pipeline{
		config:           config,
		registry:         reg,
		emitter:          emitter,
		summary:          reporting.NewSummaryPrinter(out, true),
		out:              out,
		commandRunner:    runner.NewProcessRunner(config.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the pipeline to completion. A passing (or empty) run asks the
// application to shut down; every other outcome is returned as a typed error.
// Start implements the cliapp.Lifecycle interface.
func (p *Pipeline) Start(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	if _, err := p.Execute(ctx); err != nil {
		return err
	}
	go p.shutdownCallback(nil)
	return nil
}

// Stop implements the cliapp.Lifecycle interface. The run itself observes
// cancellation through the context passed to Start.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.running.Store(false)
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (p *Pipeline) Stopped() bool {
	return !p.running.Load()
}

// Result returns the last sealed run, if any
func (p *Pipeline) Result() *types.PipelineRun {
	return p.result
}

// Artifacts returns the report paths written for the last run
func (p *Pipeline) Artifacts() []string {
	return p.artifacts
}

// Execute discovers targets, schedules the selected stages, persists the
// reports and sends the optional notification.
func (p *Pipeline) Execute(ctx context.Context) (*types.PipelineRun, error) {
	logger := p.config.Log

	stages, err := p.registry.SelectStages(p.config.Stage)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	targets, err := p.registry.Targets()
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	if p.config.Target != "" {
		targets = registry.Filter(targets, p.config.Target)
		if len(targets) == 0 {
			return nil, NewRuntimeError(fmt.Errorf("no target matches %q", p.config.Target))
		}
	}
	if len(targets) == 0 {
		logger.Warn("No targets discovered", "dir", p.config.TargetsDir)
	}

	scheduler, stopProgress, err := p.newScheduler()
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	run, execErr := scheduler.Execute(ctx, stages, targets)
	stopProgress()
	if run == nil {
		return nil, NewRuntimeError(execErr)
	}
	p.result = run
	metrics.RecordRun(run)

	// An unreported run counts as no run at all, even when interrupted
	artifacts, err := p.emitter.EmitAll(run, p.config.Formats)
	p.artifacts = artifacts
	if err != nil {
		return run, NewRuntimeError(err)
	}

	if p.config.MetricsFile != "" {
		if err := metrics.WriteTextfile(p.config.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics file", "path", p.config.MetricsFile, "err", err)
		}
	}

	if err := p.summary.Print(run, artifacts); err != nil {
		logger.Warn("Failed to print summary", "err", err)
	}

	p.notify(ctx, run)

	logger.Info("Pipeline run completed", "runID", run.RunID, "status", run.Status)
	if execErr != nil {
		return run, &InterruptedError{RunID: run.RunID, Err: execErr}
	}
	if run.Status == types.RunStatusFailed {
		return run, NewPipelineFailureError(run.RunID, run.FailedTargets())
	}
	return run, nil
}

// newScheduler wires the executor, sinks and progress reporting. The
// returned func stops the progress reporter.
func (p *Pipeline) newScheduler() (*runner.Scheduler, func(), error) {
	cfg := p.config
	stop := func() {}

	schedCfg := runner.SchedulerConfig{
		Log:         cfg.Log,
		Parallelism: cfg.Parallelism,
		FailFast:    cfg.FailFast,
		DryRun:      cfg.DryRun,
		Scenario:    cfg.Scenario,
	}
	if !cfg.DryRun {
		engine, err := runner.NewEngine(runner.EngineConfig{
			Log:            cfg.Log,
			Runner:         p.commandRunner,
			DefaultTimeout: cfg.DefaultTimeout,
			OutputCap:      cfg.OutputCap,
		})
		if err != nil {
			return nil, stop, fmt.Errorf("failed to create execution engine: %w", err)
		}
		schedCfg.Executor = engine
	}
	if cfg.LogDir != "" {
		taskLogger, err := logging.NewTaskLogger(cfg.LogDir, cfg.Log)
		if err != nil {
			return nil, stop, fmt.Errorf("failed to create task logger: %w", err)
		}
		schedCfg.Sinks = append(schedCfg.Sinks, taskLogger)
	}
	if cfg.ShowProgress {
		progress := runner.NewConsoleProgressIndicator(cfg.Log, cfg.ProgressInterval)
		schedCfg.Progress = progress
		stop = progress.Stop
	}

	scheduler, err := runner.NewScheduler(schedCfg)
	if err != nil {
		stop()
		return nil, func() {}, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return scheduler, stop, nil
}

// notify sends the post-run notification. Delivery failures never change
// the outcome of the run.
func (p *Pipeline) notify(ctx context.Context, run *types.PipelineRun) {
	if p.config.NotifyChannel == "" {
		return
	}
	notifier, err := notify.New(notify.Config{
		Channel:    p.config.NotifyChannel,
		WebhookURL: p.config.WebhookURL,
		Timeout:    p.config.NotifyTimeout,
		Console:    p.out,
		Log:        p.config.Log,
	})
	if err != nil {
		p.config.Log.Warn("Notification channel misconfigured", "channel", p.config.NotifyChannel, "err", err)
		return
	}
	// Still deliver after an interrupt
	if err := notifier.Notify(context.WithoutCancel(ctx), notify.MessageFromRun(run)); err != nil {
		p.config.Log.Warn("Failed to deliver notification", "channel", p.config.NotifyChannel, "err", err)
		metrics.RecordErrorDetails("notification", err)
	}
}
