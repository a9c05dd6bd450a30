package runner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/metrics"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TaskSink receives every task once it is terminal. Consume is called from
// worker goroutines and must be safe for concurrent use.
type TaskSink interface {
	Consume(task *types.ExecutionTask, runID string) error
	Complete(runID string) error
}

// SchedulerConfig holds the configuration for a Scheduler
type SchedulerConfig struct {
	Log         log.Logger
	Executor    Executor // Ignored when DryRun is set
	Parallelism int
	FailFast    bool
	DryRun      bool
	Scenario    string // Restrict all-scenario stages to this scenario
	Progress    ProgressIndicator
	Sinks       []TaskSink
	RunID       string // Generated when empty
	Clock       func() time.Time
}

// Scheduler runs stages in order, fanning each stage's targets out to a
// bounded worker pool and waiting for all of them before moving on
type Scheduler struct {
	log         log.Logger
	executor    Executor
	parallelism int
	failFast    bool
	dryRun      bool
	scenario    string
	progress    ProgressIndicator
	sinks       []TaskSink
	runID       string
	now         func() time.Time
	tracer      trace.Tracer
}

// NewScheduler creates a scheduler
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism cannot be negative")
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.DryRun {
		cfg.Executor = NewDryRunExecutor()
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := cfg.Log.New("component", "scheduler")
	if cfg.Parallelism > MaxReasonableConcurrency {
		logger.Warn("Very high parallelism requested", "parallelism", cfg.Parallelism,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}

	return &Scheduler{
		log:         logger,
		executor:    cfg.Executor,
		parallelism: cfg.Parallelism,
		failFast:    cfg.FailFast,
		dryRun:      cfg.DryRun,
		scenario:    cfg.Scenario,
		progress:    cfg.Progress,
		sinks:       cfg.Sinks,
		runID:       cfg.RunID,
		now:         cfg.Clock,
		tracer:      otel.Tracer("role-ci scheduler"),
	}, nil
}

// Execute runs every stage against the targets and returns the sealed run.
// When ctx is cancelled the run is still sealed and returned together with
// the context error.
func (s *Scheduler) Execute(ctx context.Context, stages []types.Stage, targets []types.Target) (*types.PipelineRun, error) {
	runID := s.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	start := s.now()

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("pipeline %s", runID))
	defer span.End()

	ordered := slices.Clone(stages)
	slices.SortStableFunc(ordered, func(a, b types.Stage) int {
		return a.Ordinal - b.Ordinal
	})

	s.log.Info("Starting pipeline", "runID", runID, "stages", len(ordered), "targets", len(targets),
		"parallelism", s.parallelism, "failFast", s.failFast, "dryRun", s.dryRun)

	excluded := make(map[string]bool)
	var tasks []*types.ExecutionTask
	haltReason := ""
	for _, stage := range ordered {
		eligible := make([]types.Target, 0, len(targets))
		for _, t := range targets {
			if !excluded[t.ID] {
				eligible = append(eligible, t)
			}
		}

		if haltReason == "" && ctx.Err() != nil {
			haltReason = ReasonCancelled
		}
		if haltReason != "" {
			s.log.Info("Skipping stage", "stage", stage.Name, "reason", haltReason, "targets", len(eligible))
			for _, t := range eligible {
				tasks = append(tasks, s.skipTarget(runID, stage, t, haltReason)...)
			}
			continue
		}

		result := s.runStage(ctx, runID, stage, eligible)
		tasks = append(tasks, result.tasks...)
		for _, id := range result.failedTargets {
			excluded[id] = true
		}
		if len(result.failedTargets) > 0 {
			s.log.Warn("Targets failed stage and are excluded from later stages",
				"stage", stage.Name, "targets", result.failedTargets)
		}
		haltReason = result.halted
	}

	run, err := Aggregate(runID, start, s.now(), ordered, tasks, s.dryRun)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("aggregating run %s: %w", runID, err)
	}

	for _, sink := range s.sinks {
		if err := sink.Complete(runID); err != nil {
			s.log.Warn("Task sink failed to complete", "runID", runID, "err", err)
			metrics.RecordErrorDetails("task_sink_complete", err)
		}
	}

	span.SetAttributes(
		attribute.String("status", string(run.Status)),
		attribute.Int("tasks", run.Stats.Total),
		attribute.Int("failed", run.Stats.Failed),
	)
	s.log.Info("Pipeline finished", "runID", runID, "status", run.Status, "total", run.Stats.Total,
		"passed", run.Stats.Passed, "failed", run.Stats.Failed, "skipped", run.Stats.Skipped,
		"duration", run.Duration())

	if err := ctx.Err(); err != nil {
		s.log.Warn("Pipeline cancelled", "runID", runID, "cause", context.Cause(ctx))
		span.SetStatus(codes.Error, "cancelled")
		return run, err
	}
	return run, nil
}

// scenariosFor applies the scenario filter to the stage's scenario list
func (s *Scheduler) scenariosFor(stage types.Stage, target types.Target) []string {
	if s.scenario == "" || stage.Scenarios != types.ScenarioModeAll {
		return stage.ScenariosFor(target)
	}
	return []string{s.scenario}
}

func (s *Scheduler) skipTarget(runID string, stage types.Stage, target types.Target, reason string) []*types.ExecutionTask {
	var tasks []*types.ExecutionTask
	for _, scenario := range s.scenariosFor(stage, target) {
		task := s.skipped(target, stage, scenario, reason)
		tasks = append(tasks, task)
		s.record(task, runID)
	}
	return tasks
}

func (s *Scheduler) skipped(target types.Target, stage types.Stage, scenario, reason string) *types.ExecutionTask {
	task := types.NewTask(target.ID, stage.Name, scenario)
	_ = task.Skip(reason, s.now())
	return task
}

// record publishes a terminal task to metrics and sinks
func (s *Scheduler) record(task *types.ExecutionTask, runID string) {
	metrics.RecordTask(task)
	for _, sink := range s.sinks {
		if err := sink.Consume(task, runID); err != nil {
			s.log.Warn("Task sink failed", "task", task.Key(), "err", err)
			metrics.RecordErrorDetails("task_sink_consume", err)
		}
	}
}
