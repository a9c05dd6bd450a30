package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/role-ci/metrics"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"go.opentelemetry.io/otel/attribute"
)

// stageResult is the outcome of one stage across all of its targets
type stageResult struct {
	tasks         []*types.ExecutionTask // In target order
	failedTargets []string
	halted        string // Why later stages must be skipped, if they must
}

// runStage dispatches each target to the worker pool and blocks until every
// dispatched target is done. Targets that were never dispatched get skipped
// tasks.
func (s *Scheduler) runStage(ctx context.Context, runID string, stage types.Stage, targets []types.Target) stageResult {
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("stage %s", stage.Name))
	defer span.End()
	span.SetAttributes(attribute.Int("targets", len(targets)))

	s.progress.StartStage(stage.Name, len(targets))
	defer s.progress.CompleteStage(stage.Name)

	// Each worker writes only to the slot of the target it was handed
	slots := make([][]*types.ExecutionTask, len(targets))
	var stop atomic.Bool

	workChan := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < min(s.workersFor(stage), len(targets)); i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, runID, stage, targets, slots, &stop, workChan)
	}

dispatch:
	for idx := range targets {
		if stop.Load() || ctx.Err() != nil {
			break
		}
		select {
		case workChan <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(workChan)
	wg.Wait()

	result := stageResult{}
	if stop.Load() {
		result.halted = ReasonFailFast
	}
	if ctx.Err() != nil {
		result.halted = ReasonCancelled
	}

	for idx, slot := range slots {
		if slot == nil {
			reason := result.halted
			if reason == "" {
				reason = ReasonCancelled
			}
			slot = s.skipTarget(runID, stage, targets[idx], reason)
		}
		result.tasks = append(result.tasks, slot...)
		if hasFailure(slot) {
			result.failedTargets = append(result.failedTargets, targets[idx].ID)
		}
	}

	span.SetAttributes(attribute.Int("failed", len(result.failedTargets)))
	return result
}

// workersFor returns the pool size for a stage, honoring its own cap
func (s *Scheduler) workersFor(stage types.Stage) int {
	if stage.Parallel > 0 {
		return min(s.parallelism, stage.Parallel)
	}
	return s.parallelism
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, runID string, stage types.Stage,
	targets []types.Target, slots [][]*types.ExecutionTask, stop *atomic.Bool, workChan <-chan int) {
	defer wg.Done()

	for idx := range workChan {
		slot := s.runTarget(ctx, runID, stage, targets[idx], stop)
		slots[idx] = slot
		if s.failFast && hasFailure(slot) {
			if stop.CompareAndSwap(false, true) {
				s.log.Warn("Fail-fast triggered, stopping dispatch", "stage", stage.Name, "target", targets[idx].ID)
			}
		}
	}
}

// runTarget runs the target's scenarios one after another. A panic is
// recovered into a failed task so it never escapes the worker.
func (s *Scheduler) runTarget(ctx context.Context, runID string, stage types.Stage, target types.Target, stop *atomic.Bool) (tasks []*types.ExecutionTask) {
	scenarios := s.scenariosFor(stage, target)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.log.Error("Recovered from panic while executing target", "stage", stage.Name, "target", target.ID,
			"panic", r, "stack", string(debug.Stack()))
		metrics.RecordError("worker_panic")

		for i, scenario := range scenarios[len(tasks):] {
			task := types.NewTask(target.ID, stage.Name, scenario)
			if i == 0 {
				task.Reason = fmt.Sprintf("panic: %v", r)
				_ = task.Resolve(types.TaskStatusFailed, s.now())
			} else {
				_ = task.Skip("aborted after panic", s.now())
			}
			tasks = append(tasks, task)
			s.record(task, runID)
		}
	}()

	for _, scenario := range scenarios {
		var task *types.ExecutionTask
		switch {
		case ctx.Err() != nil:
			task = s.skipped(target, stage, scenario, ReasonCancelled)
		case s.failFast && stop.Load():
			task = s.skipped(target, stage, scenario, ReasonFailFast)
		case s.scenario != "" && len(target.Scenarios) > 0 && !target.HasScenario(scenario):
			task = s.skipped(target, stage, scenario, fmt.Sprintf("scenario %s not declared", scenario))
		default:
			if ok, reason := stage.Applies(target, scenario); !ok {
				task = s.skipped(target, stage, scenario, reason)
				break
			}
			key := fmt.Sprintf("%s:%s:%s", stage.Name, target.ID, scenario)
			s.progress.StartTask(key)
			task = s.ensureTerminal(s.executor.Execute(ctx, target, stage, scenario), target, stage, scenario)
			s.progress.UpdateTask(key, task.Status)
		}
		tasks = append(tasks, task)
		s.record(task, runID)
	}
	return tasks
}

// ensureTerminal guards against executors that break their contract
func (s *Scheduler) ensureTerminal(task *types.ExecutionTask, target types.Target, stage types.Stage, scenario string) *types.ExecutionTask {
	if task == nil {
		task = types.NewTask(target.ID, stage.Name, scenario)
		task.Reason = "executor returned no task"
		_ = task.Resolve(types.TaskStatusFailed, s.now())
		return task
	}
	if !task.Status.IsTerminal() {
		task.Reason = fmt.Sprintf("executor returned task in status %s", task.Status)
		_ = task.Resolve(types.TaskStatusFailed, s.now())
	}
	return task
}

func hasFailure(tasks []*types.ExecutionTask) bool {
	for _, t := range tasks {
		if t.Status.IsFailure() {
			return true
		}
	}
	return false
}
