package runner

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

// Aggregate folds terminal tasks into a sealed PipelineRun. Stage summaries
// follow stage ordinals; stages without tasks are still listed. It fails if
// any task is not terminal or belongs to an unknown stage.
func Aggregate(runID string, start, end time.Time, stages []types.Stage, tasks []*types.ExecutionTask, dryRun bool) (*types.PipelineRun, error) {
	ordered := slices.Clone(stages)
	slices.SortStableFunc(ordered, func(a, b types.Stage) int {
		return a.Ordinal - b.Ordinal
	})

	byStage := make(map[string][]*types.ExecutionTask, len(ordered))
	for _, s := range ordered {
		if _, dup := byStage[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %s", s.Name)
		}
		byStage[s.Name] = []*types.ExecutionTask{}
	}

	for _, task := range tasks {
		if task == nil {
			return nil, fmt.Errorf("nil task in run %s", runID)
		}
		if !task.Status.IsTerminal() {
			return nil, fmt.Errorf("task %s is not terminal (status %s)", task.Key(), task.Status)
		}
		if _, ok := byStage[task.Stage]; !ok {
			return nil, fmt.Errorf("task %s belongs to unknown stage %s", task.Key(), task.Stage)
		}
		byStage[task.Stage] = append(byStage[task.Stage], task)
	}

	run := types.NewPipelineRun(runID, start, dryRun)
	run.Stages = make([]types.StageSummary, 0, len(ordered))
	for _, s := range ordered {
		summary := summarizeStage(s, byStage[s.Name])
		run.Stats.Total += summary.Stats.Total
		run.Stats.Passed += summary.Stats.Passed
		run.Stats.Failed += summary.Stats.Failed
		run.Stats.Skipped += summary.Stats.Skipped
		run.Stats.TimedOut += summary.Stats.TimedOut
		run.Stages = append(run.Stages, summary)
	}

	if err := run.Seal(end); err != nil {
		return nil, err
	}
	return run, nil
}

func summarizeStage(stage types.Stage, tasks []*types.ExecutionTask) types.StageSummary {
	summary := types.StageSummary{
		Name:          stage.Name,
		Ordinal:       stage.Ordinal,
		Tasks:         tasks,
		FailedTargets: []string{},
	}
	for _, t := range tasks {
		summary.Stats.Add(t.Status)
		if t.Status.IsFailure() {
			summary.FailedTargets = append(summary.FailedTargets, t.Target)
		}
		if !t.StartedAt.IsZero() && (summary.StartedAt.IsZero() || t.StartedAt.Before(summary.StartedAt)) {
			summary.StartedAt = t.StartedAt
		}
		if t.EndedAt.After(summary.EndedAt) {
			summary.EndedAt = t.EndedAt
		}
	}
	slices.SortFunc(summary.FailedTargets, strings.Compare)
	summary.FailedTargets = slices.Compact(summary.FailedTargets)
	summary.Status = summary.Stats.Status()
	return summary
}
