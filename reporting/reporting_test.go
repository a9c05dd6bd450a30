package reporting

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/stretchr/testify/require"
)

var sampleStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func addTask(t *testing.T, run *types.PipelineRun, stage *types.StageSummary, target, scenario string, status types.TaskStatus, d time.Duration) *types.ExecutionTask {
	t.Helper()
	task := types.NewTask(target, stage.Name, scenario)
	require.NoError(t, task.MarkRunning(stage.StartedAt))
	require.NoError(t, task.Resolve(status, stage.StartedAt.Add(d)))
	if status != types.TaskStatusSkipped {
		task.ExitCode = 0
	}
	stage.Tasks = append(stage.Tasks, task)
	stage.Stats.Add(status)
	run.Stats.Add(status)
	if status.IsFailure() {
		stage.FailedTargets = append(stage.FailedTargets, target)
	}
	return task
}

// sampleRun builds a sealed run with one failing lint target and a
// molecule stage holding a pass, a timeout and a skip
func sampleRun(t *testing.T) *types.PipelineRun {
	t.Helper()
	run := types.NewPipelineRun("run-123", sampleStart, false)
	run.Stages = []types.StageSummary{
		{Name: "lint", Ordinal: 0, StartedAt: sampleStart, EndedAt: sampleStart.Add(2 * time.Second)},
		{Name: "molecule", Ordinal: 1, StartedAt: sampleStart.Add(2 * time.Second), EndedAt: sampleStart.Add(50 * time.Second)},
	}
	lint, molecule := &run.Stages[0], &run.Stages[1]

	addTask(t, run, lint, "a/one", "default", types.TaskStatusPassed, time.Second)
	failed := addTask(t, run, lint, "b/two", "default", types.TaskStatusFailed, 1500*time.Millisecond)
	failed.ExitCode = 2
	failed.Reason = "command failed (exit code 2)"
	failed.Output = "tasks/main.yml:3 <script>alert(1)</script>\n"

	addTask(t, run, molecule, "a/one", "default", types.TaskStatusPassed, 30*time.Second)
	timedOut := addTask(t, run, molecule, "a/one", "ha", types.TaskStatusTimedOut, 10*time.Second)
	timedOut.ExitCode = -1
	timedOut.Reason = "command timed out after 10s"
	skipped := addTask(t, run, molecule, "c/win", "default", types.TaskStatusSkipped, 0)
	skipped.Reason = "platform windows-delegated is skipped"

	for i := range run.Stages {
		run.Stages[i].Status = run.Stages[i].Stats.Status()
	}
	require.NoError(t, run.Seal(sampleStart.Add(time.Minute)))
	return run
}
