package runner

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedTask(t *testing.T, stage, target, scenario string, status types.TaskStatus, start time.Time, d time.Duration) *types.ExecutionTask {
	t.Helper()
	task := types.NewTask(target, stage, scenario)
	require.NoError(t, task.MarkRunning(start))
	require.NoError(t, task.Resolve(status, start.Add(d)))
	return task
}

func TestAggregate(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lint := mustStage(t, types.StageConfig{Name: "lint", Command: "true"}, 0)
	molecule := mustStage(t, types.StageConfig{Name: "molecule", Command: "true", Scenarios: types.ScenarioModeAll}, 1)

	tasks := []*types.ExecutionTask{
		resolvedTask(t, "molecule", "a/one", "default", types.TaskStatusPassed, start.Add(10*time.Second), time.Second),
		resolvedTask(t, "molecule", "a/one", "ha", types.TaskStatusTimedOut, start.Add(11*time.Second), time.Second),
		resolvedTask(t, "lint", "b/two", "default", types.TaskStatusFailed, start.Add(2*time.Second), time.Second),
		resolvedTask(t, "lint", "a/one", "default", types.TaskStatusPassed, start.Add(time.Second), time.Second),
		resolvedTask(t, "molecule", "a/one", "extra", types.TaskStatusFailed, start.Add(12*time.Second), time.Second),
		resolvedTask(t, "lint", "c/three", "default", types.TaskStatusSkipped, start.Add(3*time.Second), 0),
	}

	// Stages passed out of order are summarized by ordinal
	run, err := Aggregate("run-1", start, start.Add(time.Minute), []types.Stage{molecule, lint}, tasks, false)
	require.NoError(t, err)
	assert.True(t, run.Sealed())
	assert.Equal(t, types.RunStatusFailed, run.Status)
	assert.Equal(t, types.RunStats{Total: 6, Passed: 2, Failed: 3, Skipped: 1, TimedOut: 1}, run.Stats)

	require.Len(t, run.Stages, 2)
	assert.Equal(t, "lint", run.Stages[0].Name)
	assert.Equal(t, []string{"b/two"}, run.Stages[0].FailedTargets)
	assert.Equal(t, types.RunStatusFailed, run.Stages[0].Status)
	assert.Equal(t, start.Add(time.Second), run.Stages[0].StartedAt)
	assert.Equal(t, start.Add(3*time.Second), run.Stages[0].EndedAt)

	assert.Equal(t, "molecule", run.Stages[1].Name)
	assert.Equal(t, []string{"a/one"}, run.Stages[1].FailedTargets, "failing targets are unique")
	assert.Len(t, run.Stages[1].Tasks, 3)
}

func TestAggregateStatus(t *testing.T) {
	start := time.Now()
	lint := mustStage(t, types.StageConfig{Name: "lint", Command: "true"}, 0)

	t.Run("no tasks is unknown", func(t *testing.T) {
		run, err := Aggregate("run", start, start, []types.Stage{lint}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusUnknown, run.Status)
		require.Len(t, run.Stages, 1)
		assert.NotNil(t, run.Stages[0].Tasks)
		assert.NotNil(t, run.Stages[0].FailedTargets)
	})

	t.Run("all skipped is unknown", func(t *testing.T) {
		tasks := []*types.ExecutionTask{resolvedTask(t, "lint", "a/b", "default", types.TaskStatusSkipped, start, 0)}
		run, err := Aggregate("run", start, start, []types.Stage{lint}, tasks, true)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusUnknown, run.Status)
		assert.True(t, run.DryRun)
	})

	t.Run("passed", func(t *testing.T) {
		tasks := []*types.ExecutionTask{resolvedTask(t, "lint", "a/b", "default", types.TaskStatusPassed, start, time.Second)}
		run, err := Aggregate("run", start, start, []types.Stage{lint}, tasks, false)
		require.NoError(t, err)
		assert.Equal(t, types.RunStatusPassed, run.Status)
	})
}

func TestAggregateRejectsInvalidInput(t *testing.T) {
	start := time.Now()
	lint := mustStage(t, types.StageConfig{Name: "lint", Command: "true"}, 0)

	_, err := Aggregate("run", start, start, []types.Stage{lint}, []*types.ExecutionTask{types.NewTask("a/b", "lint", "default")}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")

	stray := resolvedTask(t, "deploy", "a/b", "default", types.TaskStatusPassed, start, 0)
	_, err = Aggregate("run", start, start, []types.Stage{lint}, []*types.ExecutionTask{stray}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")

	_, err = Aggregate("run", start, start, []types.Stage{lint, lint}, nil, false)
	require.Error(t, err)
}
