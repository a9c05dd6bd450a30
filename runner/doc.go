// Package runner schedules role targets through pipeline stages.
//
// The main components are:
//   - Engine: runs one (target, stage, scenario) task through a CommandRunner
//   - ProcessRunner: spawns shell commands in their own process group with a bounded output buffer
//   - DryRunExecutor: resolves tasks as skipped without spawning anything
//   - Scheduler: walks stages in order, dispatching targets to a bounded worker pool
//   - Aggregate: folds terminal tasks into a sealed PipelineRun
//
// A target that fails a stage is excluded from every later stage. Workers only
// write to the result slot they own, and a stage does not start until every
// task of the previous stage is terminal.
package runner
