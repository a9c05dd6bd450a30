package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the derived status of a stage or a whole pipeline run
type RunStatus string

const (
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
	RunStatusUnknown RunStatus = "unknown" // Nothing executed
)

// RunStats tracks task counts. Failed includes timed out tasks; TimedOut is
// the subset of Failed that hit the wall-clock limit.
type RunStats struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	TimedOut int `json:"timed_out"`
}

// Add counts one terminal task status
func (s *RunStats) Add(status TaskStatus) {
	s.Total++
	switch status {
	case TaskStatusPassed:
		s.Passed++
	case TaskStatusFailed:
		s.Failed++
	case TaskStatusTimedOut:
		s.Failed++
		s.TimedOut++
	case TaskStatusSkipped:
		s.Skipped++
	}
}

// Executed returns the number of tasks that actually ran
func (s RunStats) Executed() int {
	return s.Passed + s.Failed
}

// Status derives the run status from the counts
func (s RunStats) Status() RunStatus {
	if s.Failed > 0 {
		return RunStatusFailed
	}
	if s.Executed() == 0 {
		return RunStatusUnknown
	}
	return RunStatusPassed
}

// StageSummary holds the outcome of one stage
type StageSummary struct {
	Name          string           `json:"name"`
	Ordinal       int              `json:"ordinal"`
	Status        RunStatus        `json:"status"`
	Stats         RunStats         `json:"stats"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at"`
	FailedTargets []string         `json:"failed_targets"`
	Tasks         []*ExecutionTask `json:"tasks"`
}

// Duration returns the wall-clock time the stage took
func (s *StageSummary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// HasTarget reports whether any task in the stage belongs to the target
func (s *StageSummary) HasTarget(target string) bool {
	for _, t := range s.Tasks {
		if t.Target == target {
			return true
		}
	}
	return false
}

// PipelineRun is the aggregate root for one invocation of the pipeline
type PipelineRun struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	DryRun    bool           `json:"dry_run"`
	Status    RunStatus      `json:"overall_status"`
	Stats     RunStats       `json:"stats"`
	Stages    []StageSummary `json:"stages"`

	sealed bool
}

// ErrRunSealed is returned when a sealed run is sealed again
var ErrRunSealed = errors.New("pipeline run is already sealed")

// NewPipelineRun creates an unsealed run
func NewPipelineRun(runID string, startedAt time.Time, dryRun bool) *PipelineRun {
	return &PipelineRun{
		RunID:     runID,
		StartedAt: startedAt,
		DryRun:    dryRun,
		Status:    RunStatusUnknown,
	}
}

// Seal finalizes the run. Every task must be terminal.
func (r *PipelineRun) Seal(endedAt time.Time) error {
	if r.sealed {
		return ErrRunSealed
	}
	for i := range r.Stages {
		for _, t := range r.Stages[i].Tasks {
			if !t.Status.IsTerminal() {
				return fmt.Errorf("cannot seal run %s: task %s has status %s", r.RunID, t.Key(), t.Status)
			}
		}
	}
	r.EndedAt = endedAt
	r.Status = r.Stats.Status()
	r.sealed = true
	return nil
}

// Sealed reports whether the run has been sealed
func (r *PipelineRun) Sealed() bool {
	return r.sealed
}

// Duration returns the wall-clock time of the run
func (r *PipelineRun) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Stage returns the summary for a stage by name
func (r *PipelineRun) Stage(name string) (*StageSummary, bool) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i], true
		}
	}
	return nil, false
}

// Tasks returns all tasks in stage order
func (r *PipelineRun) Tasks() []*ExecutionTask {
	var tasks []*ExecutionTask
	for i := range r.Stages {
		tasks = append(tasks, r.Stages[i].Tasks...)
	}
	return tasks
}

// FailedTargets returns "stage: target" pairs for every failure in the run
func (r *PipelineRun) FailedTargets() []string {
	var out []string
	for i := range r.Stages {
		for _, target := range r.Stages[i].FailedTargets {
			out = append(out, r.Stages[i].Name+": "+target)
		}
	}
	return out
}

// MarshalJSON adds the derived duration to the encoded run
func (r *PipelineRun) MarshalJSON() ([]byte, error) {
	type alias PipelineRun
	return json.Marshal(struct {
		*alias
		DurationMS int64 `json:"duration_ms"`
	}{
		alias:      (*alias)(r),
		DurationMS: r.Duration().Milliseconds(),
	})
}

// LoadRun decodes a run previously encoded as JSON. The result is sealed.
func LoadRun(data []byte) (*PipelineRun, error) {
	var run PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding pipeline run: %w", err)
	}
	if run.RunID == "" {
		return nil, errors.New("decoding pipeline run: missing run_id")
	}
	run.sealed = true
	return &run, nil
}
