package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

var _ Executor = (*DryRunExecutor)(nil)

// DryRunExecutor records the command each task would run without running it
type DryRunExecutor struct {
	now func() time.Time
}

func NewDryRunExecutor() *DryRunExecutor {
	return &DryRunExecutor{now: time.Now}
}

func (d *DryRunExecutor) Execute(_ context.Context, target types.Target, stage types.Stage, scenario string) *types.ExecutionTask {
	task := types.NewTask(target.ID, stage.Name, scenario)
	line, err := stage.RenderCommand(target, scenario)
	reason := ReasonDryRun
	if err != nil {
		reason = fmt.Sprintf("%s: rendering command: %v", ReasonDryRun, err)
	}
	task.Command = line
	_ = task.Skip(reason, d.now())
	return task
}
