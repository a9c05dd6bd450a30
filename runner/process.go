package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

var _ CommandRunner = (*ProcessRunner)(nil)

// ProcessRunner runs command lines through the platform shell. Each command
// gets its own process group which is killed as a whole on timeout or
// cancellation, and reaped before Run returns.
type ProcessRunner struct {
	log log.Logger
}

// NewProcessRunner creates a runner that spawns real processes
func NewProcessRunner(logger log.Logger) *ProcessRunner {
	if logger == nil {
		logger = log.Root()
	}
	return &ProcessRunner{log: logger.New("component", "process-runner")}
}

func (p *ProcessRunner) Run(ctx context.Context, c Command) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{ExitCode: -1, Cancelled: true, Err: context.Cause(ctx)}
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	name, args := shellCommand(c.Line)
	cmd := exec.Command(name, args...)
	cmd.Dir = c.Dir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, append(os.Environ(), c.Env...))
	configureProcAttr(cmd)

	// The output pipe is drained here rather than by exec so that Wait
	// returns when the shell exits, even if descendants keep the pipe open.
	pr, pw, err := os.Pipe()
	if err != nil {
		return Outcome{ExitCode: -1, Err: fmt.Errorf("failed to create output pipe: %w", err)}
	}
	defer pr.Close()
	cmd.Stdout = pw
	cmd.Stderr = pw

	start := time.Now()
	err = cmd.Start()
	pw.Close()
	if err != nil {
		return Outcome{ExitCode: -1, Err: err, Duration: time.Since(start)}
	}
	p.log.Debug("Started command", "pid", cmd.Process.Pid, "dir", c.Dir, "command", c.Line)

	output := newOutputBuffer(c.OutputCap)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_, _ = io.Copy(output, pr)
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var (
		waitErr error
		killed  bool
	)
	select {
	case waitErr = <-done:
		// Nothing started by the command may outlive it
		if err := killGroupMembers(cmd.Process.Pid); err != nil {
			p.log.Debug("Failed to kill remaining process group members", "pid", cmd.Process.Pid, "err", err)
		}
	case <-runCtx.Done():
		killed = true
		if err := killProcessGroup(cmd); err != nil {
			p.log.Warn("Failed to kill process group", "pid", cmd.Process.Pid, "err", err)
		}
		waitErr = <-done
	}
	p.drainOutput(pr, drained)

	outcome := Outcome{
		ExitCode:  0,
		Output:    output.String(),
		Truncated: output.Truncated(),
		Duration:  time.Since(start),
	}

	if killed {
		outcome.ExitCode = -1
		if ctx.Err() != nil {
			outcome.Cancelled = true
			outcome.Err = context.Cause(ctx)
		} else {
			outcome.TimedOut = true
		}
		p.log.Debug("Killed command", "pid", cmd.Process.Pid, "timedOut", outcome.TimedOut, "duration", outcome.Duration)
		return outcome
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			outcome.ExitCode = -1
			outcome.Err = waitErr
		}
	}
	return outcome
}

// drainOutput waits for the output copy to reach EOF. Descendants that
// escaped the process group can hold the pipe open indefinitely, so the read
// end is closed after drainDelay.
func (p *ProcessRunner) drainOutput(pr *os.File, drained <-chan struct{}) {
	timer := time.NewTimer(drainDelay)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		p.log.Warn("Output pipe still open after command exit, closing it", "delay", drainDelay)
		pr.Close()
		<-drained
	}
}
