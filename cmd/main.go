package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	roleci "github.com/ethereum-optimism/infra/role-ci"
	"github.com/ethereum-optimism/infra/role-ci/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	code := roleci.ExitCode(err)
	if err != nil && !roleci.IsPipelineFailureError(err) {
		log.Error("Application failed", "message", err, "exitCode", code)
	}
	shutdown()
	os.Exit(code)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "role-ci"
	app.Usage = "Staged CI pipeline for configuration-management roles"
	app.Description = "role-ci discovers roles, runs lint, syntax and molecule stages against them in parallel and reports the results"
	app.Flags = cliapp.ProtectFlags(flags.GlobalFlags)
	// Exit codes are derived from the returned error in main
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run the selected stages against the discovered targets",
			Flags:  cliapp.ProtectFlags(flags.RunFlags),
			Action: cliapp.LifecycleCmd(runPipeline),
		},
		{
			Name:   "list-targets",
			Usage:  "Print the discovered targets, one per line",
			Action: listTargets,
		},
		{
			Name:   "notify",
			Usage:  "Send a pipeline summary to a notification channel",
			Flags:  cliapp.ProtectFlags(flags.NotifyFlags),
			Action: sendNotification,
		},
	}
	return app
}

// setupLogger installs the logger configured by the log.* flags
func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func runPipeline(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := roleci.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, roleci.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	pipeline, err := roleci.New(cfg, ctx.App.Writer, closeApp)
	if err != nil {
		return nil, roleci.NewRuntimeError(fmt.Errorf("failed to create pipeline: %w", err))
	}
	return pipeline, nil
}
