package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/role-ci/notify"
	"github.com/ethereum-optimism/infra/role-ci/reporting"
	"github.com/ethereum-optimism/infra/role-ci/runner"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "ROLE_CI"

// Flags shared by every command
var (
	TargetsDir = &cli.StringFlag{
		Name:    "targets-dir",
		Value:   "roles",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TARGETS_DIR"),
		Usage:   "Root directory scanned for targets",
	}
	ReportsDir = &cli.StringFlag{
		Name:    "reports-dir",
		Value:   "ci/reports",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTS_DIR"),
		Usage:   "Directory where report artifacts are written and read",
	}
	WebhookURL = &cli.StringFlag{
		Name:    "webhook-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WEBHOOK_URL"),
		Usage:   "URL the webhook notification channel posts to",
	}
	NotifyTimeout = &cli.DurationFlag{
		Name:    "notify-timeout",
		Value:   notify.DefaultWebhookTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NOTIFY_TIMEOUT"),
		Usage:   "Timeout for a single notification delivery",
	}
)

// Flags of the run command
var (
	Stage = &cli.StringFlag{
		Name:     "stage",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "STAGE"),
		Usage:    "Stage to run, or 'all' for every stage in order",
	}
	Target = &cli.StringFlag{
		Name:    "target",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TARGET"),
		Usage:   "Only run this target id, or every target under this id prefix",
	}
	Scenario = &cli.StringFlag{
		Name:    "scenario",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCENARIO"),
		Usage:   "Only run this scenario in stages that iterate over scenarios",
	}
	Parallel = &cli.IntFlag{
		Name:    "parallel",
		Value:   runner.DefaultParallelism,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Usage:   "Maximum number of targets executed concurrently within a stage",
		Action: func(_ *cli.Context, v int) error {
			if v < 1 {
				return fmt.Errorf("parallel must be at least 1, got %d", v)
			}
			return nil
		},
	}
	Format = &cli.StringFlag{
		Name:    "format",
		Value:   "json,table",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FORMAT"),
		Usage:   "Comma-separated report formats (json, table, html, junit)",
		Action: func(_ *cli.Context, v string) error {
			_, err := reporting.ParseFormats(v)
			return err
		},
	}
	DryRun = &cli.BoolFlag{
		Name:    "dry-run",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DRY_RUN"),
		Usage:   "Plan every task and report it as skipped without running anything",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_FAST"),
		Usage:   "Stop dispatching new work after the first failure",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   runner.DefaultTaskTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Default per-task timeout for stages that do not declare their own",
	}
	OutputCap = &cli.IntFlag{
		Name:    "output-cap",
		Value:   runner.DefaultOutputCap,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_CAP"),
		Usage:   "Maximum bytes of output kept per task (head and tail are preserved)",
	}
	StagesFile = &cli.StringFlag{
		Name:    "stages",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STAGES"),
		Usage:   "Path to a YAML file with stage definitions. Defaults to lint, syntax and molecule",
	}
	NotifyChannel = &cli.StringFlag{
		Name:    "notify",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NOTIFY"),
		Usage:   "Send a best-effort notification after the run (console or webhook)",
		Action: func(_ *cli.Context, v string) error {
			if v == "" {
				return nil
			}
			_, err := notify.ParseChannel(v)
			return err
		},
	}
	MetricsFile = &cli.StringFlag{
		Name:    "metrics-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_FILE"),
		Usage:   "Write Prometheus metrics in textfile format to this path after the run",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory for per-task output logs. Disabled when empty",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Periodically log the running tasks",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
)

// Flags of the notify command
var (
	Channel = &cli.StringFlag{
		Name:     "channel",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CHANNEL"),
		Usage:    "Notification channel (console or webhook)",
	}
	Status = &cli.StringFlag{
		Name:    "status",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATUS"),
		Usage:   "Status to send. The latest report is used when omitted",
	}
	Message = &cli.StringFlag{
		Name:    "message",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MESSAGE"),
		Usage:   "Message to send together with --status",
	}
)

var GlobalFlags = []cli.Flag{
	TargetsDir,
	ReportsDir,
	WebhookURL,
	NotifyTimeout,
}

var RunFlags = []cli.Flag{
	Stage,
	Target,
	Scenario,
	Parallel,
	Format,
	DryRun,
	FailFast,
	Timeout,
	OutputCap,
	StagesFile,
	NotifyChannel,
	MetricsFile,
	LogDir,
	ShowProgress,
	ProgressInterval,
}

var NotifyFlags = []cli.Flag{
	Channel,
	Status,
	Message,
}

// Flags lists every flag across all commands
var Flags []cli.Flag

func init() {
	GlobalFlags = append(GlobalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, GlobalFlags...)
	Flags = append(Flags, RunFlags...)
	Flags = append(Flags, NotifyFlags...)
}
