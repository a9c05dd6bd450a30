package roleci

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/role-ci/flags"
	"github.com/ethereum-optimism/infra/role-ci/notify"
	"github.com/ethereum-optimism/infra/role-ci/reporting"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the configuration of a pipeline run
type Config struct {
	TargetsDir       string
	ReportsDir       string
	StagesFile       string // Empty means the built-in stages
	Stage            string
	Target           string
	Scenario         string
	Parallelism      int
	Formats          []reporting.Format
	DryRun           bool
	FailFast         bool
	DefaultTimeout   time.Duration // Applies to stages without their own timeout
	OutputCap        int
	NotifyChannel    notify.Channel // Empty disables the post-run notification
	WebhookURL       string
	NotifyTimeout    time.Duration
	MetricsFile      string
	LogDir           string
	ShowProgress     bool
	ProgressInterval time.Duration
	Log              log.Logger
}

// NewConfig creates a new Config from the run command's cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	stage := ctx.String(flags.Stage.Name)
	if stage == "" {
		return nil, errors.New("stage is required")
	}

	parallelism := ctx.Int(flags.Parallel.Name)
	if parallelism < 1 {
		return nil, fmt.Errorf("parallel must be at least 1, got %d", parallelism)
	}

	formats, err := reporting.ParseFormats(ctx.String(flags.Format.Name))
	if err != nil {
		return nil, err
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	outputCap := ctx.Int(flags.OutputCap.Name)
	if outputCap <= 0 {
		return nil, fmt.Errorf("output cap must be positive, got %d", outputCap)
	}

	var channel notify.Channel
	if raw := ctx.String(flags.NotifyChannel.Name); raw != "" {
		channel, err = notify.ParseChannel(raw)
		if err != nil {
			return nil, err
		}
	}
	webhookURL := ctx.String(flags.WebhookURL.Name)
	if channel == notify.ChannelWebhook && webhookURL == "" {
		return nil, fmt.Errorf("--notify webhook: %w", notify.ErrMissingWebhookURL)
	}

	cfg := &Config{
		Stage:            stage,
		Target:           ctx.String(flags.Target.Name),
		Scenario:         ctx.String(flags.Scenario.Name),
		Parallelism:      parallelism,
		Formats:          formats,
		DryRun:           ctx.Bool(flags.DryRun.Name),
		FailFast:         ctx.Bool(flags.FailFast.Name),
		DefaultTimeout:   timeout,
		OutputCap:        outputCap,
		NotifyChannel:    channel,
		WebhookURL:       webhookURL,
		NotifyTimeout:    ctx.Duration(flags.NotifyTimeout.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Log:              log,
	}

	// Resolve the absolute paths
	paths := []struct {
		name string
		in   string
		out  *string
	}{
		{"targets directory", ctx.String(flags.TargetsDir.Name), &cfg.TargetsDir},
		{"reports directory", ctx.String(flags.ReportsDir.Name), &cfg.ReportsDir},
		{"stages file", ctx.String(flags.StagesFile.Name), &cfg.StagesFile},
		{"metrics file", ctx.String(flags.MetricsFile.Name), &cfg.MetricsFile},
		{"log directory", ctx.String(flags.LogDir.Name), &cfg.LogDir},
	}
	for _, p := range paths {
		if p.in == "" {
			continue
		}
		abs, err := filepath.Abs(p.in)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for %s '%s': %w", p.name, p.in, err)
		}
		*p.out = abs
	}
	if cfg.TargetsDir == "" {
		return nil, errors.New("targets directory is required")
	}
	if cfg.ReportsDir == "" {
		return nil, errors.New("reports directory is required")
	}

	return cfg, nil
}
