package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	roleci "github.com/ethereum-optimism/infra/role-ci"
	"github.com/ethereum-optimism/infra/role-ci/flags"
	"github.com/ethereum-optimism/infra/role-ci/notify"
	"github.com/ethereum-optimism/infra/role-ci/registry"
)

// listTargets prints one line per target. Zero targets is not an error.
func listTargets(ctx *cli.Context) error {
	logger := setupLogger(ctx)

	dir, err := filepath.Abs(ctx.String(flags.TargetsDir.Name))
	if err != nil {
		return roleci.NewRuntimeError(err)
	}
	reg, err := registry.NewRegistry(registry.Config{Log: logger, TargetsDir: dir})
	if err != nil {
		return roleci.NewRuntimeError(err)
	}
	targets, err := reg.Targets()
	if err != nil {
		return roleci.NewRuntimeError(err)
	}

	for _, t := range targets {
		fmt.Fprintf(ctx.App.Writer, "%s %s %s\n", t.ID, t.Platform, strings.Join(t.Scenarios, ","))
	}
	logger.Debug("Listed targets", "count", len(targets))
	return nil
}

// sendNotification relays an explicit status or the latest report. Only a
// misconfigured channel is an error; delivery problems are logged.
func sendNotification(ctx *cli.Context) error {
	logger := setupLogger(ctx)

	notifier, err := notify.New(notify.Config{
		Channel:    notify.Channel(ctx.String(flags.Channel.Name)),
		WebhookURL: ctx.String(flags.WebhookURL.Name),
		Timeout:    ctx.Duration(flags.NotifyTimeout.Name),
		Console:    ctx.App.Writer,
		Log:        logger,
	})
	if err != nil {
		return roleci.NewRuntimeError(fmt.Errorf("notification channel misconfigured: %w", err))
	}

	msg, err := notificationMessage(ctx)
	if err != nil {
		logger.Warn("Nothing to notify", "err", err)
		return nil
	}

	if err := notifier.Notify(ctx.Context, msg); err != nil {
		logger.Warn("Failed to deliver notification", "channel", ctx.String(flags.Channel.Name), "err", err)
		return nil
	}
	logger.Info("Notification sent", "channel", ctx.String(flags.Channel.Name), "status", msg.Status)
	return nil
}

func notificationMessage(ctx *cli.Context) (notify.Message, error) {
	status := ctx.String(flags.Status.Name)
	if status == "" {
		if ctx.String(flags.Message.Name) != "" {
			return notify.Message{}, errors.New("--message requires --status")
		}
		dir, err := filepath.Abs(ctx.String(flags.ReportsDir.Name))
		if err != nil {
			return notify.Message{}, err
		}
		return notify.MessageFromLatest(dir)
	}

	message := ctx.String(flags.Message.Name)
	if message == "" {
		message = "Pipeline " + status
	}
	return notify.Message{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}, nil
}
