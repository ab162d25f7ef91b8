/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/scheduler"
	"contentgate/internal/infrastructure/source"
	"contentgate/internal/usecase/approval"
)

const (
	inboxDebounce   = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduled sweeps until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		lock, err := scheduler.AcquireLock(app.Config.Daemon.LockFile)
		if err != nil {
			if errors.Is(err, scheduler.ErrLocked) {
				logging.Error(ctx, "another daemon is running", slog.String("lock_file", app.Config.Daemon.LockFile))
			}
			return errs.Wrap(err, "acquire daemon lock")
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logging.Warn(ctx, "release daemon lock failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		sched, err := scheduler.New(ctx, bootstrap.SweepJobs(app.Config.Sweeps, svc))
		if err != nil {
			return errs.Wrap(err, "create scheduler")
		}
		sched.Start()

		if app.Config.Daemon.WatchInbox && app.Config.Sources.InboxDir != "" {
			go func() {
				err := source.WatchInbox(ctx, app.Config.Sources.InboxDir, inboxDebounce, func(context.Context) {
					if err := sched.Trigger(bootstrap.SweepIngest); err != nil {
						logging.Debug(ctx, "inbox ingest not triggered", slog.Any("err", errs.Loggable(err)))
					}
				})
				if err != nil {
					logging.Error(ctx, "inbox watcher stopped", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}

		logging.Info(ctx, "daemon started", slog.String("lock_file", lock.Path()))
		<-ctx.Done()
		logging.Info(ctx, "daemon stopping")

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	}),
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
