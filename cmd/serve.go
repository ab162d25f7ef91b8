/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"contentgate/internal/api"
	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/scheduler"
	"contentgate/internal/usecase/approval"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		withSweeps, _ := cmd.Flags().GetBool("with-sweeps")

		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.Server.Addr
		}
		if token == "" {
			token = app.Config.Server.Token
		}

		// Jobs are always registered so POST /sweeps/{name} works; cron only
		// runs them with --with-sweeps.
		sched, err := scheduler.New(ctx, bootstrap.SweepJobs(app.Config.Sweeps, svc))
		if err != nil {
			return errs.Wrap(err, "create scheduler")
		}
		if withSweeps {
			lock, err := scheduler.AcquireLock(app.Config.Daemon.LockFile)
			if err != nil {
				return errs.Wrap(err, "acquire daemon lock")
			}
			defer func() { _ = lock.Release() }()
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					logging.Warn(ctx, "scheduler stop failed", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           api.NewHandler(svc, sched, api.Options{Token: token}),
			ReadHeaderTimeout: app.Config.Server.ReadHeaderTimeout,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Warn(ctx, "http shutdown failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		logging.Info(ctx, "api server started",
			slog.String("addr", addr),
			slog.Bool("auth", token != ""),
			slog.Bool("sweeps", withSweeps),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "api server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve api")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
	serveCmd.Flags().String("token", "", "Bearer token required on API calls (default server.token)")
	serveCmd.Flags().Bool("with-sweeps", false, "Also run the scheduled sweeps in this process")
}
