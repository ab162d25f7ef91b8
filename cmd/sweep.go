/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/usecase/approval"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run background sweeps once",
}

var sweepRunCmd = &cobra.Command{
	Use:       "run <schedule|ingest|feedback|metrics|all>",
	Short:     "Run one sweep now, or all of them in order",
	Args:      cobra.ExactArgs(1),
	ValidArgs: append(slices.Clone(bootstrap.SweepNames), "all"),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		jobs := bootstrap.SweepJobs(app.Config.Sweeps, svc)
		names := []string{cmd.Flags().Arg(0)}
		if names[0] == "all" {
			names = bootstrap.SweepNames
		}

		for _, name := range names {
			job, err := bootstrap.FindSweep(jobs, name)
			if err != nil {
				return err
			}
			jobCtx := logging.WithAttrs(ctx, slog.String("job", name))
			if err := job.Run(jobCtx); err != nil {
				logging.Error(jobCtx, "sweep failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrapf(err, "run %s sweep", name)
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s sweep completed\n", name); err != nil {
				return errs.Wrap(err, "write sweep output")
			}
		}
		return nil
	}),
}

var sweepStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when each sweep last ran",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		status, err := svc.SweepStatus(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "read sweep status")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), status)
		}
		rows := make([][]string, 0, len(bootstrap.SweepNames))
		for _, name := range bootstrap.SweepNames {
			rows = append(rows, []string{name, orDash(status[name])})
		}
		return printTable(cmd, []string{"SWEEP", "LAST RUN"}, rows, nil)
	}),
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepRunCmd, sweepStatusCmd)
}
