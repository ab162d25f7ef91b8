/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/usecase/approval"
)

var engineConfigCmd = &cobra.Command{
	Use:   "engine-config",
	Short: "Inspect and change the versioned scoring configuration",
}

var engineConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active engine config",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		cfg, err := svc.ActiveEngineConfig(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "load engine config")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		return printEngineConfig(cmd, cfg)
	}),
}

var engineConfigHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List engine config versions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		limit, _ := cmd.Flags().GetInt("limit")
		versions, err := svc.ListEngineConfigs(cmd.Context(), limit)
		if err != nil {
			return errs.Wrap(err, "list engine configs")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), versions)
		}

		rows := make([][]string, 0, len(versions))
		for _, v := range versions {
			rows = append(rows, []string{strconv.Itoa(v.Config.Version), v.CreatedBy, orDash(v.Reason), formatTime(v.CreatedAt)})
		}
		return printTable(cmd, []string{"VERSION", "BY", "REASON", "AT"}, rows, []columnAlignment{alignRight})
	}),
}

var engineConfigSetCmd = &cobra.Command{
	Use:   "set <target> <value>",
	Short: "Set a threshold or weight, e.g. auto_approve 92 or fact_check_weight 0.3",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		value, err := strconv.ParseFloat(cmd.Flags().Arg(1), 64)
		if err != nil {
			return fmt.Errorf("%w: value %q is not a number", quality.ErrValidation, cmd.Flags().Arg(1))
		}
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")

		cfg, err := svc.UpdateEngineConfig(ctx, approval.UpdateEngineConfigInput{
			Target: cmd.Flags().Arg(0),
			Value:  value,
			Actor:  actor,
			Reason: reason,
		})
		if err != nil {
			logging.Error(ctx, "update engine config failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "update engine config")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		return printEngineConfig(cmd, cfg)
	}),
}

func printEngineConfig(cmd *cobra.Command, cfg quality.EngineConfig) error {
	th := cfg.Thresholds
	if _, err := fmt.Fprintf(cmd.OutOrStdout(),
		"version %d\nauto_approve %s  auto_reject %s  conditional_low %s  adjustment_confidence %s\n",
		cfg.Version, formatFloat(th.AutoApprove), formatFloat(th.AutoReject),
		formatFloat(th.ConditionalLow), formatFloat(th.AdjustmentConfidence)); err != nil {
		return errs.Wrap(err, "write engine config")
	}

	names := make([]quality.SubScore, 0, len(quality.BaseSubScores)+len(quality.ExtendedSubScores))
	names = append(names, quality.BaseSubScores...)
	names = append(names, quality.ExtendedSubScores...)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		weight, floor := "-", "-"
		if v, ok := cfg.Weights[name]; ok {
			weight = formatFloat(v)
		}
		if v, ok := cfg.Floors[name]; ok {
			floor = formatFloat(v)
		}
		rows = append(rows, []string{string(name), weight, formatFloat(cfg.Ceiling(name)), floor})
	}
	slices.SortStableFunc(rows, func(a, b []string) int {
		// weighted sub-scores first
		if (a[1] == "-") != (b[1] == "-") {
			if a[1] == "-" {
				return 1
			}
			return -1
		}
		return 0
	})
	return printTable(cmd, []string{"SUB-SCORE", "WEIGHT", "CEILING", "FLOOR"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})
}

func init() {
	rootCmd.AddCommand(engineConfigCmd)
	engineConfigCmd.AddCommand(engineConfigShowCmd, engineConfigHistoryCmd, engineConfigSetCmd)

	engineConfigHistoryCmd.Flags().Int("limit", 20, "Max rows")

	engineConfigSetCmd.Flags().String("actor", "", "Who makes the change")
	engineConfigSetCmd.Flags().String("reason", "", "Why the value changes")
	_ = engineConfigSetCmd.MarkFlagRequired("actor")
}
