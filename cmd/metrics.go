/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/usecase/approval"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Decision performance metrics",
}

var metricsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored metrics, or compute a fresh window with --compute",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		compute, _ := cmd.Flags().GetBool("compute")
		window, _ := cmd.Flags().GetDuration("window")
		limit, _ := cmd.Flags().GetInt("limit")

		var (
			metrics []quality.PerformanceMetrics
			err     error
		)
		if compute {
			if window <= 0 {
				window = app.Config.Sweeps.MetricsWindow
			}
			metrics, err = svc.ComputePerformanceMetrics(cmd.Context(), approval.MetricsInput{
				Window:      window,
				TopWarnings: app.Config.Sweeps.MetricsTopWarnings,
			})
		} else {
			metrics, err = svc.ListMetrics(cmd.Context(), limit)
		}
		if err != nil {
			return errs.Wrap(err, "load metrics")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), metrics)
		}

		rows := make([][]string, 0, len(metrics))
		for _, m := range metrics {
			warnings := make([]string, 0, len(m.TopWarnings))
			for _, w := range m.TopWarnings {
				warnings = append(warnings, w.Warning+" ("+strconv.Itoa(w.Count)+")")
			}
			rows = append(rows, []string{
				m.Agent,
				string(m.ContentType),
				formatTime(m.WindowStart) + " .. " + formatTime(m.WindowEnd),
				strconv.Itoa(m.Decisions),
				strconv.Itoa(m.Validated),
				formatFloat(m.Accuracy),
				formatFloat(m.FalsePositiveRate),
				formatFloat(m.FalseNegativeRate),
				orDash(strings.Join(warnings, "; ")),
			})
		}
		return printTable(cmd,
			[]string{"AGENT", "TYPE", "WINDOW", "DECISIONS", "VALIDATED", "ACCURACY", "FP RATE", "FN RATE", "TOP WARNINGS"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		)
	}),
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsShowCmd)

	metricsShowCmd.Flags().Bool("compute", false, "Compute and store metrics for the window ending now")
	metricsShowCmd.Flags().Duration("window", 0, "Window for --compute (default sweeps.metrics_window)")
	metricsShowCmd.Flags().Int("limit", 50, "Max stored rows")
}
