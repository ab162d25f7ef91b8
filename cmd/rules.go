/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the business rule pack",
}

var rulesLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load a rule pack; changed rules become new versions",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file := app.Config.Rules.File
		if cmd.Flags().NArg() > 0 {
			file = cmd.Flags().Arg(0)
		}
		actor, _ := cmd.Flags().GetString("actor")

		report, err := svc.LoadRulesFile(ctx, file, actor)
		if err != nil {
			logging.Error(ctx, "load rules failed", slog.String("file", file), slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "load rules")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), report)
		}

		w := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(w, "saved: %d  unchanged: %d  invalid: %d\n",
			len(report.Saved), len(report.Unchanged), len(report.Invalid)); err != nil {
			return errs.Wrap(err, "write rules summary")
		}
		for _, skipped := range report.Invalid {
			if _, err := fmt.Fprintf(w, "  ! %s: %s\n", skipped.ID, skipped.Reason); err != nil {
				return errs.Wrap(err, "write invalid rule")
			}
		}
		return nil
	}),
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current rule versions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		all, _ := cmd.Flags().GetBool("all")
		history, _ := cmd.Flags().GetString("history")

		var (
			rules []ports.RuleVersion
			err   error
		)
		if strings.TrimSpace(history) != "" {
			rules, err = svc.RuleHistory(cmd.Context(), history)
		} else {
			rules, err = svc.ListRules(cmd.Context(), all)
		}
		if err != nil {
			return errs.Wrap(err, "list rules")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), rules)
		}

		rows := make([][]string, 0, len(rules))
		for _, r := range rules {
			def := r.Definition
			superseded := "-"
			if r.SupersededAt != nil {
				superseded = formatTime(*r.SupersededAt)
			}
			rows = append(rows, []string{
				def.ID,
				orDash(def.Name),
				string(def.Type),
				strconv.Itoa(def.Priority),
				strconv.Itoa(def.Version),
				strconv.FormatBool(def.IsActive()),
				r.CreatedBy,
				superseded,
			})
		}
		return printTable(cmd,
			[]string{"ID", "NAME", "TYPE", "PRIORITY", "VERSION", "ACTIVE", "BY", "SUPERSEDED"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		)
	}),
}

// rulesSchemaCmd needs no database, so it skips withApp.
var rulesSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the rule pack format",
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := approval.RuleSchema()
		if err != nil {
			return errs.Wrap(err, "build rule schema")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw)); err != nil {
			return errs.Wrap(err, "write rule schema")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLoadCmd, rulesListCmd, rulesSchemaCmd)

	rulesLoadCmd.Flags().String("actor", "cli", "Recorded as the author of new rule versions")

	rulesListCmd.Flags().Bool("all", false, "Include inactive rules")
	rulesListCmd.Flags().String("history", "", "Show every version of one rule")
}
