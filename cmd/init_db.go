/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/usecase/approval"
)

// initDbCmd represents the initDb command
var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize database schema and load the configured rule pack",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		logging.Info(ctx, "start init-db")

		if err := app.InitSchema(ctx); err != nil {
			logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "initialize schema")
		}

		cfg, err := svc.ActiveEngineConfig(ctx)
		if err != nil {
			return errs.Wrap(err, "seed engine config")
		}

		skipRules, _ := cmd.Flags().GetBool("skip-rules")
		rulesFile := app.Config.Rules.File
		if _, statErr := os.Stat(rulesFile); rulesFile != "" && errors.Is(statErr, os.ErrNotExist) {
			logging.Warn(ctx, "rules file not found, skip loading", slog.String("file", rulesFile))
			skipRules = true
		}
		if !skipRules && rulesFile != "" {
			report, err := svc.LoadRulesFile(ctx, app.Config.Rules.File, "init-db")
			if err != nil {
				logging.Error(ctx, "load rule pack failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "load rule pack")
			}
			logging.Info(ctx, "rule pack loaded",
				slog.String("file", app.Config.Rules.File),
				slog.Int("saved", len(report.Saved)),
				slog.Int("invalid", len(report.Invalid)),
			)
		}

		logging.Info(ctx, "init-db finished", slog.String("database_dsn", app.Config.Database.DSN))
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "database schema initialized: %s (engine config v%d)\n", app.Config.Database.DSN, cfg.Version); err != nil {
			return errs.Wrap(err, "write init-db output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initDbCmd)

	initDbCmd.Flags().Bool("skip-rules", false, "Do not load rules.file")
}
