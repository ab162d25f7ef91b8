/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record reviewer feedback and review the adjustments it proposes",
}

var feedbackRecordCmd = &cobra.Command{
	Use:   "record <content-id>",
	Short: "Record reviewer feedback on a content item",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reviewer, _ := cmd.Flags().GetString("reviewer")
		feedbackType, _ := cmd.Flags().GetString("type")
		rating, _ := cmd.Flags().GetInt("rating")
		comment, _ := cmd.Flags().GetString("comment")
		category, _ := cmd.Flags().GetString("category")
		incorrect, _ := cmd.Flags().GetBool("incorrect")
		ruleID, _ := cmd.Flags().GetString("rule")

		ft, err := quality.ParseFeedbackType(feedbackType)
		if err != nil {
			return err
		}

		result, err := svc.RecordFeedback(ctx, approval.FeedbackInput{
			ContentID:       cmd.Flags().Arg(0),
			ReviewerID:      reviewer,
			Type:            ft,
			Rating:          rating,
			Comment:         comment,
			Category:        category,
			DecisionCorrect: !incorrect,
			RuleID:          ruleID,
		})
		if err != nil {
			logging.Error(ctx, "record feedback failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "record feedback")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), result)
		}

		status := "queued"
		if result.Processed {
			status = "processed"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\timpact=%s\t%s\n",
			result.Record.ID, formatFloat(result.Record.ImpactScore), status); err != nil {
			return errs.Wrap(err, "write feedback output")
		}
		return printAdjustments(cmd, result.Adjustments)
	}),
}

var feedbackSuggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "List improvement suggestions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := svc.ListSuggestions(ctx, ports.SuggestionStatus(strings.TrimSpace(status)), limit)
		if err != nil {
			return errs.Wrap(err, "list suggestions")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), items)
		}

		rows := make([][]string, 0, len(items))
		for _, s := range items {
			adj := s.Adjustment
			rows = append(rows, []string{
				s.SuggestionID,
				string(s.Status),
				string(adj.Kind),
				adj.Target,
				formatFloat(adj.OldValue) + " -> " + formatFloat(adj.NewValue),
				formatFloat(adj.Confidence),
				adj.Justification,
			})
		}
		return printTable(cmd,
			[]string{"ID", "STATUS", "KIND", "TARGET", "CHANGE", "CONFIDENCE", "JUSTIFICATION"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		)
	}),
}

var feedbackReviewCmd = &cobra.Command{
	Use:   "review <suggestion-id>",
	Short: "Approve or reject a pending suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		reviewer, _ := cmd.Flags().GetString("reviewer")
		approve, _ := cmd.Flags().GetBool("approve")
		reject, _ := cmd.Flags().GetBool("reject")
		note, _ := cmd.Flags().GetString("note")
		if approve == reject {
			return fmt.Errorf("%w: pass exactly one of --approve or --reject", quality.ErrValidation)
		}

		out, err := svc.ReviewSuggestion(ctx, approval.ReviewInput{
			SuggestionID: cmd.Flags().Arg(0),
			Approve:      approve,
			Reviewer:     reviewer,
			Note:         note,
		})
		if err != nil {
			logging.Error(ctx, "review suggestion failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "review suggestion")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), out)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", out.SuggestionID, out.Status, out.Adjustment.Target); err != nil {
			return errs.Wrap(err, "write review output")
		}
		return nil
	}),
}

var feedbackAdjustmentsCmd = &cobra.Command{
	Use:   "adjustments",
	Short: "List recorded rule and threshold adjustments",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.ListAdjustments(cmd.Context(), limit)
		if err != nil {
			return errs.Wrap(err, "list adjustments")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), items)
		}
		return printAdjustments(cmd, items)
	}),
}

func printAdjustments(cmd *cobra.Command, items []quality.Adjustment) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, adj := range items {
		rows = append(rows, []string{
			string(adj.Kind),
			adj.Target,
			formatFloat(adj.OldValue) + " -> " + formatFloat(adj.NewValue),
			formatFloat(adj.Confidence),
			string(adj.Status),
			orDash(adj.Approver),
			formatTime(adj.CreatedAt),
		})
	}
	return printTable(cmd,
		[]string{"KIND", "TARGET", "CHANGE", "CONFIDENCE", "STATUS", "APPROVER", "AT"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	)
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackRecordCmd, feedbackSuggestionsCmd, feedbackReviewCmd, feedbackAdjustmentsCmd)

	feedbackRecordCmd.Flags().String("reviewer", "", "Reviewer id")
	feedbackRecordCmd.Flags().String("type", string(quality.FeedbackQualityRating), "quality_rating, content_correction, rule_feedback or general_feedback")
	feedbackRecordCmd.Flags().Int("rating", 0, "Rating from 1 to 5")
	feedbackRecordCmd.Flags().String("comment", "", "Free text comment")
	feedbackRecordCmd.Flags().String("category", "", "Sub-score the feedback is about, e.g. fact_check")
	feedbackRecordCmd.Flags().Bool("incorrect", false, "The engine decision was wrong")
	feedbackRecordCmd.Flags().String("rule", "", "Rule id for rule_feedback")
	_ = feedbackRecordCmd.MarkFlagRequired("reviewer")
	_ = feedbackRecordCmd.MarkFlagRequired("rating")

	feedbackSuggestionsCmd.Flags().String("status", string(ports.SuggestionPending), "Filter by status (empty for all)")
	feedbackSuggestionsCmd.Flags().Int("limit", 50, "Max rows")

	feedbackReviewCmd.Flags().String("reviewer", "", "Who reviews the suggestion")
	feedbackReviewCmd.Flags().Bool("approve", false, "Apply the suggestion")
	feedbackReviewCmd.Flags().Bool("reject", false, "Reject the suggestion")
	feedbackReviewCmd.Flags().String("note", "", "Review note")
	_ = feedbackReviewCmd.MarkFlagRequired("reviewer")

	feedbackAdjustmentsCmd.Flags().Int("limit", 50, "Max rows")
}
