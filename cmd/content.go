/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/source"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Submit and inspect content",
}

var contentSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a draft document (yaml or json) for scheduling",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		publishAtRaw, _ := cmd.Flags().GetString("publish-at")
		submittedBy, _ := cmd.Flags().GetString("by")
		processNow, _ := cmd.Flags().GetBool("now")

		doc, err := source.ReadDraftFile(file)
		if err != nil {
			return errs.Wrapf(err, "read draft %s", file)
		}
		if publishAtRaw != "" {
			if doc.PublishAt, err = parseTimeFlag(publishAtRaw, time.Now()); err != nil {
				return err
			}
		}
		if strings.TrimSpace(submittedBy) != "" {
			doc.SubmittedBy = submittedBy
		}

		result, err := svc.SubmitDraft(ctx, approval.SubmitInput{
			ExternalRef: doc.ExternalRef,
			Draft:       doc.Draft,
			Inputs:      doc.Inputs,
			PublishAt:   doc.PublishAt,
			SubmittedBy: doc.SubmittedBy,
			ProcessNow:  processNow,
		})
		if err != nil {
			logging.Error(ctx, "submit draft failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "submit draft")
		}

		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), result)
		}
		item := result.Item
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tpublish_at=%s\n",
			item.ContentID, item.State, item.ExternalRef, formatTime(item.PublishAt)); err != nil {
			return errs.Wrap(err, "write submit output")
		}
		return nil
	}),
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List content items",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		states, _ := cmd.Flags().GetStringSlice("state")
		contentType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := ports.ContentFilter{Limit: limit}
		for _, state := range states {
			filter.States = append(filter.States, quality.WorkflowState(strings.TrimSpace(state)))
		}
		if strings.TrimSpace(contentType) != "" {
			ct, err := quality.NormalizeContentType(contentType)
			if err != nil {
				return err
			}
			filter.ContentType = ct
		}

		items, err := svc.ListContent(ctx, filter)
		if err != nil {
			return errs.Wrap(err, "list content")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), items)
		}

		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{
				item.ContentID,
				string(item.ContentType),
				string(item.State),
				stepLabel(item),
				formatTime(item.PublishAt),
				orDash(item.FinalizedBy),
				strconv.FormatInt(item.Version, 10),
			})
		}
		return printTable(cmd,
			[]string{"ID", "TYPE", "STATE", "STEP", "PUBLISH AT", "FINALIZED BY", "VERSION"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
		)
	}),
}

var contentShowCmd = &cobra.Command{
	Use:   "show <content-id>",
	Short: "Show a content item with its drafts, steps and history",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		detail, err := svc.GetContentDetail(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "get content")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), detail)
		}

		item := detail.Item
		w := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(w, "%s  %s  %s  (version %d)\nref: %s\npublish_at: %s\n",
			item.ContentID, item.ContentType, item.State, item.Version, item.ExternalRef, formatTime(item.PublishAt)); err != nil {
			return errs.Wrap(err, "write content header")
		}
		if item.StateReason != "" {
			if _, err := fmt.Fprintf(w, "reason: %s\n", item.StateReason); err != nil {
				return errs.Wrap(err, "write content reason")
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return errs.Wrap(err, "write separator")
		}

		draftRows := make([][]string, 0, len(detail.Drafts))
		for _, d := range detail.Drafts {
			decision, score := "-", "-"
			if d.Evaluation != nil {
				decision = string(d.Evaluation.Decision.Value)
				score = formatFloat(d.Evaluation.Breakdown.Overall())
			}
			draftRows = append(draftRows, []string{
				strconv.Itoa(d.Draft.Version), d.Draft.Title, score, decision, d.CreatedBy, formatTime(d.CreatedAt),
			})
		}
		if err := printTable(cmd, []string{"DRAFT", "TITLE", "SCORE", "DECISION", "BY", "CREATED"}, draftRows,
			[]columnAlignment{alignRight, alignLeft, alignRight}); err != nil {
			return err
		}

		if len(detail.Steps) > 0 {
			stepRows := make([][]string, 0, len(detail.Steps))
			for _, step := range detail.Steps {
				stepRows = append(stepRows, []string{
					strconv.Itoa(step.ReviewRound),
					fmt.Sprintf("%d/%d", step.StepNumber, step.TotalSteps),
					step.Approver,
					string(step.Status),
					orDash(step.DecidedBy),
					orDash(step.Comments),
				})
			}
			if err := printTable(cmd, []string{"ROUND", "STEP", "APPROVER", "STATUS", "DECIDED BY", "COMMENTS"}, stepRows, nil); err != nil {
				return err
			}
		}

		eventRows := make([][]string, 0, len(detail.Events))
		for _, ev := range detail.Events {
			eventRows = append(eventRows, []string{
				formatTime(ev.CreatedAt), ev.Actor, ev.Action, orDash(string(ev.FromState)), string(ev.ToState), orDash(ev.Body),
			})
		}
		return printTable(cmd, []string{"AT", "ACTOR", "ACTION", "FROM", "TO", "NOTE"}, eventRows, nil)
	}),
}

var contentEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a draft document without storing it",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		doc, err := source.ReadDraftFile(file)
		if err != nil {
			return errs.Wrapf(err, "read draft %s", file)
		}

		out, err := svc.EvaluateDraft(ctx, approval.EvaluateInput{Draft: doc.Draft, Inputs: doc.Inputs})
		if err != nil {
			return errs.Wrap(err, "evaluate draft")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), out)
		}

		rows := make([][]string, 0, len(out.Breakdown.Scores))
		for _, name := range out.Breakdown.SortedScores() {
			weight := "-"
			if v, ok := out.Breakdown.Weights[name]; ok {
				weight = formatFloat(v)
			}
			rows = append(rows, []string{string(name), formatFloat(out.Breakdown.Scores[name]), weight})
		}
		if err := printTable(cmd, []string{"SUB-SCORE", "SCORE", "WEIGHT"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight}); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(w, "overall %s -> %s (confidence %s), route %s\n",
			formatFloat(out.Overall), out.Decision.Value, formatFloat(out.Decision.Confidence), out.Route.Target); err != nil {
			return errs.Wrap(err, "write evaluation summary")
		}
		for _, reason := range out.Decision.Reasons {
			if _, err := fmt.Fprintf(w, "  - %s\n", reason); err != nil {
				return errs.Wrap(err, "write evaluation reason")
			}
		}
		for _, warning := range out.Decision.Warnings {
			if _, err := fmt.Fprintf(w, "  ! %s\n", warning); err != nil {
				return errs.Wrap(err, "write evaluation warning")
			}
		}
		return nil
	}),
}

func stepLabel(item ports.ContentItem) string {
	if item.State != quality.StatePendingReview {
		return "-"
	}
	return fmt.Sprintf("r%d/s%d", item.ReviewRound, item.CurrentStep)
}

func init() {
	rootCmd.AddCommand(contentCmd)
	contentCmd.AddCommand(contentSubmitCmd, contentListCmd, contentShowCmd, contentEvaluateCmd)

	contentSubmitCmd.Flags().String("file", "", "Draft document (yaml or json)")
	contentSubmitCmd.Flags().String("publish-at", "", "Publish time (RFC 3339 or offset like 2h); overrides the document")
	contentSubmitCmd.Flags().String("by", "", "Submitter; overrides the document")
	contentSubmitCmd.Flags().Bool("now", false, "Evaluate right away when the publish time has passed")
	_ = contentSubmitCmd.MarkFlagRequired("file")

	contentListCmd.Flags().StringSlice("state", nil, "Filter by state (repeatable)")
	contentListCmd.Flags().String("type", "", "Filter by content type")
	contentListCmd.Flags().Int("limit", 50, "Max rows")

	contentEvaluateCmd.Flags().String("file", "", "Draft document (yaml or json)")
	_ = contentEvaluateCmd.MarkFlagRequired("file")
}
