/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"contentgate/internal/bootstrap"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/source"
	"contentgate/internal/usecase/approval"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Approve, reject, schedule, edit or cancel content",
}

var workflowActionHelp = map[quality.WorkflowAction]string{
	quality.WorkflowApprove:  "Approve the open review step",
	quality.WorkflowReject:   "Reject content under review (requires --reason)",
	quality.WorkflowSchedule: "Move content to a new publish time (requires --publish-at)",
	quality.WorkflowEdit:     "Replace the draft (requires --file)",
	quality.WorkflowCancel:   "Cancel content that is not yet published",
}

func newWorkflowActionCmd(action quality.WorkflowAction) *cobra.Command {
	c := &cobra.Command{
		Use:   string(action) + " <content-id>",
		Short: workflowActionHelp[action],
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
			ctx := logging.WithAttrs(cmd.Context(),
				slog.String("command", cmd.CommandPath()),
				slog.String("content_id", cmd.Flags().Arg(0)),
			)

			input, err := advanceInputFromFlags(cmd, action)
			if err != nil {
				return err
			}
			input.ContentID = cmd.Flags().Arg(0)

			snapshot, err := svc.AdvanceWorkflow(ctx, input)
			if err != nil {
				logging.Error(ctx, "advance workflow failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrapf(err, "%s content", action)
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), snapshot)
			}

			line := fmt.Sprintf("%s\t%s\tversion=%d", snapshot.Item.ContentID, snapshot.Item.State, snapshot.Item.Version)
			if step := snapshot.OpenStep; step != nil {
				line += fmt.Sprintf("\tnext=%s (step %d/%d)", step.Approver, step.StepNumber, step.TotalSteps)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
				return errs.Wrap(err, "write workflow output")
			}
			return nil
		}),
	}

	c.Flags().String("actor", "", "Who performs the action")
	c.Flags().String("comment", "", "Comment stored with the step and history")
	c.Flags().Int64("expected-version", 0, "Fail unless the item is at this version")
	_ = c.MarkFlagRequired("actor")

	switch action {
	case quality.WorkflowReject, quality.WorkflowCancel:
		c.Flags().String("reason", "", "Reason recorded on the item")
	case quality.WorkflowSchedule:
		c.Flags().String("publish-at", "", "New publish time (RFC 3339 or offset like 2h)")
		c.Flags().Bool("rescore", false, "Evaluate the draft again at publish time")
	case quality.WorkflowEdit:
		c.Flags().String("file", "", "Replacement draft document (yaml or json)")
	}
	return c
}

func advanceInputFromFlags(cmd *cobra.Command, action quality.WorkflowAction) (approval.AdvanceInput, error) {
	actor, _ := cmd.Flags().GetString("actor")
	comment, _ := cmd.Flags().GetString("comment")
	expected, _ := cmd.Flags().GetInt64("expected-version")

	input := approval.AdvanceInput{
		Action:          action,
		Actor:           actor,
		Comment:         comment,
		ExpectedVersion: expected,
	}

	switch action {
	case quality.WorkflowReject, quality.WorkflowCancel:
		input.Reason, _ = cmd.Flags().GetString("reason")
	case quality.WorkflowSchedule:
		raw, _ := cmd.Flags().GetString("publish-at")
		publishAt, err := parseTimeFlag(raw, time.Now())
		if err != nil {
			return approval.AdvanceInput{}, err
		}
		input.PublishAt = publishAt
		input.Rescore, _ = cmd.Flags().GetBool("rescore")
	case quality.WorkflowEdit:
		file, _ := cmd.Flags().GetString("file")
		if strings.TrimSpace(file) == "" {
			return approval.AdvanceInput{}, fmt.Errorf("%w: --file is required for edit", quality.ErrValidation)
		}
		doc, err := source.ReadDraftFile(file)
		if err != nil {
			return approval.AdvanceInput{}, errs.Wrapf(err, "read draft %s", file)
		}
		input.Draft = &doc.Draft
		input.Inputs = &doc.Inputs
	}
	return input, nil
}

var workflowBulkCmd = &cobra.Command{
	Use:   "bulk <action> <content-id>...",
	Short: "Apply approve, reject, schedule or cancel to several items",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *approval.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		action, err := quality.ParseWorkflowAction(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")
		comment, _ := cmd.Flags().GetString("comment")
		rescore, _ := cmd.Flags().GetBool("rescore")
		publishAtRaw, _ := cmd.Flags().GetString("publish-at")
		publishAt, err := parseTimeFlag(publishAtRaw, time.Now())
		if err != nil {
			return err
		}

		results, err := svc.BulkAdvance(ctx, approval.BulkInput{
			ContentIDs: cmd.Flags().Args()[1:],
			Action:     action,
			Actor:      actor,
			Reason:     reason,
			Comment:    comment,
			PublishAt:  publishAt,
			Rescore:    rescore,
		})
		if err != nil {
			return errs.Wrap(err, "bulk advance")
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), results)
		}

		rows := make([][]string, 0, len(results))
		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
			rows = append(rows, []string{r.ContentID, orDash(string(r.State)), orDash(string(r.ErrorKind)), orDash(r.Error)})
		}
		if err := printTable(cmd, []string{"ID", "STATE", "KIND", "ERROR"}, rows, nil); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d items failed", failed, len(results))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	for _, action := range []quality.WorkflowAction{
		quality.WorkflowApprove,
		quality.WorkflowReject,
		quality.WorkflowSchedule,
		quality.WorkflowEdit,
		quality.WorkflowCancel,
	} {
		workflowCmd.AddCommand(newWorkflowActionCmd(action))
	}
	workflowCmd.AddCommand(workflowBulkCmd)

	workflowBulkCmd.Flags().String("actor", "", "Who performs the action")
	workflowBulkCmd.Flags().String("reason", "", "Reason for reject or cancel")
	workflowBulkCmd.Flags().String("comment", "", "Comment stored with each item")
	workflowBulkCmd.Flags().String("publish-at", "", "Publish time for schedule")
	workflowBulkCmd.Flags().Bool("rescore", false, "Evaluate again at publish time")
	_ = workflowBulkCmd.MarkFlagRequired("actor")
}
