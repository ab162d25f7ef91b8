package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

// AdvanceInput is one workflow action. Reason is required for reject,
// PublishAt for schedule and Draft for edit.
type AdvanceInput struct {
	ContentID string
	Action    quality.WorkflowAction
	Actor     string
	Reason    string
	Comment   string
	PublishAt time.Time
	// Rescore makes a schedule action evaluate the draft again at publish time.
	Rescore bool
	// ExpectedVersion, when set, must equal the stored item version.
	ExpectedVersion int64
	Draft           *quality.Draft
	Inputs          *quality.SignalInputs
}

type WorkflowSnapshot struct {
	Item     ports.ContentItem   `json:"item"`
	OpenStep *ports.WorkflowStep `json:"open_step,omitempty"`
	Decision *quality.Decision   `json:"decision,omitempty"`
}

// AdvanceWorkflow applies one action to a content item under an optimistic
// version check.
func (s *Service) AdvanceWorkflow(ctx context.Context, input AdvanceInput) (WorkflowSnapshot, error) {
	if err := s.check(ctx); err != nil {
		return WorkflowSnapshot{}, err
	}
	actor, err := requireActor(input.Actor)
	if err != nil {
		return WorkflowSnapshot{}, err
	}
	input.Actor = actor
	input.ContentID = strings.TrimSpace(input.ContentID)
	if input.ContentID == "" {
		return WorkflowSnapshot{}, fmt.Errorf("%w: content id is required", quality.ErrValidation)
	}
	action, err := quality.ParseWorkflowAction(string(input.Action))
	if err != nil {
		return WorkflowSnapshot{}, err
	}
	input.Action = action
	input.Reason = strings.TrimSpace(input.Reason)

	switch action {
	case quality.WorkflowReject:
		if input.Reason == "" {
			return WorkflowSnapshot{}, fmt.Errorf("%w: reject requires a reason", quality.ErrValidation)
		}
	case quality.WorkflowSchedule:
		if input.PublishAt.IsZero() {
			return WorkflowSnapshot{}, fmt.Errorf("%w: schedule requires a publish time", quality.ErrValidation)
		}
	case quality.WorkflowEdit:
		if input.Draft == nil {
			return WorkflowSnapshot{}, fmt.Errorf("%w: edit requires a draft", quality.ErrValidation)
		}
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"),
		slog.String("content_id", input.ContentID),
		slog.String("action", string(action)),
		slog.String("actor", actor),
	)

	var (
		snapshot WorkflowSnapshot
		request  *ports.ApprovalRequest
	)
	err = s.uow.WithTx(logCtx, func(txCtx context.Context) error {
		item, err := s.store.GetContent(txCtx, input.ContentID)
		if err != nil {
			return err
		}
		if input.ExpectedVersion > 0 && item.Version != input.ExpectedVersion {
			return fmt.Errorf("%w: content %s is at version %d, expected %d",
				quality.ErrConcurrencyConflict, item.ContentID, item.Version, input.ExpectedVersion)
		}
		if err := quality.CheckTransition(item.State, action); err != nil {
			return err
		}

		step, hasStep, err := s.store.GetOpenStep(txCtx, item.ContentID)
		if err != nil {
			return err
		}
		if item.State == quality.StatePendingReview && !hasStep {
			return fmt.Errorf("%w: content %s has no open approval step", quality.ErrConcurrencyConflict, item.ContentID)
		}

		now := s.nowUTC()
		from := item.State
		t := transition{item: item, step: step, hasStep: hasStep, now: now}

		switch action {
		case quality.WorkflowApprove:
			err = s.approve(txCtx, &t, input)
		case quality.WorkflowReject:
			err = s.closeWith(txCtx, &t, input, quality.StateRejected)
		case quality.WorkflowCancel:
			err = s.closeWith(txCtx, &t, input, quality.StateCancelled)
		case quality.WorkflowSchedule:
			err = s.schedule(txCtx, &t, input)
		case quality.WorkflowEdit:
			err = s.edit(txCtx, &t, input)
		}
		if err != nil {
			return err
		}

		t.item.UpdatedAt = now
		updated, err := s.store.UpdateContent(txCtx, t.item)
		if err != nil {
			return err
		}

		body := input.Reason
		if body == "" {
			body = input.Comment
		}
		if t.note != "" {
			body = strings.TrimSpace(body + " " + t.note)
		}
		if err := s.store.AppendEvent(txCtx, ports.WorkflowEvent{
			ContentID: updated.ContentID,
			Actor:     actor,
			Action:    string(action),
			FromState: from,
			ToState:   updated.State,
			Body:      body,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		snapshot = WorkflowSnapshot{Item: updated, Decision: t.decision}
		if t.next != nil {
			snapshot.OpenStep = t.next
		} else if hasStep && updated.State == quality.StatePendingReview {
			open := t.step
			snapshot.OpenStep = &open
		}
		request = t.request
		return nil
	})
	if err != nil {
		return WorkflowSnapshot{}, translateStoreError(err)
	}

	logging.Info(logCtx, "workflow advanced", slog.String("state", string(snapshot.Item.State)))
	s.cacheStatus(logCtx, snapshot.Item)
	s.notifyBestEffort(logCtx, request)
	return snapshot, nil
}

// transition carries the in-flight changes of one AdvanceWorkflow call.
type transition struct {
	item    ports.ContentItem
	step    ports.WorkflowStep
	hasStep bool
	now     time.Time

	next     *ports.WorkflowStep
	request  *ports.ApprovalRequest
	decision *quality.Decision
	note     string
}

func (s *Service) approve(txCtx context.Context, t *transition, input AdvanceInput) error {
	if !strings.EqualFold(t.step.Approver, input.Actor) {
		return fmt.Errorf("%w: step %d of %d is assigned to %s",
			quality.ErrValidation, t.step.StepNumber, t.step.TotalSteps, t.step.Approver)
	}
	if err := s.store.DecideStep(txCtx, t.step.StepID, quality.StepApproved, input.Actor, input.Comment, t.now); err != nil {
		return err
	}

	if t.step.StepNumber < t.step.TotalSteps {
		number := t.step.StepNumber + 1
		next, err := s.store.CreateStep(txCtx, ports.WorkflowStep{
			ContentID:   t.item.ContentID,
			DraftID:     t.step.DraftID,
			ReviewRound: t.step.ReviewRound,
			StepNumber:  number,
			TotalSteps:  t.step.TotalSteps,
			Approver:    s.profile.PolicyFor(t.item.ContentType).ApproverForStep(number),
			CreatedAt:   t.now,
		})
		if err != nil {
			return err
		}
		t.item.CurrentStep = number
		t.next = &next

		stored, err := s.store.GetDraft(txCtx, next.DraftID)
		if err != nil {
			return err
		}
		var decision quality.Decision
		if stored.Evaluation != nil {
			decision = stored.Evaluation.Decision
		}
		t.request = approvalRequest(stored.Draft, next, decision)
		t.note = fmt.Sprintf("step %d of %d assigned to %s", number, next.TotalSteps, next.Approver)
		return nil
	}

	t.item.FinalizedBy = input.Actor
	t.item.CurrentStep = 0
	t.item.StateReason = ""
	if t.item.PublishAt.After(t.now) {
		t.item.State = quality.StateApproved
		return nil
	}
	publish(&t.item, t.now, input.Actor)
	return nil
}

func (s *Service) closeWith(txCtx context.Context, t *transition, input AdvanceInput, state quality.WorkflowState) error {
	if t.hasStep {
		comment := input.Reason
		if comment == "" {
			comment = string(state)
		}
		if err := s.store.DecideStep(txCtx, t.step.StepID, quality.StepRejected, input.Actor, comment, t.now); err != nil {
			return err
		}
	}
	t.item.State = state
	t.item.StateReason = input.Reason
	t.item.FinalizedBy = input.Actor
	t.item.CurrentStep = 0
	return nil
}

func (s *Service) schedule(txCtx context.Context, t *transition, input AdvanceInput) error {
	if t.hasStep {
		if !strings.EqualFold(t.step.Approver, input.Actor) {
			return fmt.Errorf("%w: step %d of %d is assigned to %s",
				quality.ErrValidation, t.step.StepNumber, t.step.TotalSteps, t.step.Approver)
		}
		if t.step.StepNumber < t.step.TotalSteps {
			return fmt.Errorf("%w: only the final step can schedule, step %d of %d is open",
				quality.ErrValidation, t.step.StepNumber, t.step.TotalSteps)
		}
		comment := input.Comment
		if comment == "" {
			comment = "scheduled for " + input.PublishAt.UTC().Format(time.RFC3339)
		}
		if err := s.store.DecideStep(txCtx, t.step.StepID, quality.StepApproved, input.Actor, comment, t.now); err != nil {
			return err
		}
		t.item.FinalizedBy = input.Actor
	}

	current, err := s.store.GetDraft(txCtx, t.item.CurrentDraftID)
	if err != nil {
		return err
	}
	if input.Rescore && current.Evaluation != nil {
		copied, err := s.newDraftVersion(txCtx, t.item, current.Draft, current.Inputs, input.Actor, t.now)
		if err != nil {
			return err
		}
		t.item.CurrentDraftID = copied.Draft.ID
		t.note = fmt.Sprintf("rescore as draft v%d", copied.Draft.Version)
	}

	t.item.State = quality.StateScheduled
	t.item.PublishAt = input.PublishAt.UTC()
	t.item.SkipEvaluation = !input.Rescore && current.Evaluation != nil
	t.item.CurrentStep = 0
	t.item.StateReason = ""
	return nil
}

func (s *Service) edit(txCtx context.Context, t *transition, input AdvanceInput) error {
	draft := input.Draft.Clone()
	if draft.ContentType == "" {
		draft.ContentType = t.item.ContentType
	}
	draft, err := normalizeDraft(draft)
	if err != nil {
		return err
	}
	if draft.ContentType != t.item.ContentType {
		return fmt.Errorf("%w: edit cannot change content type from %s to %s",
			quality.ErrValidation, t.item.ContentType, draft.ContentType)
	}

	previous, err := s.store.GetDraft(txCtx, t.item.CurrentDraftID)
	if err != nil {
		return err
	}
	inputs := previous.Inputs
	if input.Inputs != nil {
		inputs = *input.Inputs
	}

	stored, err := s.newDraftVersion(txCtx, t.item, draft, inputs, input.Actor, t.now)
	if err != nil {
		return err
	}
	t.item.CurrentDraftID = stored.Draft.ID
	t.note = fmt.Sprintf("draft v%d", stored.Draft.Version)

	if t.item.State == quality.StateScheduled {
		t.item.SkipEvaluation = false
		return nil
	}

	eval, err := s.evaluateStored(txCtx, stored)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceStepDraft(txCtx, t.step.StepID, stored.Draft.ID); err != nil {
		return err
	}
	t.step.DraftID = stored.Draft.ID
	decision := eval.Decision
	t.decision = &decision
	t.note += fmt.Sprintf(" rescored %s score=%.2f", decision.Value, decision.Score)
	return nil
}

// newDraftVersion stores draft as the next version of item.
func (s *Service) newDraftVersion(txCtx context.Context, item ports.ContentItem, draft quality.Draft, inputs quality.SignalInputs, actor string, now time.Time) (ports.StoredDraft, error) {
	drafts, err := s.store.ListDrafts(txCtx, item.ContentID)
	if err != nil {
		return ports.StoredDraft{}, err
	}
	version := 0
	for _, d := range drafts {
		version = max(version, d.Draft.Version)
	}

	draft = draft.Clone()
	draft.ID = s.newID()
	draft.ContentID = item.ContentID
	draft.Version = version + 1
	draft.Baseline = nil
	return s.store.CreateDraft(txCtx, ports.StoredDraft{
		Draft:     draft,
		Inputs:    inputs,
		CreatedBy: actor,
		CreatedAt: now,
	})
}

// BulkInput applies the same action to many items.
type BulkInput struct {
	ContentIDs []string
	Action     quality.WorkflowAction
	Actor      string
	Reason     string
	Comment    string
	PublishAt  time.Time
	Rescore    bool
}

// BulkAdvance runs one transaction per item and reports each outcome.
func (s *Service) BulkAdvance(ctx context.Context, input BulkInput) ([]ItemResult, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if input.Action == quality.WorkflowEdit {
		return nil, fmt.Errorf("%w: edit is not a bulk action", quality.ErrValidation)
	}
	if len(input.ContentIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one content id is required", quality.ErrValidation)
	}

	results := make([]ItemResult, 0, len(input.ContentIDs))
	for _, id := range input.ContentIDs {
		if err := ctx.Err(); err != nil {
			return results, errs.Wrap(err, "bulk action interrupted")
		}
		snapshot, err := s.AdvanceWorkflow(ctx, AdvanceInput{
			ContentID: id,
			Action:    input.Action,
			Actor:     input.Actor,
			Reason:    input.Reason,
			Comment:   input.Comment,
			PublishAt: input.PublishAt,
			Rescore:   input.Rescore,
		})
		if err != nil {
			results = append(results, failedItem(id, err))
			continue
		}
		results = append(results, ItemResult{ContentID: id, State: snapshot.Item.State})
	}
	return results, nil
}
