package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

type SubmitInput struct {
	ExternalRef string
	Draft       quality.Draft
	Inputs      quality.SignalInputs
	PublishAt   time.Time
	SubmittedBy string
	// ProcessNow evaluates the draft right away when it is already due instead
	// of waiting for the schedule sweep.
	ProcessNow bool
}

type SubmitResult struct {
	Item    ports.ContentItem
	DraftID string
}

// SubmitDraft stores a new content item in the scheduled state with its first
// draft version.
func (s *Service) SubmitDraft(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if err := s.check(ctx); err != nil {
		return SubmitResult{}, err
	}
	actor, err := requireActor(input.SubmittedBy)
	if err != nil {
		return SubmitResult{}, err
	}

	draft, err := normalizeDraft(input.Draft)
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.nowUTC()
	publishAt := input.PublishAt.UTC()
	if input.PublishAt.IsZero() {
		publishAt = now
	}

	contentID := s.newID()
	draft.ID = s.newID()
	draft.ContentID = contentID
	draft.Version = 1

	externalRef := strings.TrimSpace(input.ExternalRef)
	if externalRef == "" {
		externalRef = "local:" + contentID
	}

	item := ports.ContentItem{
		ContentID:      contentID,
		ExternalRef:    externalRef,
		ContentType:    draft.ContentType,
		State:          quality.StateScheduled,
		CurrentDraftID: draft.ID,
		PublishAt:      publishAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("content_id", contentID))
	err = s.uow.WithTx(logCtx, func(txCtx context.Context) error {
		created, err := s.store.CreateContent(txCtx, item, ports.StoredDraft{
			Draft:     draft,
			Inputs:    input.Inputs,
			CreatedBy: actor,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		item = created
		return s.store.AppendEvent(txCtx, ports.WorkflowEvent{
			ContentID: contentID,
			Actor:     actor,
			Action:    "submit",
			ToState:   quality.StateScheduled,
			Body:      fmt.Sprintf("draft v1 %q due %s", draft.Title, publishAt.Format(time.RFC3339)),
			CreatedAt: now,
		})
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return SubmitResult{}, errs.Mark(errs.Wrapf(err, "external ref %s already submitted", externalRef), quality.ErrValidation)
		}
		return SubmitResult{}, translateStoreError(err)
	}

	logging.Info(logCtx, "draft submitted",
		slog.String("external_ref", externalRef),
		slog.String("content_type", string(draft.ContentType)),
		slog.Time("publish_at", publishAt),
	)
	s.cacheStatus(logCtx, item)

	if input.ProcessNow && !publishAt.After(now) {
		processed, _, err := s.processItem(logCtx, contentID)
		if err != nil {
			return SubmitResult{}, err
		}
		item = processed
	}
	return SubmitResult{Item: item, DraftID: draft.ID}, nil
}

func normalizeDraft(in quality.Draft) (quality.Draft, error) {
	draft := in.Clone()
	contentType, err := quality.NormalizeContentType(string(draft.ContentType))
	if err != nil {
		return quality.Draft{}, err
	}
	draft.ContentType = contentType
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Tags = quality.NormalizeTags(draft.Tags)
	draft.Baseline = nil
	if err := draft.Validate(); err != nil {
		return quality.Draft{}, err
	}
	return draft, nil
}

// processItem moves one due item forward: approved items are published and
// scheduled items are evaluated and routed. Items that are not due, or not in
// a state the sweep owns, are returned unchanged with moved=false.
func (s *Service) processItem(ctx context.Context, contentID string) (ports.ContentItem, bool, error) {
	var (
		item    ports.ContentItem
		moved   bool
		request *ports.ApprovalRequest
	)

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.store.GetContent(txCtx, contentID)
		if err != nil {
			return err
		}
		item = current

		now := s.nowUTC()
		if item.PublishAt.After(now) {
			return nil
		}

		from := item.State
		var body string
		switch item.State {
		case quality.StateApproved:
			publish(&item, now, "")
			body = "publish time reached"
		case quality.StateScheduled:
			body, request, err = s.routeScheduled(txCtx, &item, now)
			if err != nil {
				return err
			}
		default:
			return nil
		}

		item.UpdatedAt = now
		updated, err := s.store.UpdateContent(txCtx, item)
		if err != nil {
			return err
		}
		item = updated
		moved = true

		return s.store.AppendEvent(txCtx, ports.WorkflowEvent{
			ContentID: item.ContentID,
			Actor:     quality.SystemAgent,
			Action:    "sweep",
			FromState: from,
			ToState:   item.State,
			Body:      body,
			CreatedAt: now,
		})
	})
	if err != nil {
		return ports.ContentItem{}, false, translateStoreError(err)
	}
	if !moved {
		return item, false, nil
	}

	logging.Info(ctx, "content advanced by sweep",
		slog.String("content_id", item.ContentID),
		slog.String("state", string(item.State)),
	)
	s.cacheStatus(ctx, item)
	s.notifyBestEffort(ctx, request)
	return item, true, nil
}

// routeScheduled evaluates the current draft (unless a schedule action asked
// to skip it) and applies the routing result to item.
func (s *Service) routeScheduled(txCtx context.Context, item *ports.ContentItem, now time.Time) (string, *ports.ApprovalRequest, error) {
	stored, err := s.store.GetDraft(txCtx, item.CurrentDraftID)
	if err != nil {
		return "", nil, err
	}
	if item.SkipEvaluation && stored.Evaluation != nil {
		publish(item, now, "")
		return "published without re-evaluation", nil, nil
	}

	eval, err := s.evaluateStored(txCtx, stored)
	if err != nil {
		return "", nil, err
	}
	item.SkipEvaluation = false

	route := quality.RouteDecision(eval.Decision, eval.Outcome, s.profile.PolicyFor(item.ContentType))
	summary := fmt.Sprintf("%s score=%.2f", eval.Decision.Value, eval.Decision.Score)

	switch route.Target {
	case quality.RoutePublish:
		publish(item, now, quality.SystemAgent)
		return summary, nil, nil
	case quality.RouteReject:
		item.State = quality.StateRejected
		item.StateReason = strings.Join(eval.Decision.Reasons, "; ")
		item.FinalizedBy = quality.SystemAgent
		item.CurrentStep = 0
		return summary, nil, nil
	}

	item.State = quality.StatePendingReview
	item.StateReason = ""
	item.ReviewRound++
	item.CurrentStep = 1
	step, err := s.store.CreateStep(txCtx, ports.WorkflowStep{
		ContentID:   item.ContentID,
		DraftID:     stored.Draft.ID,
		ReviewRound: item.ReviewRound,
		StepNumber:  1,
		TotalSteps:  route.Steps,
		Approver:    route.Approver,
		Expedited:   route.Expedited,
		CreatedAt:   now,
	})
	if err != nil {
		return "", nil, err
	}
	return summary, approvalRequest(stored.Draft, step, eval.Decision), nil
}

func publish(item *ports.ContentItem, now time.Time, finalizedBy string) {
	item.State = quality.StatePublished
	item.CurrentStep = 0
	item.StateReason = ""
	if finalizedBy != "" {
		item.FinalizedBy = finalizedBy
	}
	publishedAt := now
	item.PublishedAt = &publishedAt
}

func approvalRequest(draft quality.Draft, step ports.WorkflowStep, decision quality.Decision) *ports.ApprovalRequest {
	return &ports.ApprovalRequest{
		ContentID:   step.ContentID,
		Title:       draft.Title,
		ContentType: draft.ContentType,
		Step:        step.StepNumber,
		TotalSteps:  step.TotalSteps,
		Approver:    step.Approver,
		Expedited:   step.Expedited,
		Decision:    decision.Value,
		Score:       decision.Score,
		CreatedAt:   step.CreatedAt,
	}
}
