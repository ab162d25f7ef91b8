package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
	"contentgate/internal/ports"
)

type evaluationPayload struct {
	Inputs    quality.SignalInputs `json:"inputs"`
	Breakdown quality.Breakdown    `json:"breakdown"`
	Outcome   quality.RuleOutcome  `json:"outcome"`
	Decision  quality.Decision     `json:"decision"`
	ScoredAt  time.Time            `json:"scored_at"`
}

func (s *Store) CreateContent(ctx context.Context, item ports.ContentItem, draft ports.StoredDraft) (ports.ContentItem, error) {
	row := contentRow(item)
	if row.Version == 0 {
		row.Version = 1
	}
	draftRow, err := newDraftRow(draft)
	if err != nil {
		return ports.ContentItem{}, err
	}

	if err := s.inTx(ctx, func(db *gorm.DB) error {
		if err := db.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.Mark(errs.Wrapf(err, "insert content %s", row.ContentID), ports.ErrDuplicate)
			}
			return errs.Wrap(err, "insert content")
		}
		if err := db.Create(&draftRow).Error; err != nil {
			return errs.Wrap(err, "insert draft")
		}
		return nil
	}); err != nil {
		return ports.ContentItem{}, err
	}
	return mapContent(row), nil
}

func (s *Store) GetContent(ctx context.Context, contentID string) (ports.ContentItem, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.ContentItem{}, err
	}

	var row model.ContentItem
	if err := db.Where("content_id = ?", contentID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ContentItem{}, ports.ErrContentNotFound
		}
		return ports.ContentItem{}, errs.Wrap(err, "query content")
	}
	return mapContent(row), nil
}

func (s *Store) ListContent(ctx context.Context, filter ports.ContentFilter) ([]ports.ContentItem, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ContentItem{})
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			states = append(states, string(state))
		}
		query = query.Where("state IN ?", states)
	}
	if ct := strings.TrimSpace(string(filter.ContentType)); ct != "" {
		query = query.Where("content_type = ?", ct)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.ContentItem
	if err := query.Order("updated_at desc").Order("content_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query content")
	}
	return mapContents(rows), nil
}

func (s *Store) ListDueContent(ctx context.Context, now time.Time, limit int) ([]ports.ContentItem, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ContentItem{}).
		Where("state IN ?", []string{string(quality.StateScheduled), string(quality.StateApproved)}).
		Where("publish_at <= ?", now.UTC()).
		Order("publish_at asc").
		Order("content_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ContentItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query due content")
	}
	return mapContents(rows), nil
}

func (s *Store) UpdateContent(ctx context.Context, item ports.ContentItem) (ports.ContentItem, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.ContentItem{}, err
	}

	row := contentRow(item)
	next := item.Version + 1
	result := db.Model(&model.ContentItem{}).
		Where("content_id = ? AND version = ?", item.ContentID, item.Version).
		Updates(map[string]any{
			"state":            row.State,
			"current_draft_id": row.CurrentDraftID,
			"review_round":     row.ReviewRound,
			"current_step":     row.CurrentStep,
			"publish_at":       row.PublishAt,
			"skip_evaluation":  row.SkipEvaluation,
			"state_reason":     row.StateReason,
			"finalized_by":     row.FinalizedBy,
			"updated_at":       row.UpdatedAt,
			"published_at":     row.PublishedAt,
			"version":          next,
		})
	if result.Error != nil {
		return ports.ContentItem{}, errs.Wrap(result.Error, "update content")
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetContent(ctx, item.ContentID); err != nil {
			return ports.ContentItem{}, err
		}
		return ports.ContentItem{}, errs.Wrapf(ports.ErrStaleWrite, "content %s version %d", item.ContentID, item.Version)
	}

	item.Version = next
	return item, nil
}

func (s *Store) CreateDraft(ctx context.Context, draft ports.StoredDraft) (ports.StoredDraft, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.StoredDraft{}, err
	}

	row, err := newDraftRow(draft)
	if err != nil {
		return ports.StoredDraft{}, err
	}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return ports.StoredDraft{}, errs.Mark(errs.Wrapf(err, "insert draft v%d", row.Version), ports.ErrStaleWrite)
		}
		return ports.StoredDraft{}, errs.Wrap(err, "insert draft")
	}
	return mapDraft(row)
}

func (s *Store) GetDraft(ctx context.Context, draftID string) (ports.StoredDraft, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.StoredDraft{}, err
	}

	var row model.ContentDraft
	if err := db.Where("draft_id = ?", draftID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.StoredDraft{}, ports.ErrDraftNotFound
		}
		return ports.StoredDraft{}, errs.Wrap(err, "query draft")
	}
	return mapDraft(row)
}

func (s *Store) ListDrafts(ctx context.Context, contentID string) ([]ports.StoredDraft, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ContentDraft
	if err := db.Where("content_id = ?", contentID).Order("version asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query drafts")
	}

	items := make([]ports.StoredDraft, 0, len(rows))
	for _, row := range rows {
		item, err := mapDraft(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) RecordEvaluation(ctx context.Context, draftID string, eval ports.DraftEvaluation) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(evaluationPayload{
		Inputs:    eval.Inputs,
		Breakdown: eval.Breakdown,
		Outcome:   eval.Outcome,
		Decision:  eval.Decision,
		ScoredAt:  eval.ScoredAt.UTC(),
	})
	if err != nil {
		return errs.Wrap(err, "marshal evaluation")
	}

	scoredAt := eval.ScoredAt.UTC()
	result := db.Model(&model.ContentDraft{}).
		Where("draft_id = ? AND scored_at IS NULL", draftID).
		Updates(map[string]any{
			"evaluation":     datatypes.JSON(raw),
			"decision_value": string(eval.Decision.Value),
			"config_version": eval.Decision.ConfigVersion,
			"scored_at":      &scoredAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "record evaluation")
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetDraft(ctx, draftID); err != nil {
			return err
		}
		return errs.Wrapf(ports.ErrStaleWrite, "draft %s already scored", draftID)
	}
	return nil
}

func (s *Store) CreateStep(ctx context.Context, step ports.WorkflowStep) (ports.WorkflowStep, error) {
	row := model.WorkflowStep{
		ContentID:   step.ContentID,
		DraftID:     step.DraftID,
		ReviewRound: step.ReviewRound,
		StepNumber:  step.StepNumber,
		TotalSteps:  step.TotalSteps,
		Approver:    step.Approver,
		Expedited:   step.Expedited,
		Status:      string(quality.StepPending),
		CreatedAt:   step.CreatedAt.UTC(),
	}

	if err := s.inTx(ctx, func(db *gorm.DB) error {
		var open int64
		if err := db.Model(&model.WorkflowStep{}).
			Where("content_id = ? AND status = ?", step.ContentID, string(quality.StepPending)).
			Count(&open).Error; err != nil {
			return errs.Wrap(err, "count open steps")
		}
		if open > 0 {
			return errs.Wrapf(ports.ErrStaleWrite, "content %s already has an open step", step.ContentID)
		}
		if err := db.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.Mark(errs.Wrapf(err, "insert step %d", step.StepNumber), ports.ErrStaleWrite)
			}
			return errs.Wrap(err, "insert step")
		}
		return nil
	}); err != nil {
		return ports.WorkflowStep{}, err
	}
	return mapStep(row), nil
}

func (s *Store) GetOpenStep(ctx context.Context, contentID string) (ports.WorkflowStep, bool, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.WorkflowStep{}, false, err
	}

	var row model.WorkflowStep
	if err := db.Where("content_id = ? AND status = ?", contentID, string(quality.StepPending)).
		Order("step_id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.WorkflowStep{}, false, nil
		}
		return ports.WorkflowStep{}, false, errs.Wrap(err, "query open step")
	}
	return mapStep(row), true, nil
}

func (s *Store) ListSteps(ctx context.Context, contentID string) ([]ports.WorkflowStep, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.WorkflowStep
	if err := db.Where("content_id = ?", contentID).Order("step_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query steps")
	}

	items := make([]ports.WorkflowStep, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapStep(row))
	}
	return items, nil
}

func (s *Store) DecideStep(ctx context.Context, stepID uint64, status quality.StepStatus, decidedBy string, comments string, decidedAt time.Time) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	at := decidedAt.UTC()
	result := db.Model(&model.WorkflowStep{}).
		Where("step_id = ? AND status = ?", stepID, string(quality.StepPending)).
		Updates(map[string]any{
			"status":     string(status),
			"decided_by": decidedBy,
			"comments":   comments,
			"decided_at": &at,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "decide step")
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(ports.ErrStaleWrite, "step %d is no longer pending", stepID)
	}
	return nil
}

func (s *Store) ReplaceStepDraft(ctx context.Context, stepID uint64, draftID string) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.WorkflowStep{}).
		Where("step_id = ? AND status = ?", stepID, string(quality.StepPending)).
		Update("draft_id", draftID)
	if result.Error != nil {
		return errs.Wrap(result.Error, "replace step draft")
	}
	if result.RowsAffected == 0 {
		return errs.Wrapf(ports.ErrStaleWrite, "step %d is no longer pending", stepID)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event ports.WorkflowEvent) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.WorkflowEvent{
		ContentID: event.ContentID,
		Actor:     event.Actor,
		Action:    event.Action,
		FromState: string(event.FromState),
		ToState:   string(event.ToState),
		Body:      event.Body,
		CreatedAt: event.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert event")
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, contentID string) ([]ports.WorkflowEvent, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.WorkflowEvent
	if err := db.Where("content_id = ?", contentID).Order("event_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query events")
	}

	items := make([]ports.WorkflowEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.WorkflowEvent{
			EventID:   row.EventID,
			ContentID: row.ContentID,
			Actor:     row.Actor,
			Action:    row.Action,
			FromState: quality.WorkflowState(row.FromState),
			ToState:   quality.WorkflowState(row.ToState),
			Body:      row.Body,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

func contentRow(item ports.ContentItem) model.ContentItem {
	var externalRef *string
	if ref := strings.TrimSpace(item.ExternalRef); ref != "" {
		externalRef = &ref
	}
	var publishedAt *time.Time
	if item.PublishedAt != nil {
		at := item.PublishedAt.UTC()
		publishedAt = &at
	}
	return model.ContentItem{
		ContentID:      item.ContentID,
		ExternalRef:    externalRef,
		ContentType:    string(item.ContentType),
		State:          string(item.State),
		CurrentDraftID: item.CurrentDraftID,
		ReviewRound:    item.ReviewRound,
		CurrentStep:    item.CurrentStep,
		PublishAt:      item.PublishAt.UTC(),
		SkipEvaluation: item.SkipEvaluation,
		StateReason:    item.StateReason,
		FinalizedBy:    item.FinalizedBy,
		Version:        item.Version,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
		PublishedAt:    publishedAt,
	}
}

func mapContent(row model.ContentItem) ports.ContentItem {
	externalRef := ""
	if row.ExternalRef != nil {
		externalRef = *row.ExternalRef
	}
	return ports.ContentItem{
		ContentID:      row.ContentID,
		ExternalRef:    externalRef,
		ContentType:    quality.ContentType(row.ContentType),
		State:          quality.WorkflowState(row.State),
		CurrentDraftID: row.CurrentDraftID,
		ReviewRound:    row.ReviewRound,
		CurrentStep:    row.CurrentStep,
		PublishAt:      row.PublishAt,
		SkipEvaluation: row.SkipEvaluation,
		StateReason:    row.StateReason,
		FinalizedBy:    row.FinalizedBy,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		PublishedAt:    row.PublishedAt,
	}
}

func mapContents(rows []model.ContentItem) []ports.ContentItem {
	items := make([]ports.ContentItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapContent(row))
	}
	return items
}

func newDraftRow(draft ports.StoredDraft) (model.ContentDraft, error) {
	if draft.Evaluation != nil {
		return model.ContentDraft{}, errors.New("new drafts are stored unscored; use RecordEvaluation")
	}
	return model.ContentDraft{
		DraftID:   draft.Draft.ID,
		ContentID: draft.Draft.ContentID,
		Version:   draft.Draft.Version,
		Payload:   datatypes.NewJSONType(draft.Draft),
		Inputs:    datatypes.NewJSONType(draft.Inputs),
		CreatedBy: draft.CreatedBy,
		CreatedAt: draft.CreatedAt.UTC(),
	}, nil
}

func mapDraft(row model.ContentDraft) (ports.StoredDraft, error) {
	out := ports.StoredDraft{
		Draft:     row.Payload.Data(),
		Inputs:    row.Inputs.Data(),
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}
	if row.ScoredAt != nil && len(row.Evaluation) > 0 {
		var payload evaluationPayload
		if err := json.Unmarshal(row.Evaluation, &payload); err != nil {
			return ports.StoredDraft{}, errs.Wrapf(err, "decode evaluation of draft %s", row.DraftID)
		}
		out.Evaluation = &ports.DraftEvaluation{
			Inputs:    payload.Inputs,
			Breakdown: payload.Breakdown,
			Outcome:   payload.Outcome,
			Decision:  payload.Decision,
			ScoredAt:  payload.ScoredAt,
		}
	}
	return out, nil
}

func mapStep(row model.WorkflowStep) ports.WorkflowStep {
	return ports.WorkflowStep{
		StepID:      row.StepID,
		ContentID:   row.ContentID,
		DraftID:     row.DraftID,
		ReviewRound: row.ReviewRound,
		StepNumber:  row.StepNumber,
		TotalSteps:  row.TotalSteps,
		Approver:    row.Approver,
		Expedited:   row.Expedited,
		Status:      quality.StepStatus(row.Status),
		DecidedBy:   row.DecidedBy,
		Comments:    row.Comments,
		CreatedAt:   row.CreatedAt,
		DecidedAt:   row.DecidedAt,
	}
}
