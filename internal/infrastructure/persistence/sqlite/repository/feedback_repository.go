package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
	"contentgate/internal/ports"
)

func (s *Store) CreateFeedback(ctx context.Context, record quality.FeedbackRecord) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.FeedbackRecord{
		FeedbackID:      record.ID,
		ContentID:       record.ContentID,
		DraftID:         record.DraftID,
		ReviewerID:      record.ReviewerID,
		FeedbackType:    string(record.Type),
		Rating:          record.Rating,
		Comment:         record.Comment,
		Category:        record.Category,
		DecisionCorrect: record.DecisionCorrect,
		RuleID:          record.RuleID,
		ImpactScore:     record.ImpactScore,
		CreatedAt:       record.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return errs.Mark(errs.Wrapf(err, "insert feedback %s", record.ID), ports.ErrDuplicate)
		}
		return errs.Wrap(err, "insert feedback")
	}
	return nil
}

func (s *Store) ListFeedbackForContent(ctx context.Context, contentID string) ([]quality.FeedbackRecord, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.FeedbackRecord
	if err := db.Where("content_id = ?", contentID).
		Order("created_at asc").
		Order("feedback_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query feedback")
	}
	return mapFeedbacks(rows), nil
}

func (s *Store) ListUnprocessedFeedback(ctx context.Context, limit int) ([]quality.FeedbackRecord, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	processed := db.Model(&model.FeedbackProcessing{}).Select("feedback_id")
	query := db.Model(&model.FeedbackRecord{}).
		Where("feedback_id NOT IN (?)", processed).
		Order("impact_score desc").
		Order("created_at asc").
		Order("feedback_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.FeedbackRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query unprocessed feedback")
	}
	return mapFeedbacks(rows), nil
}

func (s *Store) MarkFeedbackProcessed(ctx context.Context, feedbackID string, at time.Time) (bool, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.FeedbackProcessing{FeedbackID: feedbackID, ProcessedAt: at.UTC()}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feedback_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "mark feedback processed")
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) CreateAdjustment(ctx context.Context, adj quality.Adjustment) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.RuleAdjustment{
		AdjustmentID:  adj.ID,
		Kind:          string(adj.Kind),
		Target:        adj.Target,
		RuleID:        adj.RuleID,
		OldValue:      adj.OldValue,
		NewValue:      adj.NewValue,
		Confidence:    adj.Confidence,
		Justification: adj.Justification,
		Approver:      adj.Approver,
		Status:        string(adj.Status),
		FeedbackID:    adj.FeedbackID,
		ConfigVersion: adj.ConfigVersion,
		CreatedAt:     adj.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert adjustment")
	}
	return nil
}

func (s *Store) ListAdjustments(ctx context.Context, limit int) ([]quality.Adjustment, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.RuleAdjustment{}).Order("created_at desc").Order("adjustment_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.RuleAdjustment
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query adjustments")
	}

	items := make([]quality.Adjustment, 0, len(rows))
	for _, row := range rows {
		items = append(items, quality.Adjustment{
			ID:            row.AdjustmentID,
			Kind:          quality.AdjustmentKind(row.Kind),
			Target:        row.Target,
			RuleID:        row.RuleID,
			OldValue:      row.OldValue,
			NewValue:      row.NewValue,
			Confidence:    row.Confidence,
			Justification: row.Justification,
			Approver:      row.Approver,
			Status:        quality.AdjustmentStatus(row.Status),
			FeedbackID:    row.FeedbackID,
			ConfigVersion: row.ConfigVersion,
			CreatedAt:     row.CreatedAt,
		})
	}
	return items, nil
}

func (s *Store) CreateSuggestion(ctx context.Context, suggestion ports.Suggestion) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	status := suggestion.Status
	if status == "" {
		status = ports.SuggestionPending
	}
	row := model.ImprovementSuggestion{
		SuggestionID: suggestion.SuggestionID,
		Target:       suggestion.Adjustment.Target,
		Adjustment:   datatypes.NewJSONType(suggestion.Adjustment),
		Status:       string(status),
		ReviewedBy:   suggestion.ReviewedBy,
		ReviewNote:   suggestion.ReviewNote,
		CreatedAt:    suggestion.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert suggestion")
	}
	return nil
}

func (s *Store) GetSuggestion(ctx context.Context, suggestionID string) (ports.Suggestion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return ports.Suggestion{}, err
	}

	var row model.ImprovementSuggestion
	if err := db.Where("suggestion_id = ?", suggestionID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Suggestion{}, ports.ErrSuggestionNotFound
		}
		return ports.Suggestion{}, errs.Wrap(err, "query suggestion")
	}
	return mapSuggestion(row), nil
}

func (s *Store) ListSuggestions(ctx context.Context, status ports.SuggestionStatus, limit int) ([]ports.Suggestion, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ImprovementSuggestion{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ImprovementSuggestion
	if err := query.Order("created_at asc").Order("suggestion_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query suggestions")
	}

	items := make([]ports.Suggestion, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapSuggestion(row))
	}
	return items, nil
}

func (s *Store) ResolveSuggestion(ctx context.Context, suggestionID string, status ports.SuggestionStatus, reviewer string, note string, at time.Time) error {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	reviewedAt := at.UTC()
	result := db.Model(&model.ImprovementSuggestion{}).
		Where("suggestion_id = ? AND status = ?", suggestionID, string(ports.SuggestionPending)).
		Updates(map[string]any{
			"status":      string(status),
			"reviewed_by": reviewer,
			"review_note": note,
			"reviewed_at": &reviewedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "resolve suggestion")
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetSuggestion(ctx, suggestionID); err != nil {
			return err
		}
		return errs.Wrapf(ports.ErrStaleWrite, "suggestion %s already resolved", suggestionID)
	}
	return nil
}

func mapFeedbacks(rows []model.FeedbackRecord) []quality.FeedbackRecord {
	items := make([]quality.FeedbackRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, quality.FeedbackRecord{
			ID:              row.FeedbackID,
			ContentID:       row.ContentID,
			DraftID:         row.DraftID,
			ReviewerID:      row.ReviewerID,
			Type:            quality.FeedbackType(row.FeedbackType),
			Rating:          row.Rating,
			Comment:         row.Comment,
			Category:        row.Category,
			DecisionCorrect: row.DecisionCorrect,
			RuleID:          row.RuleID,
			ImpactScore:     row.ImpactScore,
			CreatedAt:       row.CreatedAt,
		})
	}
	return items
}

func mapSuggestion(row model.ImprovementSuggestion) ports.Suggestion {
	return ports.Suggestion{
		SuggestionID: row.SuggestionID,
		Adjustment:   row.Adjustment.Data(),
		Status:       ports.SuggestionStatus(row.Status),
		ReviewedBy:   row.ReviewedBy,
		ReviewNote:   row.ReviewNote,
		CreatedAt:    row.CreatedAt,
		ReviewedAt:   row.ReviewedAt,
	}
}
