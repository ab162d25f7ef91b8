package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
)

const unassignedAgent = "unassigned"

type decisionSampleRow struct {
	ContentID     string         `gorm:"column:content_id"`
	ContentType   string         `gorm:"column:content_type"`
	FinalizedBy   string         `gorm:"column:finalized_by"`
	DecisionValue string         `gorm:"column:decision_value"`
	Evaluation    datatypes.JSON `gorm:"column:evaluation"`
}

// ListDecisionSamples returns one sample per content item whose current draft
// was scored inside [start, end), joined with the latest human verdict.
func (s *Store) ListDecisionSamples(ctx context.Context, start time.Time, end time.Time) ([]quality.DecisionSample, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Select(
		"d.content_id",
		"c.content_type",
		"c.finalized_by",
		"d.decision_value",
		"d.evaluation",
	).
		From("content_drafts d").
		Join("content_items c ON c.content_id = d.content_id AND c.current_draft_id = d.draft_id").
		Where(sq.NotEq{"d.scored_at": nil}).
		Where(sq.NotEq{"d.decision_value": ""}).
		Where(sq.GtOrEq{"d.scored_at": start.UTC()}).
		Where(sq.Lt{"d.scored_at": end.UTC()}).
		OrderBy("d.scored_at ASC", "d.content_id ASC").
		ToSql()
	if err != nil {
		return nil, errs.Wrap(err, "build decision sample query")
	}

	var rows []decisionSampleRow
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query decision samples")
	}
	if len(rows) == 0 {
		return []quality.DecisionSample{}, nil
	}

	contentIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		contentIDs = append(contentIDs, row.ContentID)
	}
	verdicts, err := latestVerdicts(db, contentIDs)
	if err != nil {
		return nil, err
	}

	samples := make([]quality.DecisionSample, 0, len(rows))
	for _, row := range rows {
		var payload evaluationPayload
		if len(row.Evaluation) > 0 {
			if err := json.Unmarshal(row.Evaluation, &payload); err != nil {
				return nil, errs.Wrapf(err, "decode evaluation of %s", row.ContentID)
			}
		}

		decision := quality.DecisionValue(row.DecisionValue)
		sample := quality.DecisionSample{
			ContentID:   row.ContentID,
			ContentType: quality.ContentType(row.ContentType),
			Agent:       sampleAgent(decision, row.FinalizedBy),
			Decision:    decision,
			Warnings:    payload.Decision.Warnings,
			DecidedAt:   payload.ScoredAt,
		}
		if verdict, ok := verdicts[row.ContentID]; ok {
			v := verdict
			sample.Verdict = &v
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func sampleAgent(decision quality.DecisionValue, finalizedBy string) string {
	switch decision {
	case quality.DecisionAutoApprove, quality.DecisionAutoReject:
		return quality.SystemAgent
	}
	if agent := strings.TrimSpace(finalizedBy); agent != "" {
		return agent
	}
	return unassignedAgent
}

func latestVerdicts(db *gorm.DB, contentIDs []string) (map[string]bool, error) {
	var rows []model.FeedbackRecord
	if err := db.Where("content_id IN ?", contentIDs).
		Order("created_at desc").
		Order("feedback_id desc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query verdicts")
	}

	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		if _, seen := out[row.ContentID]; seen {
			continue
		}
		out[row.ContentID] = row.DecisionCorrect
	}
	return out, nil
}

func (s *Store) SaveMetrics(ctx context.Context, metrics []quality.PerformanceMetrics, computedAt time.Time) error {
	if len(metrics) == 0 {
		return nil
	}

	rows := make([]model.PerformanceMetric, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, model.PerformanceMetric{
			Agent:             m.Agent,
			ContentType:       string(m.ContentType),
			WindowStart:       m.WindowStart.UTC(),
			WindowEnd:         m.WindowEnd.UTC(),
			Decisions:         m.Decisions,
			Validated:         m.Validated,
			Accuracy:          m.Accuracy,
			FalsePositiveRate: m.FalsePositiveRate,
			FalseNegativeRate: m.FalseNegativeRate,
			TopWarnings:       datatypes.NewJSONType(m.TopWarnings),
			ComputedAt:        computedAt.UTC(),
		})
	}

	return s.inTx(ctx, func(db *gorm.DB) error {
		if err := db.Create(&rows).Error; err != nil {
			return errs.Wrap(err, "insert metrics")
		}
		return nil
	})
}

func (s *Store) ListMetrics(ctx context.Context, limit int) ([]quality.PerformanceMetrics, error) {
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.PerformanceMetric{}).
		Order("window_end desc").
		Order("agent asc").
		Order("content_type asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.PerformanceMetric
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query metrics")
	}

	items := make([]quality.PerformanceMetrics, 0, len(rows))
	for _, row := range rows {
		items = append(items, quality.PerformanceMetrics{
			Agent:             row.Agent,
			ContentType:       quality.ContentType(row.ContentType),
			WindowStart:       row.WindowStart,
			WindowEnd:         row.WindowEnd,
			Decisions:         row.Decisions,
			Validated:         row.Validated,
			Accuracy:          row.Accuracy,
			FalsePositiveRate: row.FalsePositiveRate,
			FalseNegativeRate: row.FalseNegativeRate,
			TopWarnings:       row.TopWarnings.Data(),
		})
	}
	return items, nil
}
