package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const defaultFeedbackBatch = 200

type FeedbackInput struct {
	ContentID       string
	ReviewerID      string
	Type            quality.FeedbackType
	Rating          int
	Comment         string
	Category        string
	DecisionCorrect bool
	RuleID          string
}

type FeedbackResult struct {
	Record      quality.FeedbackRecord `json:"record"`
	Processed   bool                   `json:"processed"`
	Adjustments []quality.Adjustment   `json:"adjustments,omitempty"`
}

// RecordFeedback stores reviewer feedback against the item's latest scored
// draft. High-impact records are processed right away; the rest wait for the
// adjustment sweep.
func (s *Service) RecordFeedback(ctx context.Context, input FeedbackInput) (FeedbackResult, error) {
	if err := s.check(ctx); err != nil {
		return FeedbackResult{}, err
	}

	feedbackType, err := quality.ParseFeedbackType(string(input.Type))
	if err != nil {
		return FeedbackResult{}, err
	}
	record := quality.FeedbackRecord{
		ID:              s.newID(),
		ContentID:       strings.TrimSpace(input.ContentID),
		ReviewerID:      strings.TrimSpace(input.ReviewerID),
		Type:            feedbackType,
		Rating:          input.Rating,
		Comment:         strings.TrimSpace(input.Comment),
		Category:        strings.ToLower(strings.TrimSpace(input.Category)),
		DecisionCorrect: input.DecisionCorrect,
		RuleID:          strings.TrimSpace(input.RuleID),
		CreatedAt:       s.nowUTC(),
	}
	if err := record.Validate(); err != nil {
		return FeedbackResult{}, err
	}
	record.ImpactScore = quality.ImpactScore(record)

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"),
		slog.String("content_id", record.ContentID),
		slog.String("feedback_id", record.ID),
	)
	err = s.uow.WithTx(logCtx, func(txCtx context.Context) error {
		if _, err := s.store.GetContent(txCtx, record.ContentID); err != nil {
			return err
		}
		drafts, err := s.store.ListDrafts(txCtx, record.ContentID)
		if err != nil {
			return err
		}
		record.DraftID = latestScoredDraft(drafts)
		return s.store.CreateFeedback(txCtx, record)
	})
	if err != nil {
		return FeedbackResult{}, translateStoreError(err)
	}

	logging.Info(logCtx, "feedback recorded",
		slog.String("type", string(record.Type)),
		slog.Int("rating", record.Rating),
		slog.Float64("impact", record.ImpactScore),
	)

	result := FeedbackResult{Record: record}
	if !record.Immediate() {
		return result, nil
	}
	adjustments, processed, err := s.processFeedback(logCtx, record)
	if err != nil {
		return result, err
	}
	result.Processed = processed
	result.Adjustments = adjustments
	return result, nil
}

func latestScoredDraft(drafts []ports.StoredDraft) string {
	var (
		id      string
		version int
	)
	for _, d := range drafts {
		if d.Evaluation != nil && d.Draft.Version > version {
			id, version = d.Draft.ID, d.Draft.Version
		}
	}
	return id
}

// RunAdjustmentSweep processes pending feedback, highest impact first, and
// returns every adjustment it proposed or applied.
func (s *Service) RunAdjustmentSweep(ctx context.Context, limit int) ([]quality.Adjustment, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultFeedbackBatch
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("sweep", sweepFeedback))
	pending, err := s.store.ListUnprocessedFeedback(logCtx, limit)
	if err != nil {
		return nil, errs.Wrap(err, "list unprocessed feedback")
	}

	var (
		out    []quality.Adjustment
		failed int
	)
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return out, errs.Wrap(err, "adjustment sweep interrupted")
		}
		adjustments, _, err := s.processFeedback(logCtx, record)
		if err != nil {
			failed++
			logging.Error(logCtx, "process feedback failed",
				slog.String("feedback_id", record.ID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		out = append(out, adjustments...)
	}

	logging.Info(logCtx, "adjustment sweep finished",
		slog.Int("feedback", len(pending)),
		slog.Int("adjustments", len(out)),
		slog.Int("failed", failed),
	)
	s.recordSweep(logCtx, sweepFeedback, fmt.Sprintf("feedback=%d adjustments=%d failed=%d", len(pending), len(out), failed))
	return out, nil
}

// processFeedback compares the record with the decision originally rendered
// for its draft. Confident proposals are applied as system_learning; the rest
// become pending suggestions. A record is processed at most once.
func (s *Service) processFeedback(ctx context.Context, record quality.FeedbackRecord) ([]quality.Adjustment, bool, error) {
	var (
		out       []quality.Adjustment
		processed bool
	)
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		now := s.nowUTC()
		marked, err := s.store.MarkFeedbackProcessed(txCtx, record.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return nil
		}
		processed = true
		if record.DraftID == "" {
			return nil
		}

		stored, err := s.store.GetDraft(txCtx, record.DraftID)
		if err != nil {
			return err
		}
		if stored.Evaluation == nil {
			return nil
		}

		cfg, err := s.ActiveEngineConfig(txCtx)
		if err != nil {
			return err
		}
		proposals := quality.ProposeAdjustments(record, stored.Evaluation.Breakdown, stored.Evaluation.Decision, cfg)
		for _, adj := range proposals {
			adj.ID = s.newID()
			adj.CreatedAt = now

			if adj.AutoApplicable(cfg) {
				applied, next, err := s.autoApply(txCtx, cfg, adj)
				if err != nil {
					return err
				}
				if applied != nil {
					cfg = next
					out = append(out, *applied)
					continue
				}
			}

			adj.Status = quality.AdjustmentProposed
			if err := s.store.CreateAdjustment(txCtx, adj); err != nil {
				return err
			}
			if err := s.store.CreateSuggestion(txCtx, ports.Suggestion{
				SuggestionID: s.newID(),
				Adjustment:   adj,
				Status:       ports.SuggestionPending,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			out = append(out, adj)
		}
		return nil
	})
	if err != nil {
		return nil, false, translateStoreError(err)
	}
	if processed {
		logging.Info(ctx, "feedback processed",
			slog.String("feedback_id", record.ID),
			slog.Int("adjustments", len(out)),
		)
	}
	return out, processed, nil
}

// autoApply applies adj as system_learning. A proposal the config rejects is
// returned as nil so the caller can queue it for a human instead.
func (s *Service) autoApply(txCtx context.Context, cfg quality.EngineConfig, adj quality.Adjustment) (*quality.Adjustment, quality.EngineConfig, error) {
	adj.Approver = quality.SystemLearningActor

	if adj.Kind == quality.AdjustmentActivation {
		if err := s.deactivateRule(txCtx, adj); err != nil {
			return nil, cfg, err
		}
		adj.Status = quality.AdjustmentApplied
		return &adj, cfg, nil
	}

	if _, err := cfg.Apply(adj); err != nil {
		logging.Warn(txCtx, "proposal not applicable, queued for review",
			slog.String("target", adj.Target),
			slog.Any("err", errs.Loggable(err)),
		)
		return nil, cfg, nil
	}
	next, err := s.applyConfigAdjustment(txCtx, cfg, adj)
	if err != nil {
		return nil, cfg, err
	}
	adj.Status = quality.AdjustmentApplied
	adj.ConfigVersion = next.Version
	return &adj, next, nil
}

// deactivateRule stores a new, inactive version of the adjustment's rule and
// records the adjustment as applied.
func (s *Service) deactivateRule(txCtx context.Context, adj quality.Adjustment) error {
	current, err := s.store.GetRule(txCtx, adj.RuleID)
	if err != nil {
		return err
	}
	def := current.Definition
	inactive := false
	def.Active = &inactive
	saved, err := s.store.SaveRuleVersion(txCtx, def, adj.Approver, s.nowUTC())
	if err != nil {
		return err
	}

	adj.Status = quality.AdjustmentApplied
	if err := s.store.CreateAdjustment(txCtx, adj); err != nil {
		return err
	}
	logging.Info(txCtx, "rule deactivated",
		slog.String("rule_id", adj.RuleID),
		slog.Int("version", saved.Definition.Version),
		slog.String("approver", adj.Approver),
	)
	return nil
}

// ListSuggestions lists suggestions in the given status; an empty status
// lists all of them.
func (s *Service) ListSuggestions(ctx context.Context, status ports.SuggestionStatus, limit int) ([]ports.Suggestion, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListSuggestions(ctx, status, limit)
}

// ListAdjustments returns the newest adjustments first.
func (s *Service) ListAdjustments(ctx context.Context, limit int) ([]quality.Adjustment, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListAdjustments(ctx, limit)
}

type ReviewInput struct {
	SuggestionID string
	Approve      bool
	Reviewer     string
	Note         string
}

// ReviewSuggestion approves or rejects a pending suggestion. Approval applies
// the adjustment: config targets become a new engine config version and
// activation targets a new inactive rule version.
func (s *Service) ReviewSuggestion(ctx context.Context, input ReviewInput) (ports.Suggestion, error) {
	if err := s.check(ctx); err != nil {
		return ports.Suggestion{}, err
	}
	reviewer, err := requireActor(input.Reviewer)
	if err != nil {
		return ports.Suggestion{}, err
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("suggestion_id", input.SuggestionID))
	var out ports.Suggestion
	err = s.uow.WithTx(logCtx, func(txCtx context.Context) error {
		suggestion, err := s.store.GetSuggestion(txCtx, input.SuggestionID)
		if err != nil {
			return err
		}
		if suggestion.Status != ports.SuggestionPending {
			return fmt.Errorf("%w: suggestion %s is already %s", quality.ErrConcurrencyConflict, suggestion.SuggestionID, suggestion.Status)
		}

		now := s.nowUTC()
		adj := suggestion.Adjustment
		adj.ID = s.newID()
		adj.Approver = reviewer
		adj.CreatedAt = now
		if strings.TrimSpace(input.Note) != "" {
			adj.Justification = strings.TrimSpace(adj.Justification + "; " + input.Note)
		}

		status := ports.SuggestionRejected
		switch {
		case !input.Approve:
			adj.Status = quality.AdjustmentRejected
			if err := s.store.CreateAdjustment(txCtx, adj); err != nil {
				return err
			}
		case adj.Kind == quality.AdjustmentActivation:
			status = ports.SuggestionApproved
			if err := s.deactivateRule(txCtx, adj); err != nil {
				return err
			}
		default:
			status = ports.SuggestionApproved
			cfg, err := s.ActiveEngineConfig(txCtx)
			if err != nil {
				return err
			}
			if _, err := s.applyConfigAdjustment(txCtx, cfg, adj); err != nil {
				return err
			}
		}

		if err := s.store.ResolveSuggestion(txCtx, suggestion.SuggestionID, status, reviewer, input.Note, now); err != nil {
			return err
		}
		reviewedAt := now
		suggestion.Status = status
		suggestion.ReviewedBy = reviewer
		suggestion.ReviewNote = input.Note
		suggestion.ReviewedAt = &reviewedAt
		out = suggestion
		return nil
	})
	if err != nil {
		return ports.Suggestion{}, translateStoreError(err)
	}

	logging.Info(logCtx, "suggestion reviewed",
		slog.String("status", string(out.Status)),
		slog.String("reviewer", reviewer),
	)
	return out, nil
}
