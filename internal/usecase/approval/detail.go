package approval

import (
	"context"
	"strings"

	"contentgate/internal/domain/quality"
	"contentgate/internal/ports"
)

// ContentDetail is everything stored about one content item.
type ContentDetail struct {
	Item     ports.ContentItem        `json:"item"`
	Drafts   []ports.StoredDraft      `json:"drafts"`
	Steps    []ports.WorkflowStep     `json:"steps"`
	Events   []ports.WorkflowEvent    `json:"events"`
	Feedback []quality.FeedbackRecord `json:"feedback"`
}

func (s *Service) GetContentDetail(ctx context.Context, contentID string) (ContentDetail, error) {
	if err := s.check(ctx); err != nil {
		return ContentDetail{}, err
	}
	contentID = strings.TrimSpace(contentID)

	item, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return ContentDetail{}, translateStoreError(err)
	}
	detail := ContentDetail{Item: item}
	if detail.Drafts, err = s.store.ListDrafts(ctx, contentID); err != nil {
		return ContentDetail{}, err
	}
	if detail.Steps, err = s.store.ListSteps(ctx, contentID); err != nil {
		return ContentDetail{}, err
	}
	if detail.Events, err = s.store.ListEvents(ctx, contentID); err != nil {
		return ContentDetail{}, err
	}
	if detail.Feedback, err = s.store.ListFeedbackForContent(ctx, contentID); err != nil {
		return ContentDetail{}, err
	}
	return detail, nil
}

func (s *Service) ListContent(ctx context.Context, filter ports.ContentFilter) ([]ports.ContentItem, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListContent(ctx, filter)
}
