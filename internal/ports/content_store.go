package ports

import (
	"context"
	"errors"
	"time"

	"contentgate/internal/domain/quality"
)

var (
	ErrContentNotFound    = errors.New("content not found")
	ErrDraftNotFound      = errors.New("draft not found")
	ErrRuleNotFound       = errors.New("rule not found")
	ErrConfigNotFound     = errors.New("engine config not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrStaleWrite reports a conditional write that matched no row because
	// another writer changed it first.
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicate reports an insert rejected by a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

type ContentItem struct {
	ContentID      string                `json:"content_id"`
	ExternalRef    string                `json:"external_ref"`
	ContentType    quality.ContentType   `json:"content_type"`
	State          quality.WorkflowState `json:"state"`
	CurrentDraftID string                `json:"current_draft_id"`
	ReviewRound    int                   `json:"review_round"`
	CurrentStep    int                   `json:"current_step"`
	PublishAt      time.Time             `json:"publish_at"`
	SkipEvaluation bool                  `json:"skip_evaluation"`
	StateReason    string                `json:"state_reason,omitempty"`
	FinalizedBy    string                `json:"finalized_by,omitempty"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	PublishedAt    *time.Time            `json:"published_at,omitempty"`
}

type ContentFilter struct {
	States      []quality.WorkflowState
	ContentType quality.ContentType
	Limit       int
}

// DraftEvaluation is the decision snapshot rendered for one draft.
type DraftEvaluation struct {
	Inputs    quality.SignalInputs `json:"inputs"`
	Breakdown quality.Breakdown    `json:"breakdown"`
	Outcome   quality.RuleOutcome  `json:"outcome"`
	Decision  quality.Decision     `json:"decision"`
	ScoredAt  time.Time            `json:"scored_at"`
}

type StoredDraft struct {
	Draft      quality.Draft        `json:"draft"`
	Inputs     quality.SignalInputs `json:"inputs"`
	Evaluation *DraftEvaluation     `json:"evaluation,omitempty"`
	CreatedBy  string               `json:"created_by"`
	CreatedAt  time.Time            `json:"created_at"`
}

type WorkflowStep struct {
	StepID      uint64             `json:"step_id"`
	ContentID   string             `json:"content_id"`
	DraftID     string             `json:"draft_id"`
	ReviewRound int                `json:"review_round"`
	StepNumber  int                `json:"step_number"`
	TotalSteps  int                `json:"total_steps"`
	Approver    string             `json:"approver"`
	Expedited   bool               `json:"expedited"`
	Status      quality.StepStatus `json:"status"`
	DecidedBy   string             `json:"decided_by,omitempty"`
	Comments    string             `json:"comments,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	DecidedAt   *time.Time         `json:"decided_at,omitempty"`
}

type WorkflowEvent struct {
	EventID   uint64                `json:"event_id"`
	ContentID string                `json:"content_id"`
	Actor     string                `json:"actor"`
	Action    string                `json:"action"`
	FromState quality.WorkflowState `json:"from_state,omitempty"`
	ToState   quality.WorkflowState `json:"to_state"`
	Body      string                `json:"body,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type RuleVersion struct {
	RowID        uint64                 `json:"row_id"`
	Definition   quality.RuleDefinition `json:"definition"`
	CreatedBy    string                 `json:"created_by"`
	CreatedAt    time.Time              `json:"created_at"`
	SupersededAt *time.Time             `json:"superseded_at,omitempty"`
}

type EngineConfigVersion struct {
	Config    quality.EngineConfig `json:"config"`
	CreatedBy string               `json:"created_by"`
	Reason    string               `json:"reason"`
	CreatedAt time.Time            `json:"created_at"`
}

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

type Suggestion struct {
	SuggestionID string             `json:"suggestion_id"`
	Adjustment   quality.Adjustment `json:"adjustment"`
	Status       SuggestionStatus   `json:"status"`
	ReviewedBy   string             `json:"reviewed_by,omitempty"`
	ReviewNote   string             `json:"review_note,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ReviewedAt   *time.Time         `json:"reviewed_at,omitempty"`
}

type ContentRepository interface {
	CreateContent(ctx context.Context, item ContentItem, draft StoredDraft) (ContentItem, error)
	GetContent(ctx context.Context, contentID string) (ContentItem, error)
	ListContent(ctx context.Context, filter ContentFilter) ([]ContentItem, error)
	ListDueContent(ctx context.Context, now time.Time, limit int) ([]ContentItem, error)
	// UpdateContent writes item when the stored version equals item.Version and
	// bumps the version; otherwise it returns ErrStaleWrite.
	UpdateContent(ctx context.Context, item ContentItem) (ContentItem, error)

	CreateDraft(ctx context.Context, draft StoredDraft) (StoredDraft, error)
	GetDraft(ctx context.Context, draftID string) (StoredDraft, error)
	ListDrafts(ctx context.Context, contentID string) ([]StoredDraft, error)
	// RecordEvaluation stores the snapshot once; a scored draft is immutable.
	RecordEvaluation(ctx context.Context, draftID string, eval DraftEvaluation) error

	CreateStep(ctx context.Context, step WorkflowStep) (WorkflowStep, error)
	GetOpenStep(ctx context.Context, contentID string) (WorkflowStep, bool, error)
	ListSteps(ctx context.Context, contentID string) ([]WorkflowStep, error)
	// DecideStep closes a pending step; a step that is no longer pending
	// returns ErrStaleWrite.
	DecideStep(ctx context.Context, stepID uint64, status quality.StepStatus, decidedBy string, comments string, decidedAt time.Time) error
	ReplaceStepDraft(ctx context.Context, stepID uint64, draftID string) error

	AppendEvent(ctx context.Context, event WorkflowEvent) error
	ListEvents(ctx context.Context, contentID string) ([]WorkflowEvent, error)
}

type RuleRepository interface {
	// ListRules returns the current version of every rule, ordered by
	// priority (highest first) then rule id.
	ListRules(ctx context.Context, includeInactive bool) ([]RuleVersion, error)
	GetRule(ctx context.Context, ruleID string) (RuleVersion, error)
	ListRuleHistory(ctx context.Context, ruleID string) ([]RuleVersion, error)
	// SaveRuleVersion supersedes the current version of def.ID and appends def
	// as the next version.
	SaveRuleVersion(ctx context.Context, def quality.RuleDefinition, createdBy string, at time.Time) (RuleVersion, error)

	LatestEngineConfig(ctx context.Context) (EngineConfigVersion, error)
	GetEngineConfig(ctx context.Context, version int) (EngineConfigVersion, error)
	ListEngineConfigs(ctx context.Context, limit int) ([]EngineConfigVersion, error)
	// AppendEngineConfig requires cfg.Version to be exactly one past the latest
	// stored version; otherwise it returns ErrStaleWrite.
	AppendEngineConfig(ctx context.Context, version EngineConfigVersion) error
}

type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, record quality.FeedbackRecord) error
	ListFeedbackForContent(ctx context.Context, contentID string) ([]quality.FeedbackRecord, error)
	// ListUnprocessedFeedback orders by impact (highest first), then age.
	ListUnprocessedFeedback(ctx context.Context, limit int) ([]quality.FeedbackRecord, error)
	// MarkFeedbackProcessed returns false when the record was already marked.
	MarkFeedbackProcessed(ctx context.Context, feedbackID string, at time.Time) (bool, error)

	CreateAdjustment(ctx context.Context, adj quality.Adjustment) error
	ListAdjustments(ctx context.Context, limit int) ([]quality.Adjustment, error)

	CreateSuggestion(ctx context.Context, suggestion Suggestion) error
	GetSuggestion(ctx context.Context, suggestionID string) (Suggestion, error)
	ListSuggestions(ctx context.Context, status SuggestionStatus, limit int) ([]Suggestion, error)
	// ResolveSuggestion closes a pending suggestion; otherwise ErrStaleWrite.
	ResolveSuggestion(ctx context.Context, suggestionID string, status SuggestionStatus, reviewer string, note string, at time.Time) error
}

type MetricsRepository interface {
	ListDecisionSamples(ctx context.Context, start time.Time, end time.Time) ([]quality.DecisionSample, error)
	SaveMetrics(ctx context.Context, metrics []quality.PerformanceMetrics, computedAt time.Time) error
	ListMetrics(ctx context.Context, limit int) ([]quality.PerformanceMetrics, error)
}

// Store is the full persistence surface used by the approval service.
type Store interface {
	ContentRepository
	RuleRepository
	FeedbackRepository
	MetricsRepository
}
