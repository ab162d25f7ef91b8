package model

import (
	"time"

	"gorm.io/datatypes"

	"contentgate/internal/domain/quality"
)

type FeedbackRecord struct {
	FeedbackID      string    `gorm:"column:feedback_id;type:text;primaryKey"`
	ContentID       string    `gorm:"column:content_id;type:text;not null;index"`
	DraftID         string    `gorm:"column:draft_id;type:text;not null"`
	ReviewerID      string    `gorm:"column:reviewer_id;type:text;not null"`
	FeedbackType    string    `gorm:"column:feedback_type;type:text;not null"`
	Rating          int       `gorm:"column:rating;not null"`
	Comment         string    `gorm:"column:comment;type:text;not null"`
	Category        string    `gorm:"column:category;type:text;not null"`
	DecisionCorrect bool      `gorm:"column:decision_correct;not null"`
	RuleID          string    `gorm:"column:rule_id;type:text;not null"`
	ImpactScore     float64   `gorm:"column:impact_score;not null;index"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (FeedbackRecord) TableName() string {
	return "feedback_records"
}

// FeedbackProcessing marks a feedback record as handled without touching the
// append-only feedback row.
type FeedbackProcessing struct {
	FeedbackID  string    `gorm:"column:feedback_id;type:text;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (FeedbackProcessing) TableName() string {
	return "feedback_processing"
}

type RuleAdjustment struct {
	AdjustmentID  string    `gorm:"column:adjustment_id;type:text;primaryKey"`
	Kind          string    `gorm:"column:kind;type:text;not null"`
	Target        string    `gorm:"column:target;type:text;not null;index"`
	RuleID        string    `gorm:"column:rule_id;type:text;not null"`
	OldValue      float64   `gorm:"column:old_value;not null"`
	NewValue      float64   `gorm:"column:new_value;not null"`
	Confidence    float64   `gorm:"column:confidence;not null"`
	Justification string    `gorm:"column:justification;type:text;not null"`
	Approver      string    `gorm:"column:approver;type:text;not null"`
	Status        string    `gorm:"column:status;type:text;not null"`
	FeedbackID    string    `gorm:"column:feedback_id;type:text;not null"`
	ConfigVersion int       `gorm:"column:config_version;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index"`
}

func (RuleAdjustment) TableName() string {
	return "rule_adjustments"
}

type ImprovementSuggestion struct {
	SuggestionID string                                `gorm:"column:suggestion_id;type:text;primaryKey"`
	Target       string                                `gorm:"column:target;type:text;not null"`
	Adjustment   datatypes.JSONType[quality.Adjustment] `gorm:"column:adjustment;not null"`
	Status       string                                `gorm:"column:status;type:text;not null;index"`
	ReviewedBy   string                                `gorm:"column:reviewed_by;type:text;not null"`
	ReviewNote   string                                `gorm:"column:review_note;type:text;not null"`
	CreatedAt    time.Time                             `gorm:"column:created_at;not null"`
	ReviewedAt   *time.Time                            `gorm:"column:reviewed_at"`
}

func (ImprovementSuggestion) TableName() string {
	return "improvement_suggestions"
}
