package model

import "time"

type ContentItem struct {
	ContentID      string     `gorm:"column:content_id;type:text;primaryKey"`
	ExternalRef    *string    `gorm:"column:external_ref;type:text;uniqueIndex"`
	ContentType    string     `gorm:"column:content_type;type:text;not null;index"`
	State          string     `gorm:"column:state;type:text;not null;index:idx_content_items_state_publish,priority:1"`
	CurrentDraftID string     `gorm:"column:current_draft_id;type:text;not null"`
	ReviewRound    int        `gorm:"column:review_round;not null;default:0"`
	CurrentStep    int        `gorm:"column:current_step;not null;default:0"`
	PublishAt      time.Time  `gorm:"column:publish_at;not null;index:idx_content_items_state_publish,priority:2"`
	SkipEvaluation bool       `gorm:"column:skip_evaluation;not null;default:false"`
	StateReason    string     `gorm:"column:state_reason;type:text;not null"`
	FinalizedBy    string     `gorm:"column:finalized_by;type:text;not null"`
	Version        int64      `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
}

func (ContentItem) TableName() string {
	return "content_items"
}
