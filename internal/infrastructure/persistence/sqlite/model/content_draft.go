package model

import (
	"time"

	"gorm.io/datatypes"

	"contentgate/internal/domain/quality"
)

type ContentDraft struct {
	DraftID       string                                   `gorm:"column:draft_id;type:text;primaryKey"`
	ContentID     string                                   `gorm:"column:content_id;type:text;not null;uniqueIndex:idx_content_drafts_content_version,priority:1"`
	Version       int                                      `gorm:"column:version;not null;uniqueIndex:idx_content_drafts_content_version,priority:2"`
	Payload       datatypes.JSONType[quality.Draft]        `gorm:"column:payload;not null"`
	Inputs        datatypes.JSONType[quality.SignalInputs] `gorm:"column:inputs;not null"`
	Evaluation    datatypes.JSON                           `gorm:"column:evaluation"`
	DecisionValue string                                   `gorm:"column:decision_value;type:text;not null;index"`
	ConfigVersion int                                      `gorm:"column:config_version;not null;default:0"`
	ScoredAt      *time.Time                               `gorm:"column:scored_at;index"`
	CreatedBy     string                                   `gorm:"column:created_by;type:text;not null"`
	CreatedAt     time.Time                                `gorm:"column:created_at;not null"`
}

func (ContentDraft) TableName() string {
	return "content_drafts"
}
