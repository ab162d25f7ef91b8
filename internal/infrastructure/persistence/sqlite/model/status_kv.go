package model

import "time"

// StatusKV backs the read-side status cache.
type StatusKV struct {
	Key       string     `gorm:"column:key;type:text;primaryKey"`
	Value     string     `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
}

func (StatusKV) TableName() string {
	return "status_kv"
}

// All lists every table model in migration order.
func All() []any {
	return []any{
		&ContentItem{},
		&ContentDraft{},
		&WorkflowStep{},
		&WorkflowEvent{},
		&RuleVersion{},
		&EngineConfigVersion{},
		&FeedbackRecord{},
		&FeedbackProcessing{},
		&RuleAdjustment{},
		&ImprovementSuggestion{},
		&PerformanceMetric{},
		&StatusKV{},
	}
}
