package model

import (
	"time"

	"gorm.io/datatypes"

	"contentgate/internal/domain/quality"
)

type PerformanceMetric struct {
	MetricID          uint64                                    `gorm:"column:metric_id;primaryKey;autoIncrement"`
	Agent             string                                    `gorm:"column:agent;type:text;not null;index"`
	ContentType       string                                    `gorm:"column:content_type;type:text;not null"`
	WindowStart       time.Time                                 `gorm:"column:window_start;not null"`
	WindowEnd         time.Time                                 `gorm:"column:window_end;not null;index"`
	Decisions         int                                       `gorm:"column:decisions;not null"`
	Validated         int                                       `gorm:"column:validated;not null"`
	Accuracy          float64                                   `gorm:"column:accuracy;not null"`
	FalsePositiveRate float64                                   `gorm:"column:false_positive_rate;not null"`
	FalseNegativeRate float64                                   `gorm:"column:false_negative_rate;not null"`
	TopWarnings       datatypes.JSONType[[]quality.WarningCount] `gorm:"column:top_warnings;not null"`
	ComputedAt        time.Time                                 `gorm:"column:computed_at;not null"`
}

func (PerformanceMetric) TableName() string {
	return "performance_metrics"
}
