package model

import (
	"time"

	"gorm.io/datatypes"

	"contentgate/internal/domain/quality"
)

type RuleVersion struct {
	RowID        uint64                                    `gorm:"column:row_id;primaryKey;autoIncrement"`
	RuleID       string                                    `gorm:"column:rule_id;type:text;not null;uniqueIndex:idx_rule_versions_rule_version,priority:1"`
	Version      int                                       `gorm:"column:version;not null;uniqueIndex:idx_rule_versions_rule_version,priority:2"`
	RuleType     string                                    `gorm:"column:rule_type;type:text;not null"`
	Priority     int                                       `gorm:"column:priority;not null"`
	Active       bool                                      `gorm:"column:active;not null"`
	Definition   datatypes.JSONType[quality.RuleDefinition] `gorm:"column:definition;not null"`
	CreatedBy    string                                    `gorm:"column:created_by;type:text;not null"`
	CreatedAt    time.Time                                 `gorm:"column:created_at;not null"`
	SupersededAt *time.Time                                `gorm:"column:superseded_at;index"`
}

func (RuleVersion) TableName() string {
	return "rule_versions"
}

type EngineConfigVersion struct {
	Version   int                                     `gorm:"column:version;primaryKey;autoIncrement:false"`
	Config    datatypes.JSONType[quality.EngineConfig] `gorm:"column:config;not null"`
	CreatedBy string                                  `gorm:"column:created_by;type:text;not null"`
	Reason    string                                  `gorm:"column:reason;type:text;not null"`
	CreatedAt time.Time                               `gorm:"column:created_at;not null"`
}

func (EngineConfigVersion) TableName() string {
	return "engine_config_versions"
}
