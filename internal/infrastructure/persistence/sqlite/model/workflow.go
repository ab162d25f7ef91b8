package model

import "time"

type WorkflowStep struct {
	StepID      uint64     `gorm:"column:step_id;primaryKey;autoIncrement"`
	ContentID   string     `gorm:"column:content_id;type:text;not null;uniqueIndex:idx_workflow_steps_round_step,priority:1"`
	DraftID     string     `gorm:"column:draft_id;type:text;not null"`
	ReviewRound int        `gorm:"column:review_round;not null;uniqueIndex:idx_workflow_steps_round_step,priority:2"`
	StepNumber  int        `gorm:"column:step_number;not null;uniqueIndex:idx_workflow_steps_round_step,priority:3"`
	TotalSteps  int        `gorm:"column:total_steps;not null"`
	Approver    string     `gorm:"column:approver;type:text;not null;index"`
	Expedited   bool       `gorm:"column:expedited;not null;default:false"`
	Status      string     `gorm:"column:status;type:text;not null;index"`
	DecidedBy   string     `gorm:"column:decided_by;type:text;not null"`
	Comments    string     `gorm:"column:comments;type:text;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	DecidedAt   *time.Time `gorm:"column:decided_at"`
}

func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

type WorkflowEvent struct {
	EventID   uint64    `gorm:"column:event_id;primaryKey;autoIncrement"`
	ContentID string    `gorm:"column:content_id;type:text;not null;index"`
	Actor     string    `gorm:"column:actor;type:text;not null"`
	Action    string    `gorm:"column:action;type:text;not null"`
	FromState string    `gorm:"column:from_state;type:text;not null"`
	ToState   string    `gorm:"column:to_state;type:text;not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (WorkflowEvent) TableName() string {
	return "workflow_events"
}
