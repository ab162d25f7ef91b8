package ports

import (
	"context"
	"time"

	"contentgate/internal/domain/quality"
)

// ApprovalRequest announces a newly opened approval step.
type ApprovalRequest struct {
	ContentID   string                `json:"content_id"`
	Title       string                `json:"title"`
	ContentType quality.ContentType   `json:"content_type"`
	Step        int                   `json:"step"`
	TotalSteps  int                   `json:"total_steps"`
	Approver    string                `json:"approver"`
	Expedited   bool                  `json:"expedited"`
	Decision    quality.DecisionValue `json:"decision"`
	Score       float64               `json:"score"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Notifier delivers approval requests. Delivery failures never roll back the
// workflow change that produced them.
type Notifier interface {
	Name() string
	NotifyApprovalRequested(ctx context.Context, req ApprovalRequest) error
	Close() error
}
