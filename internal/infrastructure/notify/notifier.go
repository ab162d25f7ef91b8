// Package notify delivers approval requests to reviewers.
package notify

import (
	"context"
	"fmt"
	"strings"

	"contentgate/internal/ports"
)

const userAgent = "contentgate/0.1"

// Noop drops every request. It is used when no backend is configured.
type Noop struct{}

var _ ports.Notifier = Noop{}

func (Noop) Name() string { return "none" }

func (Noop) NotifyApprovalRequested(context.Context, ports.ApprovalRequest) error { return nil }

func (Noop) Close() error { return nil }

func approvalTitle(req ports.ApprovalRequest) string {
	if req.Expedited {
		return "Expedited review requested"
	}
	return fmt.Sprintf("Review requested (step %d/%d)", req.Step, req.TotalSteps)
}

func approvalMessage(req ports.ApprovalRequest) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.ContentID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", title, req.ContentType)
	fmt.Fprintf(&b, "approver: %s\n", req.Approver)
	if req.Decision != "" {
		fmt.Fprintf(&b, "decision: %s (score %.1f)\n", req.Decision, req.Score)
	}
	fmt.Fprintf(&b, "content: %s", req.ContentID)
	return b.String()
}
