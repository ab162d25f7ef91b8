package quality

import (
	"fmt"
	"strings"
)

type WorkflowState string

const (
	StateScheduled     WorkflowState = "scheduled"
	StatePendingReview WorkflowState = "pending_review"
	StateApproved      WorkflowState = "approved"
	StateRejected      WorkflowState = "rejected"
	StateCancelled     WorkflowState = "cancelled"
	StatePublished     WorkflowState = "published"
)

func (s WorkflowState) Terminal() bool {
	return s == StateRejected || s == StateCancelled || s == StatePublished
}

type WorkflowAction string

const (
	WorkflowApprove  WorkflowAction = "approve"
	WorkflowReject   WorkflowAction = "reject"
	WorkflowSchedule WorkflowAction = "schedule"
	WorkflowEdit     WorkflowAction = "edit"
	WorkflowCancel   WorkflowAction = "cancel"
)

func ParseWorkflowAction(raw string) (WorkflowAction, error) {
	action := WorkflowAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case WorkflowApprove, WorkflowReject, WorkflowSchedule, WorkflowEdit, WorkflowCancel:
		return action, nil
	}
	return "", fmt.Errorf("%w: unknown workflow action %q", ErrValidation, raw)
}

type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

var transitions = map[WorkflowState]map[WorkflowAction]struct{}{
	StateScheduled: {
		WorkflowSchedule: {},
		WorkflowEdit:     {},
		WorkflowCancel:   {},
	},
	StatePendingReview: {
		WorkflowApprove:  {},
		WorkflowReject:   {},
		WorkflowSchedule: {},
		WorkflowEdit:     {},
		WorkflowCancel:   {},
	},
	StateApproved: {
		WorkflowSchedule: {},
		WorkflowCancel:   {},
	},
}

// CheckTransition reports whether action may be applied in state. Acting on a
// finished item, or deciding a step that is no longer open, is a concurrency
// conflict: someone else got there first.
func CheckTransition(state WorkflowState, action WorkflowAction) error {
	if state.Terminal() {
		return fmt.Errorf("%w: content is already %s", ErrConcurrencyConflict, state)
	}
	allowed, ok := transitions[state]
	if !ok {
		return fmt.Errorf("%w: unknown workflow state %q", ErrValidation, state)
	}
	if _, ok := allowed[action]; ok {
		return nil
	}
	if action == WorkflowApprove || action == WorkflowReject {
		return fmt.Errorf("%w: no open approval step while %s", ErrConcurrencyConflict, state)
	}
	return fmt.Errorf("%w: cannot %s content in state %s", ErrValidation, action, state)
}

// ApprovalPolicy is the approval chain configured for one content type.
type ApprovalPolicy struct {
	Steps             int
	Approvers         []string
	RequireHuman      bool
	ExpeditedApprover string
}

func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{Steps: 1, Approvers: []string{"editor"}}
}

// ApproverForStep returns the approver bound to the 1-based step. Steps beyond
// the configured list reuse the last approver.
func (p ApprovalPolicy) ApproverForStep(step int) string {
	if len(p.Approvers) == 0 {
		return ""
	}
	if step < 1 {
		step = 1
	}
	if step > len(p.Approvers) {
		return p.Approvers[len(p.Approvers)-1]
	}
	return p.Approvers[step-1]
}

func (p ApprovalPolicy) Validate() error {
	if p.Steps < 1 {
		return fmt.Errorf("%w: approval steps must be at least 1", ErrConfiguration)
	}
	if len(p.Approvers) == 0 {
		return fmt.Errorf("%w: at least one approver is required", ErrConfiguration)
	}
	for _, approver := range p.Approvers {
		if strings.TrimSpace(approver) == "" {
			return fmt.Errorf("%w: approver names must not be empty", ErrConfiguration)
		}
	}
	return nil
}

type RouteTarget string

const (
	RoutePublish RouteTarget = "publish"
	RouteReject  RouteTarget = "reject"
	RouteReview  RouteTarget = "review"
)

// Route is where a freshly evaluated draft goes next.
type Route struct {
	Target    RouteTarget `json:"target"`
	Steps     int         `json:"steps,omitempty"`
	Approver  string      `json:"approver,omitempty"`
	Expedited bool        `json:"expedited,omitempty"`
}

// RouteDecision applies the approval policy to a decision. Conditional
// approvals always reach a human; an expedited approver shortens the chain to
// a single step. A rule's auto-publish mark lets an auto approval skip a
// mandated human step.
func RouteDecision(d Decision, outcome RuleOutcome, policy ApprovalPolicy) Route {
	switch d.Value {
	case DecisionAutoApprove:
		if !policy.RequireHuman || outcome.AutoPublish {
			return Route{Target: RoutePublish}
		}
	case DecisionAutoReject:
		return Route{Target: RouteReject}
	case DecisionConditionalApprove:
		if approver := strings.TrimSpace(policy.ExpeditedApprover); approver != "" {
			return Route{Target: RouteReview, Steps: 1, Approver: approver, Expedited: true}
		}
	}
	steps := policy.Steps
	if steps < 1 {
		steps = 1
	}
	return Route{Target: RouteReview, Steps: steps, Approver: policy.ApproverForStep(1)}
}
