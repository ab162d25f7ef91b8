package approval

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"contentgate/internal/domain/quality"
)

type workflowPolicyConfig struct {
	ApprovalSteps        int      `toml:"approval_steps"`
	Approvers            []string `toml:"approvers"`
	RequireHumanApproval bool     `toml:"require_human_approval"`
	ExpeditedApprover    string   `toml:"expedited_approver"`
}

type workflowProfileFile struct {
	Version      int                             `toml:"version"`
	Defaults     workflowPolicyConfig            `toml:"defaults"`
	ContentTypes map[string]workflowPolicyConfig `toml:"content_types"`
}

// WorkflowProfile maps each content type to its approval chain.
type WorkflowProfile struct {
	defaults quality.ApprovalPolicy
	byType   map[quality.ContentType]quality.ApprovalPolicy
}

func DefaultWorkflowProfile() WorkflowProfile {
	return WorkflowProfile{
		defaults: quality.DefaultApprovalPolicy(),
		byType:   map[quality.ContentType]quality.ApprovalPolicy{},
	}
}

// LoadWorkflowProfile reads a workflow.toml. A missing file yields the default
// single-editor profile.
func LoadWorkflowProfile(workflowFile string) (WorkflowProfile, error) {
	path := strings.TrimSpace(workflowFile)
	if path == "" {
		return DefaultWorkflowProfile(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultWorkflowProfile(), nil
		}
		return WorkflowProfile{}, err
	}
	return ParseWorkflowProfile(raw)
}

func ParseWorkflowProfile(raw []byte) (WorkflowProfile, error) {
	var file workflowProfileFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return WorkflowProfile{}, fmt.Errorf("%w: decode workflow profile: %v", quality.ErrConfiguration, err)
	}
	if file.Version != 1 {
		return WorkflowProfile{}, fmt.Errorf("%w: unsupported workflow version %d, expected version = 1", quality.ErrConfiguration, file.Version)
	}

	profile := WorkflowProfile{
		defaults: resolvePolicy(file.Defaults, quality.DefaultApprovalPolicy()),
		byType:   make(map[quality.ContentType]quality.ApprovalPolicy, len(file.ContentTypes)),
	}
	if err := profile.defaults.Validate(); err != nil {
		return WorkflowProfile{}, fmt.Errorf("defaults: %w", err)
	}

	for name, cfg := range file.ContentTypes {
		contentType, err := quality.NormalizeContentType(name)
		if err != nil {
			return WorkflowProfile{}, fmt.Errorf("%w: content_types.%s is not a known content type", quality.ErrConfiguration, name)
		}
		policy := resolvePolicy(cfg, profile.defaults)
		if err := policy.Validate(); err != nil {
			return WorkflowProfile{}, fmt.Errorf("content_types.%s: %w", name, err)
		}
		profile.byType[contentType] = policy
	}
	return profile, nil
}

// PolicyFor returns the policy for contentType, falling back to the defaults.
func (p WorkflowProfile) PolicyFor(contentType quality.ContentType) quality.ApprovalPolicy {
	if policy, ok := p.byType[contentType]; ok {
		return policy
	}
	if len(p.defaults.Approvers) == 0 {
		return quality.DefaultApprovalPolicy()
	}
	return p.defaults
}

func resolvePolicy(cfg workflowPolicyConfig, fallback quality.ApprovalPolicy) quality.ApprovalPolicy {
	policy := quality.ApprovalPolicy{
		Steps:             cfg.ApprovalSteps,
		RequireHuman:      cfg.RequireHumanApproval,
		ExpeditedApprover: strings.TrimSpace(cfg.ExpeditedApprover),
	}
	for _, approver := range cfg.Approvers {
		policy.Approvers = append(policy.Approvers, strings.TrimSpace(approver))
	}
	if len(policy.Approvers) == 0 {
		policy.Approvers = append([]string(nil), fallback.Approvers...)
	}
	if policy.Steps <= 0 {
		policy.Steps = len(policy.Approvers)
	}
	return policy
}
