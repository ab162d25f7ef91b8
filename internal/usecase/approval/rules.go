package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

// RuleFile is the YAML rule pack format.
type RuleFile struct {
	Rules []quality.RuleDefinition `json:"rules" yaml:"rules" jsonschema:"required"`
}

type RuleLoadReport struct {
	Saved     []string              `json:"saved,omitempty"`
	Unchanged []string              `json:"unchanged,omitempty"`
	Invalid   []quality.SkippedRule `json:"invalid,omitempty"`
}

// LoadRulesFile reads a rule pack from disk and loads it.
func (s *Service) LoadRulesFile(ctx context.Context, path string, actor string) (RuleLoadReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleLoadReport{}, errs.Mark(errs.Wrapf(err, "read rules file %s", path), quality.ErrConfiguration)
	}
	return s.LoadRules(ctx, raw, actor)
}

// LoadRules stores every changed rule of the pack as a new rule version.
// Rules that do not compile are stored too and reported; evaluation skips
// them with a warning.
func (s *Service) LoadRules(ctx context.Context, raw []byte, actor string) (RuleLoadReport, error) {
	if err := s.check(ctx); err != nil {
		return RuleLoadReport{}, err
	}
	actor, err := requireActor(actor)
	if err != nil {
		return RuleLoadReport{}, err
	}

	defs, err := ParseRuleFile(raw)
	if err != nil {
		return RuleLoadReport{}, err
	}

	logCtx := logging.WithComponent(ctx, "usecase.approval")
	var report RuleLoadReport
	err = s.uow.WithTx(logCtx, func(txCtx context.Context) error {
		report = RuleLoadReport{}
		now := s.nowUTC()
		for _, def := range defs {
			if _, err := quality.CompileRule(def); err != nil {
				report.Invalid = append(report.Invalid, quality.SkippedRule{ID: def.ID, Reason: err.Error()})
			}

			current, err := s.store.GetRule(txCtx, def.ID)
			switch {
			case err == nil:
				if sameRule(current.Definition, def) {
					report.Unchanged = append(report.Unchanged, def.ID)
					continue
				}
			case errors.Is(err, ports.ErrRuleNotFound):
			default:
				return err
			}

			if _, err := s.store.SaveRuleVersion(txCtx, def, actor, now); err != nil {
				return err
			}
			report.Saved = append(report.Saved, def.ID)
		}
		return nil
	})
	if err != nil {
		return RuleLoadReport{}, translateStoreError(err)
	}

	logging.Info(logCtx, "rules loaded",
		slog.Int("saved", len(report.Saved)),
		slog.Int("unchanged", len(report.Unchanged)),
		slog.Int("invalid", len(report.Invalid)),
	)
	return report, nil
}

// ParseRuleFile decodes a rule pack and rejects duplicate or missing ids.
func ParseRuleFile(raw []byte) ([]quality.RuleDefinition, error) {
	var file RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "decode rules"), quality.ErrConfiguration)
	}

	seen := make(map[string]struct{}, len(file.Rules))
	out := make([]quality.RuleDefinition, 0, len(file.Rules))
	for i, def := range file.Rules {
		def.ID = strings.TrimSpace(def.ID)
		if def.ID == "" {
			return nil, fmt.Errorf("%w: rule #%d has no id", quality.ErrConfiguration, i+1)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", quality.ErrConfiguration, def.ID)
		}
		seen[def.ID] = struct{}{}
		def.Version = 0
		out = append(out, def)
	}
	return out, nil
}

func sameRule(a quality.RuleDefinition, b quality.RuleDefinition) bool {
	left, errA := json.Marshal(comparableRule(a))
	right, errB := json.Marshal(comparableRule(b))
	return errA == nil && errB == nil && bytes.Equal(left, right)
}

func comparableRule(def quality.RuleDefinition) quality.RuleDefinition {
	active := def.IsActive()
	def.Active = &active
	def.Version = 0
	return def
}

// ListRules returns the current version of every rule.
func (s *Service) ListRules(ctx context.Context, includeInactive bool) ([]ports.RuleVersion, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, includeInactive)
}

func (s *Service) RuleHistory(ctx context.Context, ruleID string) ([]ports.RuleVersion, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListRuleHistory(ctx, strings.TrimSpace(ruleID))
}

// RuleSchema renders the JSON schema of the rule pack format.
func RuleSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(&RuleFile{})
	schema.Title = "contentgate rule pack"
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, "marshal rule schema")
	}
	return raw, nil
}
