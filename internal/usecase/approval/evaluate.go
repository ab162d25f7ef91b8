package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const seedActor = "seed"

// EvaluateInput is a dry-run evaluation request; nothing is persisted.
type EvaluateInput struct {
	Draft  quality.Draft
	Inputs quality.SignalInputs
}

// Evaluation is the full decision trace for one draft.
type Evaluation struct {
	Breakdown quality.Breakdown   `json:"breakdown"`
	Overall   float64             `json:"overall"`
	Outcome   quality.RuleOutcome `json:"outcome"`
	Decision  quality.Decision    `json:"decision"`
	Route     quality.Route       `json:"route"`
}

// EvaluateDraft scores a draft against the active config and rules without
// storing anything.
func (s *Service) EvaluateDraft(ctx context.Context, input EvaluateInput) (Evaluation, error) {
	if err := s.check(ctx); err != nil {
		return Evaluation{}, err
	}

	draft := input.Draft.Clone()
	contentType, err := quality.NormalizeContentType(string(draft.ContentType))
	if err != nil {
		return Evaluation{}, err
	}
	draft.ContentType = contentType
	if err := draft.Validate(); err != nil {
		return Evaluation{}, err
	}

	cfg, err := s.ActiveEngineConfig(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	defs, err := s.activeRuleDefinitions(ctx)
	if err != nil {
		return Evaluation{}, err
	}

	eval := evaluate(draft, input.Inputs, cfg, defs)
	return Evaluation{
		Breakdown: eval.Breakdown,
		Overall:   eval.Breakdown.Overall(),
		Outcome:   eval.Outcome,
		Decision:  eval.Decision,
		Route:     quality.RouteDecision(eval.Decision, eval.Outcome, s.profile.PolicyFor(contentType)),
	}, nil
}

func evaluate(draft quality.Draft, inputs quality.SignalInputs, cfg quality.EngineConfig, defs []quality.RuleDefinition) ports.DraftEvaluation {
	breakdown := quality.ScoreContent(draft, inputs, cfg)
	outcome := quality.ApplyRules(draft, defs)
	decision := quality.Classify(breakdown, outcome, cfg)
	return ports.DraftEvaluation{
		Inputs:    inputs,
		Breakdown: breakdown,
		Outcome:   outcome,
		Decision:  decision,
	}
}

// evaluateStored returns the draft's recorded evaluation, rendering and
// recording it first when the draft has never been scored. Must run inside a
// transaction.
func (s *Service) evaluateStored(txCtx context.Context, stored ports.StoredDraft) (ports.DraftEvaluation, error) {
	if stored.Evaluation != nil {
		return *stored.Evaluation, nil
	}

	cfg, err := s.ActiveEngineConfig(txCtx)
	if err != nil {
		return ports.DraftEvaluation{}, err
	}
	defs, err := s.activeRuleDefinitions(txCtx)
	if err != nil {
		return ports.DraftEvaluation{}, err
	}

	eval := evaluate(stored.Draft, stored.Inputs, cfg, defs)
	eval.ScoredAt = s.nowUTC()
	if err := s.store.RecordEvaluation(txCtx, stored.Draft.ID, eval); err != nil {
		return ports.DraftEvaluation{}, translateStoreError(err)
	}

	logging.Info(txCtx, "draft evaluated",
		slog.String("content_id", stored.Draft.ContentID),
		slog.String("draft_id", stored.Draft.ID),
		slog.String("decision", string(eval.Decision.Value)),
		slog.Float64("score", eval.Decision.Score),
		slog.Int("config_version", cfg.Version),
	)
	return eval, nil
}

func (s *Service) activeRuleDefinitions(ctx context.Context) ([]quality.RuleDefinition, error) {
	versions, err := s.store.ListRules(ctx, false)
	if err != nil {
		return nil, err
	}
	defs := make([]quality.RuleDefinition, 0, len(versions))
	for _, v := range versions {
		defs = append(defs, v.Definition)
	}
	return defs, nil
}

// ActiveEngineConfig returns the latest engine config version, storing the
// configured seed as version 1 when none exists yet.
func (s *Service) ActiveEngineConfig(ctx context.Context) (quality.EngineConfig, error) {
	if err := s.check(ctx); err != nil {
		return quality.EngineConfig{}, err
	}

	latest, err := s.store.LatestEngineConfig(ctx)
	if err == nil {
		return latest.Config, nil
	}
	if !errors.Is(err, ports.ErrConfigNotFound) {
		return quality.EngineConfig{}, err
	}

	seed := s.seed
	if seed.Weights == nil {
		seed = quality.DefaultEngineConfig()
	}
	seed = seed.Clone()
	seed.Version = 1
	if err := seed.Validate(); err != nil {
		return quality.EngineConfig{}, errs.Wrap(err, "seed engine config")
	}

	err = s.store.AppendEngineConfig(ctx, ports.EngineConfigVersion{
		Config:    seed,
		CreatedBy: seedActor,
		Reason:    "initial engine config",
		CreatedAt: s.nowUTC(),
	})
	if err != nil && !errors.Is(err, ports.ErrStaleWrite) {
		return quality.EngineConfig{}, err
	}
	if err == nil {
		logging.Info(logging.WithComponent(ctx, "usecase.approval"), "engine config seeded", slog.Int("version", seed.Version))
		return seed, nil
	}

	latest, err = s.store.LatestEngineConfig(ctx)
	if err != nil {
		return quality.EngineConfig{}, err
	}
	return latest.Config, nil
}

// UpdateEngineConfigInput sets one config target by hand, e.g.
// "auto_approve_threshold" or "fact_check_weight".
type UpdateEngineConfigInput struct {
	Target string
	Value  float64
	Actor  string
	Reason string
}

// UpdateEngineConfig appends a new engine config version with one value
// changed and records the change as an applied adjustment.
func (s *Service) UpdateEngineConfig(ctx context.Context, input UpdateEngineConfigInput) (quality.EngineConfig, error) {
	if err := s.check(ctx); err != nil {
		return quality.EngineConfig{}, err
	}
	actor, err := requireActor(input.Actor)
	if err != nil {
		return quality.EngineConfig{}, err
	}

	kind := quality.AdjustmentThreshold
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(input.Target)), "_weight") {
		kind = quality.AdjustmentWeight
	}

	var next quality.EngineConfig
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.ActiveEngineConfig(txCtx)
		if err != nil {
			return err
		}
		old, err := cfg.Value(input.Target)
		if err != nil {
			return err
		}
		adj := quality.Adjustment{
			ID:            s.newID(),
			Kind:          kind,
			Target:        strings.ToLower(strings.TrimSpace(input.Target)),
			OldValue:      old,
			NewValue:      input.Value,
			Confidence:    1,
			Justification: strings.TrimSpace(input.Reason),
			Approver:      actor,
			Status:        quality.AdjustmentApplied,
			CreatedAt:     s.nowUTC(),
		}
		next, err = s.applyConfigAdjustment(txCtx, cfg, adj)
		return err
	})
	if err != nil {
		return quality.EngineConfig{}, translateStoreError(err)
	}
	return next, nil
}

// applyConfigAdjustment appends cfg with adj applied and records adj.
func (s *Service) applyConfigAdjustment(txCtx context.Context, cfg quality.EngineConfig, adj quality.Adjustment) (quality.EngineConfig, error) {
	next, err := cfg.Apply(adj)
	if err != nil {
		return quality.EngineConfig{}, err
	}
	reason := adj.Justification
	if reason == "" {
		reason = "set " + adj.Target
	}
	if err := s.store.AppendEngineConfig(txCtx, ports.EngineConfigVersion{
		Config:    next,
		CreatedBy: adj.Approver,
		Reason:    reason,
		CreatedAt: s.nowUTC(),
	}); err != nil {
		return quality.EngineConfig{}, err
	}

	adj.Status = quality.AdjustmentApplied
	adj.ConfigVersion = next.Version
	if err := s.store.CreateAdjustment(txCtx, adj); err != nil {
		return quality.EngineConfig{}, err
	}

	logging.Info(txCtx, "engine config updated",
		slog.String("target", adj.Target),
		slog.Float64("old", adj.OldValue),
		slog.Float64("new", adj.NewValue),
		slog.String("approver", adj.Approver),
		slog.Int("version", next.Version),
	)
	return next, nil
}

// ListEngineConfigs returns the newest config versions first.
func (s *Service) ListEngineConfigs(ctx context.Context, limit int) ([]ports.EngineConfigVersion, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListEngineConfigs(ctx, limit)
}
