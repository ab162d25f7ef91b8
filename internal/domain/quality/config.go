package quality

import (
	"fmt"
	"maps"
	"math"
	"strings"
)

const weightTolerance = 1e-6

type Thresholds struct {
	AutoApprove          float64 `json:"auto_approve" yaml:"auto_approve" mapstructure:"auto_approve"`
	AutoReject           float64 `json:"auto_reject" yaml:"auto_reject" mapstructure:"auto_reject"`
	ConditionalLow       float64 `json:"conditional_low" yaml:"conditional_low" mapstructure:"conditional_low"`
	AdjustmentConfidence float64 `json:"adjustment_confidence" yaml:"adjustment_confidence" mapstructure:"adjustment_confidence"`
}

// EngineConfig is one immutable version of the scoring and decision settings.
// Ceilings are the per sub-score "<name>_threshold" caps; Floors are the
// minimums below which a warning is raised.
type EngineConfig struct {
	Version    int                  `json:"version"`
	Thresholds Thresholds           `json:"thresholds"`
	Weights    map[SubScore]float64 `json:"weights"`
	Ceilings   map[SubScore]float64 `json:"ceilings,omitempty"`
	Floors     map[SubScore]float64 `json:"floors,omitempty"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Version: 1,
		Thresholds: Thresholds{
			AutoApprove:          90,
			AutoReject:           40,
			ConditionalLow:       70,
			AdjustmentConfidence: 0.8,
		},
		Weights: map[SubScore]float64{
			SourceAgreement:      0.30,
			ModelConfidence:      0.25,
			FactCheck:            0.25,
			SentimentConsistency: 0.10,
			EntityAccuracy:       0.10,
		},
		Ceilings: map[SubScore]float64{},
		Floors: map[SubScore]float64{
			SourceAgreement:     40,
			FactCheck:           50,
			Safety:              60,
			CulturalSensitivity: 60,
		},
	}
}

func (c EngineConfig) Clone() EngineConfig {
	out := c
	out.Weights = maps.Clone(c.Weights)
	out.Ceilings = maps.Clone(c.Ceilings)
	out.Floors = maps.Clone(c.Floors)
	if out.Ceilings == nil {
		out.Ceilings = map[SubScore]float64{}
	}
	if out.Floors == nil {
		out.Floors = map[SubScore]float64{}
	}
	return out
}

func (c EngineConfig) Ceiling(name SubScore) float64 {
	if v, ok := c.Ceilings[name]; ok {
		return v
	}
	return 100
}

func (c EngineConfig) Floor(name SubScore) (float64, bool) {
	v, ok := c.Floors[name]
	return v, ok
}

func (c EngineConfig) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("%w: engine config version must be positive", ErrConfiguration)
	}

	t := c.Thresholds
	for name, v := range map[string]float64{
		"auto_approve":    t.AutoApprove,
		"auto_reject":     t.AutoReject,
		"conditional_low": t.ConditionalLow,
	} {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("%w: threshold %s must be within [0, 100]", ErrConfiguration, name)
		}
	}
	if !(t.AutoReject <= t.ConditionalLow && t.ConditionalLow <= t.AutoApprove) {
		return fmt.Errorf("%w: thresholds must satisfy auto_reject <= conditional_low <= auto_approve", ErrConfiguration)
	}
	if !(t.AdjustmentConfidence > 0 && t.AdjustmentConfidence <= 1) {
		return fmt.Errorf("%w: adjustment_confidence must be within (0, 1]", ErrConfiguration)
	}

	if len(c.Weights) == 0 {
		return fmt.Errorf("%w: weights are required", ErrConfiguration)
	}
	sum := 0.0
	for name, w := range c.Weights {
		if _, ok := ParseSubScore(string(name)); !ok {
			return fmt.Errorf("%w: unknown weight %q", ErrConfiguration, name)
		}
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: weight %s must be within [0, 1]", ErrConfiguration, name)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.6f", ErrConfiguration, sum)
	}

	for label, values := range map[string]map[SubScore]float64{"ceiling": c.Ceilings, "floor": c.Floors} {
		for name, v := range values {
			if _, ok := ParseSubScore(string(name)); !ok {
				return fmt.Errorf("%w: unknown %s %q", ErrConfiguration, label, name)
			}
			if math.IsNaN(v) || v < 0 || v > 100 {
				return fmt.Errorf("%w: %s %s must be within [0, 100]", ErrConfiguration, label, name)
			}
		}
	}
	return nil
}

// Value reads the current value addressed by an adjustment target such as
// "fact_check_threshold", "safety_floor", "source_agreement_weight" or
// "auto_approve_threshold".
func (c EngineConfig) Value(target string) (float64, error) {
	ref, err := parseConfigTarget(target)
	if err != nil {
		return 0, err
	}
	switch ref.field {
	case "auto_approve":
		return c.Thresholds.AutoApprove, nil
	case "auto_reject":
		return c.Thresholds.AutoReject, nil
	case "conditional_low":
		return c.Thresholds.ConditionalLow, nil
	case "adjustment_confidence":
		return c.Thresholds.AdjustmentConfidence, nil
	case "ceiling":
		return c.Ceiling(ref.subScore), nil
	case "floor":
		v, _ := c.Floor(ref.subScore)
		return v, nil
	case "weight":
		return c.Weights[ref.subScore], nil
	}
	return 0, fmt.Errorf("%w: unsupported target %q", ErrConfiguration, target)
}

// Apply returns the next config version with adj applied. The receiver is left
// untouched.
func (c EngineConfig) Apply(adj Adjustment) (EngineConfig, error) {
	if adj.Kind != AdjustmentThreshold && adj.Kind != AdjustmentWeight {
		return EngineConfig{}, fmt.Errorf("%w: adjustment kind %q does not target engine config", ErrConfiguration, adj.Kind)
	}
	ref, err := parseConfigTarget(adj.Target)
	if err != nil {
		return EngineConfig{}, err
	}
	if (adj.Kind == AdjustmentWeight) != (ref.field == "weight") {
		return EngineConfig{}, fmt.Errorf("%w: target %q does not match adjustment kind %q", ErrConfiguration, adj.Target, adj.Kind)
	}

	next := c.Clone()
	next.Version = c.Version + 1
	v := adj.NewValue
	switch ref.field {
	case "auto_approve":
		next.Thresholds.AutoApprove = v
	case "auto_reject":
		next.Thresholds.AutoReject = v
	case "conditional_low":
		next.Thresholds.ConditionalLow = v
	case "adjustment_confidence":
		next.Thresholds.AdjustmentConfidence = v
	case "ceiling":
		next.Ceilings[ref.subScore] = v
	case "floor":
		next.Floors[ref.subScore] = v
	case "weight":
		if err := rebalanceWeights(next.Weights, ref.subScore, v); err != nil {
			return EngineConfig{}, err
		}
	}

	if err := next.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return next, nil
}

// rebalanceWeights sets name to value and rescales the other weights so the
// total stays at 1.
func rebalanceWeights(weights map[SubScore]float64, name SubScore, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: weight %s must be within [0, 1]", ErrConfiguration, name)
	}
	others := 0.0
	for key, w := range weights {
		if key != name {
			others += w
		}
	}
	if others == 0 {
		if value != 1 {
			return fmt.Errorf("%w: cannot rebalance weights around %s", ErrConfiguration, name)
		}
		weights[name] = value
		return nil
	}
	scale := (1 - value) / others
	for key, w := range weights {
		if key != name {
			weights[key] = w * scale
		}
	}
	weights[name] = value
	return nil
}

type configTarget struct {
	field    string
	subScore SubScore
}

func parseConfigTarget(target string) (configTarget, error) {
	trimmed := strings.ToLower(strings.TrimSpace(target))
	switch trimmed {
	case "auto_approve_threshold":
		return configTarget{field: "auto_approve"}, nil
	case "auto_reject_threshold":
		return configTarget{field: "auto_reject"}, nil
	case "conditional_threshold", "conditional_low_threshold":
		return configTarget{field: "conditional_low"}, nil
	case "adjustment_confidence_threshold":
		return configTarget{field: "adjustment_confidence"}, nil
	}

	for suffix, field := range map[string]string{"_threshold": "ceiling", "_floor": "floor", "_weight": "weight"} {
		if !strings.HasSuffix(trimmed, suffix) {
			continue
		}
		if name, ok := ParseSubScore(strings.TrimSuffix(trimmed, suffix)); ok {
			return configTarget{field: field, subScore: name}, nil
		}
	}
	return configTarget{}, fmt.Errorf("%w: unknown config target %q", ErrConfiguration, target)
}
