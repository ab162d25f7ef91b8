package quality

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

type FeedbackType string

const (
	FeedbackQualityRating     FeedbackType = "quality_rating"
	FeedbackContentCorrection FeedbackType = "content_correction"
	FeedbackRule              FeedbackType = "rule_feedback"
	FeedbackGeneral           FeedbackType = "general_feedback"
)

func ParseFeedbackType(raw string) (FeedbackType, error) {
	ft := FeedbackType(strings.ToLower(strings.TrimSpace(raw)))
	switch ft {
	case FeedbackQualityRating, FeedbackContentCorrection, FeedbackRule, FeedbackGeneral:
		return ft, nil
	}
	return "", fmt.Errorf("%w: unknown feedback type %q", ErrValidation, raw)
}

type FeedbackRecord struct {
	ID              string       `json:"id"`
	ContentID       string       `json:"content_id"`
	DraftID         string       `json:"draft_id,omitempty"`
	ReviewerID      string       `json:"reviewer_id"`
	Type            FeedbackType `json:"type"`
	Rating          int          `json:"rating"`
	Comment         string       `json:"comment,omitempty"`
	Category        string       `json:"category,omitempty"`
	DecisionCorrect bool         `json:"decision_correct"`
	RuleID          string       `json:"rule_id,omitempty"`
	ImpactScore     float64      `json:"impact_score"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (r FeedbackRecord) Validate() error {
	if strings.TrimSpace(r.ContentID) == "" {
		return fmt.Errorf("%w: content id is required", ErrValidation)
	}
	if strings.TrimSpace(r.ReviewerID) == "" {
		return fmt.Errorf("%w: reviewer id is required", ErrValidation)
	}
	if _, err := ParseFeedbackType(string(r.Type)); err != nil {
		return err
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrValidation, r.Rating)
	}
	if r.Category != "" {
		if _, ok := ParseSubScore(r.Category); !ok {
			return fmt.Errorf("%w: unknown feedback category %q", ErrValidation, r.Category)
		}
	}
	if r.Type == FeedbackRule && strings.TrimSpace(r.RuleID) == "" {
		return fmt.Errorf("%w: rule feedback requires a rule id", ErrValidation)
	}
	return nil
}

const (
	ImmediateImpact       = 80.0
	DiscrepancyThreshold  = 30.0
	MaxProposalConfidence = 0.9
	SystemLearningActor   = "system_learning"

	impactBase          = 50.0
	impactLowRating     = 30.0
	impactHighRating    = -10.0
	impactCorrection    = 25.0
	impactRuleFeedback  = 20.0
	impactWrongDecision = 30.0

	ratingScale       = 20.0
	maxCeilingStep    = 20.0
	minCeiling        = 50.0
	activationBaseCon = 0.5
	activationLowCon  = 0.7
)

var categoryImpact = map[SubScore]float64{
	CulturalSensitivity: 20,
	FactCheck:           20,
	Bias:                15,
	Safety:              15,
}

// ImpactScore ranks how much a feedback record should move the engine.
func ImpactScore(r FeedbackRecord) float64 {
	score := impactBase
	switch {
	case r.Rating <= 2:
		score += impactLowRating
	case r.Rating >= 4:
		score += impactHighRating
	}
	switch r.Type {
	case FeedbackContentCorrection:
		score += impactCorrection
	case FeedbackRule:
		score += impactRuleFeedback
	}
	if !r.DecisionCorrect {
		score += impactWrongDecision
	}
	if name, ok := ParseSubScore(r.Category); ok {
		score += categoryImpact[name]
	}
	return clampScore(score)
}

func (r FeedbackRecord) Immediate() bool {
	return r.ImpactScore >= ImmediateImpact
}

// Discrepancy compares an engine sub-score with the reviewer's rating mapped
// onto the same 0-100 scale. A positive Delta means the engine scored higher
// than the reviewer.
type Discrepancy struct {
	SubScore SubScore `json:"sub_score"`
	Engine   float64  `json:"engine"`
	Human    float64  `json:"human"`
	Delta    float64  `json:"delta"`
}

func (d Discrepancy) Magnitude() float64 { return math.Abs(d.Delta) }

func Discrepancies(r FeedbackRecord, b Breakdown) []Discrepancy {
	human := float64(r.Rating) * ratingScale
	names := b.SortedScores()
	if name, ok := ParseSubScore(r.Category); ok {
		if _, scored := b.Scores[name]; !scored {
			return nil
		}
		names = []SubScore{name}
	}

	out := make([]Discrepancy, 0, len(names))
	for _, name := range names {
		engine := b.Scores[name]
		out = append(out, Discrepancy{SubScore: name, Engine: engine, Human: human, Delta: engine - human})
	}
	return out
}

type AdjustmentKind string

const (
	AdjustmentThreshold  AdjustmentKind = "threshold"
	AdjustmentWeight     AdjustmentKind = "weight"
	AdjustmentCondition  AdjustmentKind = "condition"
	AdjustmentActivation AdjustmentKind = "activation"
)

type AdjustmentStatus string

const (
	AdjustmentProposed AdjustmentStatus = "proposed"
	AdjustmentApplied  AdjustmentStatus = "applied"
	AdjustmentRejected AdjustmentStatus = "rejected"
)

type Adjustment struct {
	ID            string           `json:"id"`
	Kind          AdjustmentKind   `json:"kind"`
	Target        string           `json:"target"`
	RuleID        string           `json:"rule_id,omitempty"`
	OldValue      float64          `json:"old_value"`
	NewValue      float64          `json:"new_value"`
	Confidence    float64          `json:"confidence"`
	Justification string           `json:"justification"`
	Approver      string           `json:"approver,omitempty"`
	Status        AdjustmentStatus `json:"status"`
	FeedbackID    string           `json:"feedback_id,omitempty"`
	ConfigVersion int              `json:"config_version,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AutoApplicable reports whether the proposal is confident enough to apply
// without a human.
func (a Adjustment) AutoApplicable(cfg EngineConfig) bool {
	return a.Confidence >= cfg.Thresholds.AdjustmentConfidence
}

// ProposeAdjustments derives threshold proposals from discrepancies larger
// than DiscrepancyThreshold and activation proposals from rule feedback that
// disputes a rule which fired on the rendered decision.
func ProposeAdjustments(r FeedbackRecord, b Breakdown, d Decision, cfg EngineConfig) []Adjustment {
	out := make([]Adjustment, 0, 2)
	for _, disc := range Discrepancies(r, b) {
		if disc.Magnitude() <= DiscrepancyThreshold {
			continue
		}
		adj, ok := ceilingProposal(disc, cfg)
		if !ok {
			continue
		}
		adj.FeedbackID = r.ID
		out = append(out, adj)
	}

	if r.Type == FeedbackRule && !r.DecisionCorrect && slices.Contains(d.TriggeredRules, r.RuleID) {
		confidence := activationBaseCon
		if r.Rating <= 2 {
			confidence = activationLowCon
		}
		out = append(out, Adjustment{
			Kind:          AdjustmentActivation,
			Target:        r.RuleID,
			RuleID:        r.RuleID,
			OldValue:      1,
			NewValue:      0,
			Confidence:    confidence,
			Justification: fmt.Sprintf("reviewer %s marked the decision incorrect and disputed rule %s (rating %d)", r.ReviewerID, r.RuleID, r.Rating),
			Status:        AdjustmentProposed,
			FeedbackID:    r.ID,
		})
	}
	return out
}

// ceilingProposal moves a sub-score's ceiling toward the reviewer's view: an
// over-estimated sub-score gets a lower cap, an under-estimated one a higher cap
// when it was already capped.
func ceilingProposal(disc Discrepancy, cfg EngineConfig) (Adjustment, bool) {
	old := cfg.Ceiling(disc.SubScore)
	step := math.Min(disc.Magnitude()/2, maxCeilingStep)

	next := old
	direction := "lower"
	if disc.Delta > 0 {
		next = math.Max(old-step, minCeiling)
	} else {
		next = math.Min(old+step, 100)
		direction = "raise"
	}
	next = math.Round(next*100) / 100
	if next == old {
		return Adjustment{}, false
	}

	return Adjustment{
		Kind:       AdjustmentThreshold,
		Target:     disc.SubScore.ThresholdKey(),
		OldValue:   old,
		NewValue:   next,
		Confidence: math.Min(disc.Magnitude()/100, MaxProposalConfidence),
		Justification: fmt.Sprintf("%s scored %.2f by the engine but %.2f by the reviewer; %s ceiling from %.2f to %.2f",
			disc.SubScore, disc.Engine, disc.Human, direction, old, next),
		Status: AdjustmentProposed,
	}, true
}
