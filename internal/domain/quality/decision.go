package quality

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

type DecisionValue string

const (
	DecisionAutoApprove        DecisionValue = "auto_approve"
	DecisionManualReview       DecisionValue = "manual_review"
	DecisionAutoReject         DecisionValue = "auto_reject"
	DecisionConditionalApprove DecisionValue = "conditional_approve"
)

type Decision struct {
	Value           DecisionValue `json:"value"`
	Confidence      float64       `json:"confidence"`
	Score           float64       `json:"score"`
	Reasons         []string      `json:"reasons"`
	Warnings        []string      `json:"warnings,omitempty"`
	TriggeredRules  []string      `json:"triggered_rules,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
	ConfigVersion   int           `json:"config_version"`
}

const (
	confidenceBase  = 50.0
	confidenceSlope = 2.5
	weakestShown    = 2
)

// conditionalGuards must clear their floor, when present, for a conditional approval.
var conditionalGuards = []SubScore{Safety, CulturalSensitivity}

var recommendations = map[SubScore]string{
	SourceAgreement:      "add corroborating sources with credibility of at least 80",
	ModelConfidence:      "expand the body and break it into paragraphs",
	FactCheck:            "verify claims and remove sensational or hedging language",
	SentimentConsistency: "align the tone with the stated sentiment",
	EntityAccuracy:       "review the extracted entities",
	Grammar:              "run a grammar pass",
	Readability:          "simplify sentence structure",
	CulturalSensitivity:  "request a cultural sensitivity review",
	Safety:               "route the draft through safety review",
	Bias:                 "balance the perspectives presented",
}

// Classify maps a breakdown and rule outcome to a decision. The first matching
// branch wins: rule rejection, auto approval, auto rejection, conditional
// approval, then manual review.
func Classify(b Breakdown, outcome RuleOutcome, cfg EngineConfig) Decision {
	overall := b.Overall()
	t := cfg.Thresholds

	d := Decision{
		Score:          overall,
		TriggeredRules: outcome.TriggeredIDs(),
		ConfigVersion:  cfg.Version,
	}

	below := belowFloors(b, cfg)
	d.Warnings = append(d.Warnings, b.Warnings...)
	d.Warnings = append(d.Warnings, outcome.Warnings...)
	for _, name := range below {
		floor, _ := cfg.Floor(name)
		d.Warnings = append(d.Warnings, fmt.Sprintf("%s sub-score %.2f below floor %.2f", name, b.Scores[name], floor))
	}
	for _, skipped := range outcome.Skipped {
		d.Warnings = append(d.Warnings, fmt.Sprintf("rule %s skipped: %s", skipped.ID, skipped.Reason))
	}

	switch {
	case outcome.Filtered:
		d.Value = DecisionAutoReject
		d.Confidence = 100
		for _, rej := range outcome.Rejections {
			d.Reasons = append(d.Reasons, fmt.Sprintf("rule %s (%s) rejected content: %s", rej.RuleID, rej.RuleName, rej.Reason))
		}
	case overall >= t.AutoApprove && len(outcome.Warnings) == 0:
		d.Value = DecisionAutoApprove
		d.Reasons = append(d.Reasons, fmt.Sprintf("overall score %.2f meets auto-approve threshold %.2f", overall, t.AutoApprove))
	case overall < t.AutoReject:
		d.Value = DecisionAutoReject
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("overall score %.2f below auto-reject threshold %.2f", overall, t.AutoReject),
			"weakest sub-scores: "+describeWeakest(b, weakestShown),
		)
	case overall >= t.ConditionalLow && overall < t.AutoApprove && guardsClear(b, cfg):
		d.Value = DecisionConditionalApprove
		d.Reasons = append(d.Reasons, fmt.Sprintf("overall score %.2f within conditional band [%.2f, %.2f)", overall, t.ConditionalLow, t.AutoApprove))
	default:
		d.Value = DecisionManualReview
		d.Reasons = append(d.Reasons, manualReviewReasons(b, outcome, cfg, overall)...)
	}

	if !outcome.Filtered {
		d.Confidence = boundaryConfidence(overall, t)
	}

	for _, name := range below {
		d.Recommendations = append(d.Recommendations, recommendationFor(name))
	}
	if outcome.FlaggedForReview {
		d.Recommendations = append(d.Recommendations, "resolve the review flags raised by rules")
	}
	if d.Value == DecisionManualReview && len(d.Recommendations) == 0 {
		weakest := weakestScores(b, 1)
		if len(weakest) > 0 {
			d.Recommendations = append(d.Recommendations, recommendationFor(weakest[0]))
		}
	}
	return d
}

func manualReviewReasons(b Breakdown, outcome RuleOutcome, cfg EngineConfig, overall float64) []string {
	t := cfg.Thresholds
	switch {
	case overall >= t.AutoApprove:
		return []string{fmt.Sprintf("overall score %.2f meets auto-approve threshold but rule evaluation raised %d warning(s)", overall, len(outcome.Warnings))}
	case overall >= t.ConditionalLow:
		out := make([]string, 0, len(conditionalGuards))
		for _, name := range conditionalGuards {
			score, ok := b.Scores[name]
			floor, hasFloor := cfg.Floor(name)
			if ok && hasFloor && score < floor {
				out = append(out, fmt.Sprintf("%s sub-score %.2f below floor %.2f blocks conditional approval", name, score, floor))
			}
		}
		return out
	default:
		return []string{
			fmt.Sprintf("overall score %.2f below conditional band %.2f", overall, t.ConditionalLow),
			"weakest sub-scores: " + describeWeakest(b, weakestShown),
		}
	}
}

func guardsClear(b Breakdown, cfg EngineConfig) bool {
	for _, name := range conditionalGuards {
		score, ok := b.Scores[name]
		if !ok {
			continue
		}
		if floor, hasFloor := cfg.Floor(name); hasFloor && score < floor {
			return false
		}
	}
	return true
}

func belowFloors(b Breakdown, cfg EngineConfig) []SubScore {
	out := make([]SubScore, 0)
	for _, name := range b.SortedScores() {
		if floor, ok := cfg.Floor(name); ok && b.Scores[name] < floor {
			out = append(out, name)
		}
	}
	return out
}

// boundaryConfidence grows with the distance from the closest decision boundary.
func boundaryConfidence(overall float64, t Thresholds) float64 {
	dist := math.Inf(1)
	for _, boundary := range []float64{t.AutoReject, t.ConditionalLow, t.AutoApprove} {
		dist = math.Min(dist, math.Abs(overall-boundary))
	}
	return clampScore(confidenceBase + confidenceSlope*dist)
}

func weakestScores(b Breakdown, n int) []SubScore {
	names := b.SortedScores()
	slices.SortStableFunc(names, func(x, y SubScore) int {
		switch {
		case b.Scores[x] < b.Scores[y]:
			return -1
		case b.Scores[x] > b.Scores[y]:
			return 1
		}
		return 0
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func describeWeakest(b Breakdown, n int) string {
	parts := make([]string, 0, n)
	for _, name := range weakestScores(b, n) {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, b.Scores[name]))
	}
	return strings.Join(parts, ", ")
}

func recommendationFor(name SubScore) string {
	if text, ok := recommendations[name]; ok {
		return text
	}
	return "review " + string(name)
}
