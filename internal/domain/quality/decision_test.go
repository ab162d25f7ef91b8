package quality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func uniformBreakdown(score float64) Breakdown {
	cfg := DefaultEngineConfig()
	b := Breakdown{Scores: map[SubScore]float64{}, Weights: cfg.Weights, ConfigVersion: cfg.Version}
	for _, name := range BaseSubScores {
		b.Scores[name] = score
	}
	return b
}

func TestClassifyTrustedDraftAutoApproves(t *testing.T) {
	cfg := DefaultEngineConfig()
	d := trustedDraft()
	b := ScoreContent(d, SignalInputs{}, cfg)
	outcome := ApplyRules(d, nil)

	got := Classify(b, outcome, cfg)
	require.Equal(t, DecisionAutoApprove, got.Value)
	require.InDelta(t, 50+2.5*(b.Overall()-90), got.Confidence, 1e-9)
	require.Equal(t, 1, got.ConfigVersion)
}

func TestClassifySensationalDraftAutoRejects(t *testing.T) {
	cfg := DefaultEngineConfig()
	d := Draft{ContentType: ContentTypeNews, Title: "Flash", Body: "BREAKING: EXCLUSIVE!!! allegedly unconfirmed"}

	got := Classify(ScoreContent(d, SignalInputs{}, cfg), ApplyRules(d, nil), cfg)
	require.Equal(t, DecisionAutoReject, got.Value)
	require.Contains(t, got.Reasons[1], "source_agreement=0.00")
	require.Contains(t, got.Reasons[1], "fact_check=10.00")
	require.NotEmpty(t, got.Recommendations)
}

func TestClassifyRuleRejectWins(t *testing.T) {
	cfg := DefaultEngineConfig()
	outcome := RuleOutcome{
		Filtered:   true,
		Rejections: []RuleRejection{{RuleID: "r1", RuleName: "Embargo", Reason: "embargoed"}},
		Triggered:  []TriggeredRule{{ID: "r1"}},
	}

	got := Classify(uniformBreakdown(100), outcome, cfg)
	require.Equal(t, DecisionAutoReject, got.Value)
	require.Equal(t, 100.0, got.Confidence)
	require.Equal(t, []string{"r1"}, got.TriggeredRules)
	require.Contains(t, got.Reasons[0], "Embargo")
}

func TestClassifyRuleWarningBlocksAutoApprove(t *testing.T) {
	outcome := RuleOutcome{FlaggedForReview: true, Warnings: []string{"rule r2 (r2) flagged content for review: legal"}}

	got := Classify(uniformBreakdown(95), outcome, DefaultEngineConfig())
	require.Equal(t, DecisionManualReview, got.Value)
	require.Contains(t, got.Recommendations, "resolve the review flags raised by rules")
}

func TestClassifyConditionalBand(t *testing.T) {
	got := Classify(uniformBreakdown(80), RuleOutcome{}, DefaultEngineConfig())
	require.Equal(t, DecisionConditionalApprove, got.Value)
	require.Equal(t, 75.0, got.Confidence)
}

func TestClassifySafetyFloorBlocksConditional(t *testing.T) {
	b := uniformBreakdown(80)
	b.Scores[Safety] = 40

	got := Classify(b, RuleOutcome{}, DefaultEngineConfig())
	require.Equal(t, DecisionManualReview, got.Value)
	require.Contains(t, got.Reasons[0], "safety sub-score 40.00 below floor 60.00")
	require.Contains(t, got.Recommendations, recommendations[Safety])
}

func TestClassifyBelowBandIsManualReview(t *testing.T) {
	got := Classify(uniformBreakdown(55), RuleOutcome{}, DefaultEngineConfig())
	require.Equal(t, DecisionManualReview, got.Value)
	require.Equal(t, 87.5, got.Confidence)
}

func TestClassifyConfidenceBounded(t *testing.T) {
	for _, score := range []float64{0, 10, 39.99, 40, 69.99, 70, 89.99, 90, 100} {
		got := Classify(uniformBreakdown(score), RuleOutcome{}, DefaultEngineConfig())
		require.GreaterOrEqual(t, got.Confidence, 0.0)
		require.LessOrEqual(t, got.Confidence, 100.0)
	}
}

func TestClassifyTracesSkippedRules(t *testing.T) {
	outcome := RuleOutcome{Skipped: []SkippedRule{{ID: "broken", Reason: "no actions"}}}

	got := Classify(uniformBreakdown(95), outcome, DefaultEngineConfig())
	require.Equal(t, DecisionAutoApprove, got.Value)
	require.Contains(t, got.Warnings, "rule broken skipped: no actions")
}

func TestClassifyIsDeterministic(t *testing.T) {
	cfg := DefaultEngineConfig()
	b := uniformBreakdown(80)
	b.Scores[Safety] = 40
	b.Scores[Bias] = 30
	b.Scores[FactCheck] = 20

	flag := RuleDefinition{
		ID:         "legal-check",
		Type:       RuleContentFilter,
		Priority:   1,
		Conditions: Conditions{Keywords: []string{"council"}},
		Actions:    ActionSpec{FlagForReview: true, Reason: "legal"},
	}
	outcome := ApplyRules(trustedDraft(), []RuleDefinition{categorizeRule(10), tagPoliticsRule(5), flag})

	first := Classify(b, outcome, cfg)
	require.NotEmpty(t, first.Reasons)
	for range 20 {
		require.Equal(t, first, Classify(b, outcome, cfg))
	}
}
