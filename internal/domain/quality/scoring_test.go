package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreContentTrustedDraft(t *testing.T) {
	b := ScoreContent(trustedDraft(), SignalInputs{}, DefaultEngineConfig())

	require.Equal(t, 100.0, b.Scores[SourceAgreement])
	require.Equal(t, 100.0, b.Scores[ModelConfidence])
	require.Equal(t, 100.0, b.Scores[FactCheck])
	require.Equal(t, DefaultSubScore, b.Scores[SentimentConsistency])
	require.InDelta(t, 97.33, b.Scores[EntityAccuracy], 0.01)
	require.InDelta(t, 97.23, b.Overall(), 0.01)
	require.Empty(t, b.Warnings)
	require.Equal(t, 1, b.ConfigVersion)
}

func TestSourceAgreementBands(t *testing.T) {
	require.Equal(t, 0.0, sourceAgreement(nil))
	require.Equal(t, 60.0, sourceAgreement([]Source{{Credibility: 10}}))
	// mean 50, count bonus 5, no high-credibility bonus
	require.Equal(t, 55.0, sourceAgreement([]Source{{Credibility: 40}, {Credibility: 60}}))
	// count bonus caps at 15
	many := []Source{{Credibility: 50}, {Credibility: 50}, {Credibility: 50}, {Credibility: 50}, {Credibility: 50}, {Credibility: 50}}
	require.Equal(t, 65.0, sourceAgreement(many))
}

func TestFactCheckRedFlags(t *testing.T) {
	body := "BREAKING: EXCLUSIVE!!! allegedly unconfirmed"
	require.Len(t, RedFlags(body), 4)

	clean := factCheck(nil, "Plain statement of the facts.")
	flagged := factCheck(nil, body)
	require.Equal(t, noSourceFactCheck, clean)
	require.LessOrEqual(t, flagged, clean-30)
	require.Equal(t, 10.0, flagged)
}

func TestScoreContentSensationalDraftWithoutSources(t *testing.T) {
	d := Draft{ContentType: ContentTypeNews, Title: "Flash", Body: "BREAKING: EXCLUSIVE!!! allegedly unconfirmed"}
	b := ScoreContent(d, SignalInputs{}, DefaultEngineConfig())

	require.Equal(t, 0.0, b.Scores[SourceAgreement])
	require.Equal(t, 70.0, b.Scores[ModelConfidence])
	require.Equal(t, 10.0, b.Scores[FactCheck])
	require.InDelta(t, 35.0, b.Overall(), 1e-9)
}

func TestScoreContentSubstitutesMalformedInputs(t *testing.T) {
	inputs := SignalInputs{
		SentimentConsistency: floatPtr(math.NaN()),
		Extended: map[SubScore]float64{
			Safety: 140,
			Bias:   20,
		},
	}
	b := ScoreContent(trustedDraft(), inputs, DefaultEngineConfig())

	require.Equal(t, DefaultSubScore, b.Scores[SentimentConsistency])
	require.Equal(t, DefaultSubScore, b.Scores[Safety])
	require.Equal(t, 20.0, b.Scores[Bias])
	require.Len(t, b.Warnings, 2)
}

func TestScoreContentAppliesCeilings(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Ceilings[FactCheck] = 80

	b := ScoreContent(trustedDraft(), SignalInputs{}, cfg)
	require.Equal(t, 80.0, b.Scores[FactCheck])
	require.Contains(t, b.Warnings, "fact_check capped at 80.00 by fact_check_threshold")
}

func TestBreakdownOverallFollowsWeights(t *testing.T) {
	b := Breakdown{
		Scores:  map[SubScore]float64{SourceAgreement: 100, FactCheck: 0},
		Weights: map[SubScore]float64{SourceAgreement: 0.5, FactCheck: 0.5},
	}
	require.Equal(t, 50.0, b.Overall())

	b.Scores[FactCheck] = 100
	require.Equal(t, 100.0, b.Overall())
}
