package quality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func categorizeRule(priority int) RuleDefinition {
	return RuleDefinition{
		ID:         "categorize-council",
		Type:       RuleAutoCategorize,
		Priority:   priority,
		Conditions: Conditions{Keywords: []string{"COUNCIL"}},
		Actions:    ActionSpec{SetCategory: "politics"},
	}
}

func tagPoliticsRule(priority int) RuleDefinition {
	return RuleDefinition{
		ID:         "tag-politics",
		Type:       RuleAutoTag,
		Priority:   priority,
		Conditions: Conditions{Categories: []string{"Politics"}},
		Actions:    ActionSpec{AddTags: []string{"civic"}},
	}
}

func TestApplyRulesLaterRulesSeeEarlierMutations(t *testing.T) {
	out := ApplyRules(trustedDraft(), []RuleDefinition{tagPoliticsRule(5), categorizeRule(10)})

	require.Equal(t, "politics", out.Draft.Category)
	require.Equal(t, []string{"civic"}, out.Draft.Tags)
	require.Equal(t, []string{"categorize-council", "tag-politics"}, out.TriggeredIDs())
}

func TestApplyRulesPriorityOrderMatters(t *testing.T) {
	out := ApplyRules(trustedDraft(), []RuleDefinition{tagPoliticsRule(10), categorizeRule(5)})

	require.Equal(t, "politics", out.Draft.Category)
	require.Empty(t, out.Draft.Tags)
	require.Equal(t, []string{"categorize-council"}, out.TriggeredIDs())
}

func TestApplyRulesIsIdempotent(t *testing.T) {
	rules := []RuleDefinition{tagPoliticsRule(5), categorizeRule(10)}

	first := ApplyRules(trustedDraft(), rules)
	second := ApplyRules(first.Draft, rules)

	require.Equal(t, first.Draft, second.Draft)
	require.Equal(t, first.Triggered, second.Triggered)
	require.Equal(t, "", second.Draft.Baseline.Category)
}

func TestApplyRulesDoesNotMutateInput(t *testing.T) {
	d := trustedDraft()
	d.Tags = []string{"local"}
	_ = ApplyRules(d, []RuleDefinition{tagPoliticsRule(5), categorizeRule(10)})

	require.Equal(t, []string{"local"}, d.Tags)
	require.Nil(t, d.Baseline)
}

func TestApplyRulesSkipsInvalidRulesWithTrace(t *testing.T) {
	bad := RuleDefinition{
		ID:      "tag-and-reject",
		Type:    RuleAutoTag,
		Actions: ActionSpec{AddTags: []string{"x"}, Reject: true},
	}
	inactive := RuleDefinition{
		ID:      "off",
		Type:    RuleContentFilter,
		Active:  boolPtr(false),
		Actions: ActionSpec{Reject: true},
	}
	out := ApplyRules(trustedDraft(), []RuleDefinition{bad, inactive})

	require.Empty(t, out.Triggered)
	require.False(t, out.Filtered)
	require.Len(t, out.Skipped, 1)
	require.Equal(t, "tag-and-reject", out.Skipped[0].ID)
	require.Contains(t, out.Skipped[0].Reason, "cannot reject")
}

func TestApplyRulesRejectDoesNotStopLaterRules(t *testing.T) {
	filter := RuleDefinition{
		ID:         "block-transit",
		Name:       "Block transit",
		Type:       RuleContentFilter,
		Priority:   100,
		Conditions: Conditions{Keywords: []string{"transit"}},
		Actions:    ActionSpec{Reject: true, Reason: "embargoed topic"},
	}
	out := ApplyRules(trustedDraft(), []RuleDefinition{filter, categorizeRule(1)})

	require.True(t, out.Filtered)
	require.Equal(t, "politics", out.Draft.Category)
	require.Len(t, out.Rejections, 1)
	require.Equal(t, "embargoed topic", out.Rejections[0].Reason)
}

func TestCompileRuleValidation(t *testing.T) {
	cases := map[string]RuleDefinition{
		"missing id":         {Type: RuleAutoTag, Actions: ActionSpec{AddTags: []string{"a"}}},
		"unknown type":       {ID: "x", Type: "mystery", Actions: ActionSpec{AddTags: []string{"a"}}},
		"no actions":         {ID: "x", Type: RuleAutoTag},
		"bad range":          {ID: "x", Type: RuleAutoTag, Actions: ActionSpec{AddTags: []string{"a"}}, Conditions: Conditions{WordCount: &IntRange{Min: intPtr(10), Max: intPtr(2)}}},
		"empty keyword":      {ID: "x", Type: RuleAutoTag, Actions: ActionSpec{AddTags: []string{"a"}}, Conditions: Conditions{Keywords: []string{" "}}},
		"reject and publish": {ID: "x", Type: RuleContentFilter, Actions: ActionSpec{Reject: true, AutoPublish: true, Reason: "both"}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CompileRule(def)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestConditionsRanges(t *testing.T) {
	d := trustedDraft()
	require.True(t, Conditions{SourceCount: &IntRange{Min: intPtr(3)}}.Matches(d))
	require.False(t, Conditions{SourceCount: &IntRange{Max: intPtr(2)}}.Matches(d))
	require.True(t, Conditions{RequiredTags: nil, ContentTypes: []string{"NEWS"}}.Matches(d))
	require.False(t, Conditions{RequiredTags: []string{"sports"}}.Matches(d))
}
