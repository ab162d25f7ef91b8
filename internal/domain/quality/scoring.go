package quality

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

type SubScore string

const (
	SourceAgreement      SubScore = "source_agreement"
	ModelConfidence      SubScore = "model_confidence"
	FactCheck            SubScore = "fact_check"
	SentimentConsistency SubScore = "sentiment_consistency"
	EntityAccuracy       SubScore = "entity_accuracy"

	Grammar             SubScore = "grammar"
	Readability         SubScore = "readability"
	CulturalSensitivity SubScore = "cultural_sensitivity"
	Safety              SubScore = "safety"
	Bias                SubScore = "bias"
)

var BaseSubScores = []SubScore{SourceAgreement, ModelConfidence, FactCheck, SentimentConsistency, EntityAccuracy}

var ExtendedSubScores = []SubScore{Grammar, Readability, CulturalSensitivity, Safety, Bias}

func ParseSubScore(raw string) (SubScore, bool) {
	candidate := SubScore(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(BaseSubScores, candidate) || slices.Contains(ExtendedSubScores, candidate) {
		return candidate, true
	}
	return "", false
}

func (s SubScore) ThresholdKey() string { return string(s) + "_threshold" }

const (
	DefaultSubScore = 75.0

	singleSourceScore      = 60.0
	highCredibility        = 80.0
	sourceCountBonusStep   = 5.0
	sourceCountBonusCap    = 15.0
	highCredibilityBonus   = 2.0
	highCredibilityCap     = 10.0
	modelConfidenceBase    = 70.0
	modelConfidenceStep    = 10.0
	minTitleRunes          = 10
	minBodyRunes           = 300
	factCheckBase          = 20.0
	factCheckSpan          = 80.0
	factCheckCredibleFloor = 70.0
	noSourceFactCheck      = 50.0
	redFlagPenalty         = 10.0
)

type redFlag struct {
	name    string
	pattern *regexp.Regexp
}

var redFlags = []redFlag{
	{name: "sensational", pattern: regexp.MustCompile(`(?i)\b(breaking|exclusive|shocking|you won't believe)\b`)},
	{name: "excessive_punctuation", pattern: regexp.MustCompile(`[!?]{3,}`)},
	{name: "hedging", pattern: regexp.MustCompile(`(?i)\b(allegedly|reportedly|rumou?red)\b`)},
	{name: "unverified", pattern: regexp.MustCompile(`(?i)\b(unconfirmed|unverified|anonymous sources?)\b`)},
}

// RedFlags returns the names of the red-flag pattern groups that match body.
func RedFlags(body string) []string {
	out := make([]string, 0, len(redFlags))
	for _, flag := range redFlags {
		if flag.pattern.MatchString(body) {
			out = append(out, flag.name)
		}
	}
	return out
}

// SignalInputs carries the externally produced signals. Nil or missing values
// fall back to documented defaults.
type SignalInputs struct {
	SentimentConsistency *float64             `json:"sentiment_consistency,omitempty" yaml:"sentiment_consistency,omitempty"`
	Extended             map[SubScore]float64 `json:"extended,omitempty" yaml:"extended,omitempty"`
}

type Breakdown struct {
	Scores        map[SubScore]float64 `json:"scores"`
	Weights       map[SubScore]float64 `json:"weights"`
	Warnings      []string             `json:"warnings,omitempty"`
	ConfigVersion int                  `json:"config_version"`
}

// Overall is the weighted sum of the sub-scores. It is derived on every call.
func (b Breakdown) Overall() float64 {
	keys := make([]SubScore, 0, len(b.Weights))
	for key := range b.Weights {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	total := 0.0
	for _, key := range keys {
		total += b.Scores[key] * b.Weights[key]
	}
	return clampScore(total)
}

func (b Breakdown) Score(name SubScore) (float64, bool) {
	v, ok := b.Scores[name]
	return v, ok
}

// SortedScores returns the sub-score names in stable order.
func (b Breakdown) SortedScores() []SubScore {
	keys := make([]SubScore, 0, len(b.Scores))
	for key := range b.Scores {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// ScoreContent computes the sub-scores of draft under cfg.
func ScoreContent(draft Draft, inputs SignalInputs, cfg EngineConfig) Breakdown {
	b := Breakdown{
		Scores:        make(map[SubScore]float64, len(BaseSubScores)+len(inputs.Extended)),
		Weights:       make(map[SubScore]float64, len(cfg.Weights)),
		ConfigVersion: cfg.Version,
	}
	for key, weight := range cfg.Weights {
		b.Weights[key] = weight
	}

	sources := sanitizeSources(draft.Sources, &b.Warnings)
	b.Scores[SourceAgreement] = sourceAgreement(sources)
	b.Scores[ModelConfidence] = modelConfidence(draft)
	b.Scores[FactCheck] = factCheck(sources, draft.Body)
	b.Scores[SentimentConsistency] = sentimentConsistency(inputs.SentimentConsistency, &b.Warnings)
	b.Scores[EntityAccuracy] = entityAccuracy(draft.Entities, &b.Warnings)

	extendedKeys := make([]SubScore, 0, len(inputs.Extended))
	for key := range inputs.Extended {
		extendedKeys = append(extendedKeys, key)
	}
	slices.Sort(extendedKeys)
	for _, key := range extendedKeys {
		if !slices.Contains(ExtendedSubScores, key) {
			b.Warnings = append(b.Warnings, fmt.Sprintf("unknown sub-score %q ignored", key))
			continue
		}
		b.Scores[key] = checkedInput(key, inputs.Extended[key], &b.Warnings)
	}

	for _, key := range sortedWeightKeys(cfg.Weights) {
		if _, ok := b.Scores[key]; ok || cfg.Weights[key] == 0 {
			continue
		}
		b.Scores[key] = DefaultSubScore
		b.Warnings = append(b.Warnings, fmt.Sprintf("%s missing, default %.2f substituted", key, DefaultSubScore))
	}

	for _, key := range b.SortedScores() {
		ceiling := cfg.Ceiling(key)
		if b.Scores[key] > ceiling {
			b.Warnings = append(b.Warnings, fmt.Sprintf("%s capped at %.2f by %s", key, ceiling, key.ThresholdKey()))
			b.Scores[key] = ceiling
		}
	}

	return b
}

func sanitizeSources(in []Source, warnings *[]string) []Source {
	out := make([]Source, 0, len(in))
	for _, src := range in {
		if math.IsNaN(src.Credibility) || math.IsInf(src.Credibility, 0) {
			*warnings = append(*warnings, fmt.Sprintf("source %q has malformed credibility, excluded", src.Name))
			continue
		}
		if src.Credibility < 0 || src.Credibility > 100 {
			*warnings = append(*warnings, fmt.Sprintf("source %q credibility %.2f out of range, clamped", src.Name, src.Credibility))
			src.Credibility = clampScore(src.Credibility)
		}
		out = append(out, src)
	}
	return out
}

func sourceAgreement(sources []Source) float64 {
	switch len(sources) {
	case 0:
		return 0
	case 1:
		return singleSourceScore
	}

	sum := 0.0
	high := 0
	for _, src := range sources {
		sum += src.Credibility
		if src.Credibility >= highCredibility {
			high++
		}
	}
	mean := sum / float64(len(sources))
	countBonus := math.Min(float64(len(sources)-1)*sourceCountBonusStep, sourceCountBonusCap)
	highBonus := math.Min(float64(high)*highCredibilityBonus, highCredibilityCap)
	return clampScore(mean + countBonus + highBonus)
}

func modelConfidence(draft Draft) float64 {
	score := modelConfidenceBase
	if utf8.RuneCountInString(strings.TrimSpace(draft.Title)) >= minTitleRunes {
		score += modelConfidenceStep
	}
	if utf8.RuneCountInString(draft.Body) >= minBodyRunes {
		score += modelConfidenceStep
	}
	if strings.Contains(strings.ReplaceAll(draft.Body, "\r\n", "\n"), "\n\n") {
		score += modelConfidenceStep
	}
	return math.Min(score, 100)
}

func factCheck(sources []Source, body string) float64 {
	score := noSourceFactCheck
	if len(sources) > 0 {
		credible := 0
		for _, src := range sources {
			if src.Credibility >= factCheckCredibleFloor {
				credible++
			}
		}
		score = factCheckBase + factCheckSpan*float64(credible)/float64(len(sources))
	}
	score -= redFlagPenalty * float64(len(RedFlags(body)))
	return clampScore(score)
}

func sentimentConsistency(value *float64, warnings *[]string) float64 {
	if value == nil {
		return DefaultSubScore
	}
	return checkedInput(SentimentConsistency, *value, warnings)
}

func entityAccuracy(entities []Entity, warnings *[]string) float64 {
	if len(entities) == 0 {
		return DefaultSubScore
	}

	sum := 0.0
	valid := 0
	for _, entity := range entities {
		if math.IsNaN(entity.Confidence) || entity.Confidence < 0 || entity.Confidence > 1 {
			*warnings = append(*warnings, fmt.Sprintf("entity %q has malformed confidence, excluded", entity.Text))
			continue
		}
		sum += entity.Confidence
		valid++
	}
	if valid == 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s has no valid entities, default %.2f substituted", EntityAccuracy, DefaultSubScore))
		return DefaultSubScore
	}
	return clampScore(sum / float64(valid) * 100)
}

func checkedInput(name SubScore, value float64, warnings *[]string) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 || value > 100 {
		*warnings = append(*warnings, fmt.Sprintf("%s input malformed (%v), default %.2f substituted", name, value, DefaultSubScore))
		return DefaultSubScore
	}
	return value
}

func sortedWeightKeys(weights map[SubScore]float64) []SubScore {
	keys := make([]SubScore, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
