package quality

import (
	"cmp"
	"slices"
	"time"
)

// SystemAgent is the agent name recorded for decisions the engine made alone.
const SystemAgent = "system"

// DecisionSample is one rendered decision together with the agent that owns
// its outcome and, when available, the latest reviewer verdict on it.
type DecisionSample struct {
	ContentID   string
	ContentType ContentType
	Agent       string
	Decision    DecisionValue
	Warnings    []string
	DecidedAt   time.Time
	Verdict     *bool
}

type WarningCount struct {
	Warning string `json:"warning"`
	Count   int    `json:"count"`
}

type PerformanceMetrics struct {
	Agent             string         `json:"agent"`
	ContentType       ContentType    `json:"content_type"`
	WindowStart       time.Time      `json:"window_start"`
	WindowEnd         time.Time      `json:"window_end"`
	Decisions         int            `json:"decisions"`
	Validated         int            `json:"validated"`
	Accuracy          float64        `json:"accuracy"`
	FalsePositiveRate float64        `json:"false_positive_rate"`
	FalseNegativeRate float64        `json:"false_negative_rate"`
	TopWarnings       []WarningCount `json:"top_warnings,omitempty"`
}

// ComputeMetrics groups samples inside [start, end) by agent and content type.
// Accuracy is the share of validated decisions reviewers agreed with. A false
// positive is an approval reviewers disputed, a false negative a rejection
// they disputed. Only automated outcomes count toward either rate.
func ComputeMetrics(samples []DecisionSample, start time.Time, end time.Time, topN int) []PerformanceMetrics {
	type key struct {
		agent       string
		contentType ContentType
	}
	type acc struct {
		m                  PerformanceMetrics
		correct            int
		approvals, rejects int
		falsePos, falseNeg int
		warningCounts      map[string]int
	}

	groups := make(map[key]*acc)
	for _, s := range samples {
		if s.DecidedAt.Before(start) || !s.DecidedAt.Before(end) {
			continue
		}
		k := key{agent: s.Agent, contentType: s.ContentType}
		g, ok := groups[k]
		if !ok {
			g = &acc{
				m:             PerformanceMetrics{Agent: s.Agent, ContentType: s.ContentType, WindowStart: start, WindowEnd: end},
				warningCounts: map[string]int{},
			}
			groups[k] = g
		}
		g.m.Decisions++
		for _, w := range s.Warnings {
			g.warningCounts[w]++
		}
		if s.Verdict == nil {
			continue
		}
		g.m.Validated++
		correct := *s.Verdict
		if correct {
			g.correct++
		}
		switch s.Decision {
		case DecisionAutoApprove:
			g.approvals++
			if !correct {
				g.falsePos++
			}
		case DecisionAutoReject:
			g.rejects++
			if !correct {
				g.falseNeg++
			}
		}
	}

	out := make([]PerformanceMetrics, 0, len(groups))
	for _, g := range groups {
		g.m.Accuracy = ratio(g.correct, g.m.Validated)
		g.m.FalsePositiveRate = ratio(g.falsePos, g.approvals)
		g.m.FalseNegativeRate = ratio(g.falseNeg, g.rejects)
		g.m.TopWarnings = topWarnings(g.warningCounts, topN)
		out = append(out, g.m)
	}
	slices.SortFunc(out, func(a, b PerformanceMetrics) int {
		if c := cmp.Compare(a.Agent, b.Agent); c != 0 {
			return c
		}
		return cmp.Compare(a.ContentType, b.ContentType)
	})
	return out
}

func ratio(n int, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func topWarnings(counts map[string]int, n int) []WarningCount {
	if n <= 0 || len(counts) == 0 {
		return nil
	}
	out := make([]WarningCount, 0, len(counts))
	for warning, count := range counts {
		out = append(out, WarningCount{Warning: warning, Count: count})
	}
	slices.SortFunc(out, func(a, b WarningCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Warning, b.Warning)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
