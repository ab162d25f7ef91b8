package quality

import "strings"

func longBody() string {
	para := strings.Repeat("Council members reviewed the transit budget line by line and published the figures. ", 4)
	return para + "\n\n" + para
}

func trustedDraft() Draft {
	return Draft{
		ID:          "draft-1",
		ContentID:   "content-1",
		Version:     1,
		ContentType: ContentTypeNews,
		Title:       "City council approves transit budget",
		Body:        longBody(),
		Sources: []Source{
			{Name: "wire", Credibility: 85},
			{Name: "daily", Credibility: 90},
			{Name: "record", Credibility: 88},
		},
		Entities: []Entity{
			{Text: "City Council", Confidence: 0.98},
			{Text: "Transit Authority", Confidence: 0.95},
			{Text: "Mayor", Confidence: 0.99},
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
