package quality

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

type ContentType string

const (
	ContentTypeNews         ContentType = "news"
	ContentTypeEvent        ContentType = "event"
	ContentTypeArticle      ContentType = "article"
	ContentTypeOpinion      ContentType = "opinion"
	ContentTypeGuide        ContentType = "guide"
	ContentTypeAnnouncement ContentType = "announcement"
)

var allowedContentTypes = map[ContentType]struct{}{
	ContentTypeNews:         {},
	ContentTypeEvent:        {},
	ContentTypeArticle:      {},
	ContentTypeOpinion:      {},
	ContentTypeGuide:        {},
	ContentTypeAnnouncement: {},
}

func NormalizeContentType(raw string) (ContentType, error) {
	trimmed := ContentType(strings.ToLower(strings.TrimSpace(raw)))
	if trimmed == "" {
		return "", fmt.Errorf("%w: content type is required", ErrValidation)
	}
	if _, ok := allowedContentTypes[trimmed]; !ok {
		return "", fmt.Errorf("%w: unknown content type %q", ErrValidation, raw)
	}
	return trimmed, nil
}

type Source struct {
	Name        string  `json:"name" yaml:"name"`
	URL         string  `json:"url,omitempty" yaml:"url,omitempty"`
	Credibility float64 `json:"credibility" yaml:"credibility"`
}

type Entity struct {
	Text       string  `json:"text" yaml:"text"`
	Type       string  `json:"type,omitempty" yaml:"type,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// DraftBaseline is the pre-rule state of the fields rules may mutate.
type DraftBaseline struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority"`
}

type Draft struct {
	ID          string         `json:"id"`
	ContentID   string         `json:"content_id"`
	Version     int            `json:"version"`
	ContentType ContentType    `json:"content_type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Sources     []Source       `json:"sources,omitempty"`
	Entities    []Entity       `json:"entities,omitempty"`
	Sentiment   string         `json:"sentiment,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Category    string         `json:"category,omitempty"`
	Priority    int            `json:"priority"`
	Baseline    *DraftBaseline `json:"baseline,omitempty"`
}

func (d Draft) Clone() Draft {
	out := d
	out.Sources = slices.Clone(d.Sources)
	out.Entities = slices.Clone(d.Entities)
	out.Tags = slices.Clone(d.Tags)
	if d.Baseline != nil {
		baseline := *d.Baseline
		baseline.Tags = slices.Clone(d.Baseline.Tags)
		out.Baseline = &baseline
	}
	return out
}

func (d Draft) Validate() error {
	if _, err := NormalizeContentType(string(d.ContentType)); err != nil {
		return err
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	return nil
}

func (d Draft) Text() string {
	return d.Title + "\n" + d.Body
}

func (d Draft) WordCount() int {
	return len(strings.Fields(d.Body))
}

func (d Draft) Length() int {
	return utf8.RuneCountInString(d.Body)
}

// NormalizeTags trims, drops empties, and removes case-insensitive duplicates
// while keeping the first spelling seen.
func NormalizeTags(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		key := fold(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
