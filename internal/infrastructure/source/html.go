package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const maxPageBytes = 4 << 20

// HTMLPage is one article page to ingest.
type HTMLPage struct {
	URL         string
	Name        string
	ContentType string
	Credibility float64
}

// HTML pulls article pages and turns them into drafts. Page metadata comes
// from goquery; the readable body comes from go-readability.
type HTML struct {
	pages  []HTMLPage
	client *http.Client
}

var _ ports.ContentSource = (*HTML)(nil)

func NewHTML(pages []HTMLPage, timeout time.Duration) *HTML {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTML{pages: pages, client: &http.Client{Timeout: timeout}}
}

func (s *HTML) Name() string { return "html" }

func (s *HTML) Fetch(ctx context.Context) ([]ports.ExternalDraft, error) {
	logCtx := logging.WithComponent(ctx, "source.html")

	out := make([]ports.ExternalDraft, 0, len(s.pages))
	for _, page := range s.pages {
		if err := ctx.Err(); err != nil {
			return out, errs.Wrap(err, "check context")
		}
		draft, err := s.fetchPage(ctx, page)
		if err != nil {
			logging.Warn(logCtx, "html page skipped", slog.String("url", page.URL), slog.Any("err", errs.Loggable(err)))
			continue
		}
		out = append(out, draft)
	}
	return out, nil
}

// Ack is a no-op: pages stay online and their external ref dedupes them.
func (s *HTML) Ack(context.Context, string) error { return nil }

func (s *HTML) fetchPage(ctx context.Context, page HTMLPage) (ports.ExternalDraft, error) {
	pageURL, err := url.Parse(strings.TrimSpace(page.URL))
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return ports.ExternalDraft{}, fmt.Errorf("%w: invalid page url %q", quality.ErrConfiguration, page.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return ports.ExternalDraft{}, errs.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "contentgate/0.1")

	resp, err := s.client.Do(req)
	if err != nil {
		return ports.ExternalDraft{}, errs.Wrap(err, "fetch page")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ports.ExternalDraft{}, fmt.Errorf("%w: %s returned %d", quality.ErrUpstreamData, pageURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return ports.ExternalDraft{}, errs.Wrap(err, "read page")
	}
	return ParsePage(raw, pageURL, page)
}

// ParsePage converts one fetched HTML document into an external draft.
func ParsePage(raw []byte, pageURL *url.URL, page HTMLPage) (ports.ExternalDraft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ports.ExternalDraft{}, fmt.Errorf("%w: parse html: %v", quality.ErrUpstreamData, err)
	}
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return ports.ExternalDraft{}, fmt.Errorf("%w: extract article: %v", quality.ErrUpstreamData, err)
	}

	contentType := quality.ContentTypeArticle
	if strings.TrimSpace(page.ContentType) != "" {
		contentType, err = quality.NormalizeContentType(page.ContentType)
		if err != nil {
			return ports.ExternalDraft{}, err
		}
	}

	title := firstNonEmpty(metaContent(doc, "property", "og:title"), strings.TrimSpace(article.Title), strings.TrimSpace(doc.Find("title").First().Text()))
	body := normalizeParagraphs(article.TextContent)

	canonical := pageURL.String()
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if resolved, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
			canonical = resolved.String()
		}
	}

	var tags []string
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok {
			tags = append(tags, v)
		}
	})
	if keywords := metaContent(doc, "name", "keywords"); keywords != "" {
		tags = append(tags, strings.Split(keywords, ",")...)
	}

	name := firstNonEmpty(page.Name, metaContent(doc, "property", "og:site_name"), pageURL.Host)
	draft := quality.Draft{
		ContentType: contentType,
		Title:       title,
		Body:        body,
		Sources:     []quality.Source{{Name: name, URL: canonical, Credibility: page.Credibility}},
		Tags:        quality.NormalizeTags(tags),
		Category:    metaContent(doc, "property", "article:section"),
	}
	if err := draft.Validate(); err != nil {
		return ports.ExternalDraft{}, err
	}

	var publishAt time.Time
	if raw := metaContent(doc, "property", "article:published_time"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			publishAt = parsed.UTC()
		}
	}

	return ports.ExternalDraft{
		ExternalRef: "html:" + canonical,
		Draft:       draft,
		PublishAt:   publishAt,
		SubmittedBy: firstNonEmpty(metaContent(doc, "name", "author"), strings.TrimSpace(article.Byline), name),
	}, nil
}

func metaContent(doc *goquery.Document, attr string, key string) string {
	value, _ := doc.Find(fmt.Sprintf(`meta[%s=%q]`, attr, key)).First().Attr("content")
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// normalizeParagraphs keeps paragraph breaks and drops blank runs.
func normalizeParagraphs(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.Join(strings.Fields(line), " "); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
