// Package source feeds externally produced drafts into the approval workflow.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const rejectedDirName = "rejected"

type inboxDocument struct {
	ExternalRef string               `yaml:"external_ref"`
	ContentType string               `yaml:"content_type"`
	Title       string               `yaml:"title"`
	Body        string               `yaml:"body"`
	Sources     []quality.Source     `yaml:"sources"`
	Entities    []quality.Entity     `yaml:"entities"`
	Sentiment   string               `yaml:"sentiment"`
	Tags        []string             `yaml:"tags"`
	Category    string               `yaml:"category"`
	Priority    int                  `yaml:"priority"`
	PublishAt   time.Time            `yaml:"publish_at"`
	SubmittedBy string               `yaml:"submitted_by"`
	Inputs      quality.SignalInputs `yaml:"inputs"`
}

// Inbox reads one draft per .yaml/.yml/.json file from a directory. Acked
// files move to the processed directory; unreadable files move to its
// rejected subdirectory.
type Inbox struct {
	dir          string
	processedDir string

	mu      sync.Mutex
	pending map[string]string
}

var _ ports.ContentSource = (*Inbox)(nil)

func NewInbox(dir string, processedDir string) *Inbox {
	dir = strings.TrimSpace(dir)
	processedDir = strings.TrimSpace(processedDir)
	if processedDir == "" {
		processedDir = filepath.Join(dir, "processed")
	}
	return &Inbox{dir: dir, processedDir: processedDir, pending: map[string]string{}}
}

func (s *Inbox) Name() string { return "inbox" }

func (s *Inbox) Dir() string { return s.dir }

func (s *Inbox) Fetch(ctx context.Context) ([]ports.ExternalDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	logCtx := logging.WithComponent(ctx, "source.inbox")

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Wrapf(err, "read inbox %s", s.dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsDraftFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]ports.ExternalDraft, 0, len(names))
	pending := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		draft, err := ReadDraftFile(path)
		if err != nil {
			logging.Warn(logCtx, "inbox file rejected", slog.String("path", path), slog.Any("err", errs.Loggable(err)))
			if moveErr := s.move(path, filepath.Join(s.processedDir, rejectedDirName)); moveErr != nil {
				logging.Error(logCtx, "move rejected inbox file failed", slog.String("path", path), slog.Any("err", errs.Loggable(moveErr)))
			}
			continue
		}
		pending[draft.ExternalRef] = path
		out = append(out, draft)
	}

	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()
	return out, nil
}

func (s *Inbox) Ack(ctx context.Context, externalRef string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	s.mu.Lock()
	path, ok := s.pending[externalRef]
	delete(s.pending, externalRef)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.move(path, s.processedDir)
}

func (s *Inbox) move(path string, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create %s", dir)
	}
	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return errs.Wrapf(err, "move %s", path)
	}
	return nil
}

// IsDraftFile reports whether name looks like an inbox draft document.
func IsDraftFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ReadDraftFile parses one inbox document. The external ref defaults to the
// file name.
func ReadDraftFile(path string) (ports.ExternalDraft, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ports.ExternalDraft{}, err
	}

	// JSON documents are valid YAML, so one decoder covers both formats.
	var doc inboxDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ports.ExternalDraft{}, fmt.Errorf("%w: decode %s: %v", quality.ErrUpstreamData, filepath.Base(path), err)
	}

	contentType, err := quality.NormalizeContentType(doc.ContentType)
	if err != nil {
		return ports.ExternalDraft{}, err
	}

	ref := strings.TrimSpace(doc.ExternalRef)
	if ref == "" {
		ref = "inbox:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	draft := quality.Draft{
		ContentType: contentType,
		Title:       strings.TrimSpace(doc.Title),
		Body:        doc.Body,
		Sources:     doc.Sources,
		Entities:    doc.Entities,
		Sentiment:   strings.TrimSpace(doc.Sentiment),
		Tags:        quality.NormalizeTags(doc.Tags),
		Category:    strings.TrimSpace(doc.Category),
		Priority:    doc.Priority,
	}
	if err := draft.Validate(); err != nil {
		return ports.ExternalDraft{}, err
	}

	return ports.ExternalDraft{
		ExternalRef: ref,
		Draft:       draft,
		Inputs:      doc.Inputs,
		PublishAt:   doc.PublishAt,
		SubmittedBy: strings.TrimSpace(doc.SubmittedBy),
	}, nil
}
