package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const defaultSweepBatch = 100

// ItemResult is the per-item outcome of a sweep or bulk action.
type ItemResult struct {
	ContentID string                `json:"content_id"`
	State     quality.WorkflowState `json:"state,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorKind quality.ErrorKind     `json:"error_kind,omitempty"`
}

func failedItem(contentID string, err error) ItemResult {
	return ItemResult{ContentID: contentID, Error: err.Error(), ErrorKind: quality.KindOf(err)}
}

type SweepReport struct {
	Scanned  int          `json:"scanned"`
	Advanced int          `json:"advanced"`
	Failed   int          `json:"failed"`
	Items    []ItemResult `json:"items,omitempty"`
}

// ProcessDueContent advances every item whose publish time has passed. One
// failing item is recorded in the report and never blocks the rest.
func (s *Service) ProcessDueContent(ctx context.Context, limit int) (SweepReport, error) {
	if err := s.check(ctx); err != nil {
		return SweepReport{}, err
	}
	if limit <= 0 {
		limit = defaultSweepBatch
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("sweep", sweepSchedule))
	due, err := s.store.ListDueContent(logCtx, s.nowUTC(), limit)
	if err != nil {
		return SweepReport{}, errs.Wrap(err, "list due content")
	}

	report := SweepReport{Scanned: len(due)}
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return report, errs.Wrap(err, "schedule sweep interrupted")
		}
		item, moved, err := s.processItem(logCtx, candidate.ContentID)
		if err != nil {
			report.Failed++
			report.Items = append(report.Items, failedItem(candidate.ContentID, err))
			logging.Error(logCtx, "process due content failed",
				slog.String("content_id", candidate.ContentID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		if !moved {
			continue
		}
		report.Advanced++
		report.Items = append(report.Items, ItemResult{ContentID: item.ContentID, State: item.State})
	}

	logging.Info(logCtx, "schedule sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("advanced", report.Advanced),
		slog.Int("failed", report.Failed),
	)
	s.recordSweep(logCtx, sweepSchedule, fmt.Sprintf("advanced=%d failed=%d", report.Advanced, report.Failed))
	return report, nil
}

type IngestReport struct {
	Fetched    int          `json:"fetched"`
	Created    int          `json:"created"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
	Items      []ItemResult `json:"items,omitempty"`
}

// IngestExternal pulls drafts from every configured source and submits them.
// A draft whose external ref is already stored is acknowledged as a duplicate.
func (s *Service) IngestExternal(ctx context.Context) (IngestReport, error) {
	if err := s.check(ctx); err != nil {
		return IngestReport{}, err
	}

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("sweep", sweepIngest))
	var report IngestReport
	for _, source := range s.sources {
		if source == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, errs.Wrap(err, "ingest interrupted")
		}

		srcCtx := logging.WithAttrs(logCtx, slog.String("source", source.Name()))
		drafts, err := source.Fetch(srcCtx)
		if err != nil {
			report.Failed++
			logging.Error(srcCtx, "fetch external drafts failed", slog.Any("err", errs.Loggable(err)))
			continue
		}
		report.Fetched += len(drafts)

		for _, ext := range drafts {
			s.ingestOne(srcCtx, source, ext, &report)
		}
	}

	logging.Info(logCtx, "ingest finished",
		slog.Int("fetched", report.Fetched),
		slog.Int("created", report.Created),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("failed", report.Failed),
	)
	s.recordSweep(logCtx, sweepIngest, fmt.Sprintf("created=%d duplicates=%d failed=%d", report.Created, report.Duplicates, report.Failed))
	return report, nil
}

func (s *Service) ingestOne(ctx context.Context, source ports.ContentSource, ext ports.ExternalDraft, report *IngestReport) {
	submittedBy := strings.TrimSpace(ext.SubmittedBy)
	if submittedBy == "" {
		submittedBy = source.Name()
	}

	result, err := s.SubmitDraft(ctx, SubmitInput{
		ExternalRef: ext.ExternalRef,
		Draft:       ext.Draft,
		Inputs:      ext.Inputs,
		PublishAt:   ext.PublishAt,
		SubmittedBy: submittedBy,
	})
	switch {
	case err == nil:
		report.Created++
		report.Items = append(report.Items, ItemResult{ContentID: result.Item.ContentID, State: result.Item.State})
	case errors.Is(err, ports.ErrDuplicate):
		report.Duplicates++
	default:
		report.Failed++
		report.Items = append(report.Items, failedItem(ext.ExternalRef, err))
		logging.Warn(ctx, "submit external draft failed",
			slog.String("external_ref", ext.ExternalRef),
			slog.Any("err", errs.Loggable(err)),
		)
		return
	}

	if err := source.Ack(ctx, ext.ExternalRef); err != nil {
		logging.Warn(ctx, "ack external draft failed",
			slog.String("external_ref", ext.ExternalRef),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
