package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/ports"
)

const (
	cacheContentStatusPrefix = "content_status:"
	cacheSweepPrefix         = "sweep_last_run:"

	sweepSchedule = "schedule"
	sweepIngest   = "ingest"
	sweepFeedback = "feedback"
	sweepMetrics  = "metrics"
)

var errActorRequired = fmt.Errorf("%w: actor is required", quality.ErrValidation)

// Service runs the content quality gate: evaluation, approval routing, the
// feedback loop and performance metrics.
type Service struct {
	store    ports.Store
	uow      ports.UnitOfWork
	cache    ports.Cache
	notifier ports.Notifier
	profile  WorkflowProfile
	seed     quality.EngineConfig
	sources  []ports.ContentSource

	now   func() time.Time
	newID func() string
}

// NewService wires the approval usecases. cache, notifier and sources are
// optional.
func NewService(
	store ports.Store,
	uow ports.UnitOfWork,
	cache ports.Cache,
	notifier ports.Notifier,
	profile WorkflowProfile,
	seed quality.EngineConfig,
	sources []ports.ContentSource,
) *Service {
	return &Service{
		store:    store,
		uow:      uow,
		cache:    cache,
		notifier: notifier,
		profile:  profile,
		seed:     seed,
		sources:  sources,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) check(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.store == nil {
		return errors.New("content store is required")
	}
	if s.uow == nil {
		return errors.New("unit of work is required")
	}
	return nil
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		logging.Debug(ctx, "cache write skipped", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) cacheStatus(ctx context.Context, item ports.ContentItem) {
	s.setCacheBestEffort(ctx, cacheContentStatusPrefix+item.ContentID, string(item.State))
}

func (s *Service) recordSweep(ctx context.Context, name string, summary string) {
	s.setCacheBestEffort(ctx, cacheSweepPrefix+name, s.nowUTC().Format(time.RFC3339)+" "+summary)
}

// SweepStatus reports the last run of each sweep as recorded in the cache.
func (s *Service) SweepStatus(ctx context.Context) (map[string]string, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s.cache == nil {
		return map[string]string{}, nil
	}
	raw, err := s.cache.ListPrefix(ctx, cacheSweepPrefix, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[strings.TrimPrefix(key, cacheSweepPrefix)] = value
	}
	return out, nil
}

// notifyBestEffort sends after commit; delivery failures are logged only.
func (s *Service) notifyBestEffort(ctx context.Context, req *ports.ApprovalRequest) {
	if req == nil || s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyApprovalRequested(ctx, *req); err != nil {
		logging.Warn(ctx, "approval notification failed",
			slog.String("content_id", req.ContentID),
			slog.String("notifier", s.notifier.Name()),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

// translateStoreError maps persistence errors onto the domain taxonomy.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrStaleWrite):
		return errs.Mark(err, quality.ErrConcurrencyConflict)
	case errors.Is(err, ports.ErrContentNotFound),
		errors.Is(err, ports.ErrDraftNotFound),
		errors.Is(err, ports.ErrRuleNotFound),
		errors.Is(err, ports.ErrSuggestionNotFound),
		errors.Is(err, ports.ErrConfigNotFound):
		return errs.Mark(err, quality.ErrNotFound)
	}
	return err
}

func requireActor(actor string) (string, error) {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return "", errActorRequired
	}
	return trimmed, nil
}
