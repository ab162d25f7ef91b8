package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
)

const (
	defaultMetricsWindow = 24 * time.Hour
	defaultTopWarnings   = 5
)

type MetricsInput struct {
	// End closes the window; zero means now.
	End         time.Time
	Window      time.Duration
	TopWarnings int
}

// ComputePerformanceMetrics aggregates the decisions rendered in the window
// per agent and content type and stores the result.
func (s *Service) ComputePerformanceMetrics(ctx context.Context, input MetricsInput) ([]quality.PerformanceMetrics, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	window := input.Window
	if window <= 0 {
		window = defaultMetricsWindow
	}
	topN := input.TopWarnings
	if topN <= 0 {
		topN = defaultTopWarnings
	}
	end := input.End.UTC()
	if input.End.IsZero() {
		end = s.nowUTC()
	}
	start := end.Add(-window)

	logCtx := logging.WithAttrs(logging.WithComponent(ctx, "usecase.approval"), slog.String("sweep", sweepMetrics))
	samples, err := s.store.ListDecisionSamples(logCtx, start, end)
	if err != nil {
		return nil, errs.Wrap(err, "list decision samples")
	}
	metrics := quality.ComputeMetrics(samples, start, end, topN)
	if len(metrics) > 0 {
		if err := s.store.SaveMetrics(logCtx, metrics, s.nowUTC()); err != nil {
			return nil, errs.Wrap(err, "save metrics")
		}
	}

	logging.Info(logCtx, "performance metrics computed",
		slog.Int("samples", len(samples)),
		slog.Int("groups", len(metrics)),
		slog.Time("window_start", start),
		slog.Time("window_end", end),
	)
	s.recordSweep(logCtx, sweepMetrics, fmt.Sprintf("samples=%d groups=%d", len(samples), len(metrics)))
	return metrics, nil
}

// ListMetrics returns the most recently stored metrics rows.
func (s *Service) ListMetrics(ctx context.Context, limit int) ([]quality.PerformanceMetrics, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.ListMetrics(ctx, limit)
}
