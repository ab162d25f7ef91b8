package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"contentgate/internal/bootstrap/config"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/infrastructure/scheduler"
	"contentgate/internal/usecase/approval"
)

const (
	SweepSchedule = "schedule"
	SweepIngest   = "ingest"
	SweepFeedback = "feedback"
	SweepMetrics  = "metrics"
)

// SweepNames lists the background sweeps in the order the CLI documents them.
var SweepNames = []string{SweepSchedule, SweepIngest, SweepFeedback, SweepMetrics}

// SweepJobs binds each sweep to its cron spec. A spec of "off" keeps the job
// available to Trigger without scheduling it.
func SweepJobs(cfg config.SweepsConfig, svc *approval.Service) []scheduler.Job {
	return []scheduler.Job{
		{
			Name: SweepSchedule,
			Spec: cfg.Schedule,
			Run: func(ctx context.Context) error {
				report, err := svc.ProcessDueContent(ctx, cfg.ScheduleBatchSize)
				if err != nil {
					return err
				}
				logging.Info(ctx, "schedule sweep finished",
					slog.Int("scanned", report.Scanned),
					slog.Int("advanced", report.Advanced),
					slog.Int("failed", report.Failed),
				)
				return nil
			},
		},
		{
			Name: SweepIngest,
			Spec: cfg.Ingest,
			Run: func(ctx context.Context) error {
				report, err := svc.IngestExternal(ctx)
				if err != nil {
					return err
				}
				logging.Info(ctx, "ingest sweep finished",
					slog.Int("fetched", report.Fetched),
					slog.Int("created", report.Created),
					slog.Int("duplicates", report.Duplicates),
					slog.Int("failed", report.Failed),
				)
				return nil
			},
		},
		{
			Name: SweepFeedback,
			Spec: cfg.Feedback,
			Run: func(ctx context.Context) error {
				adjustments, err := svc.RunAdjustmentSweep(ctx, cfg.FeedbackBatchSize)
				if err != nil {
					return err
				}
				logging.Info(ctx, "feedback sweep finished", slog.Int("adjustments", len(adjustments)))
				return nil
			},
		},
		{
			Name: SweepMetrics,
			Spec: cfg.Metrics,
			Run: func(ctx context.Context) error {
				metrics, err := svc.ComputePerformanceMetrics(ctx, approval.MetricsInput{
					Window:      cfg.MetricsWindow,
					TopWarnings: cfg.MetricsTopWarnings,
				})
				if err != nil {
					return err
				}
				logging.Info(ctx, "metrics sweep finished", slog.Int("groups", len(metrics)))
				return nil
			},
		},
	}
}

// FindSweep returns the job with the given name.
func FindSweep(jobs []scheduler.Job, name string) (scheduler.Job, error) {
	idx := slices.IndexFunc(jobs, func(job scheduler.Job) bool { return job.Name == name })
	if idx < 0 {
		return scheduler.Job{}, fmt.Errorf("unknown sweep %q (want one of %v)", name, SweepNames)
	}
	return jobs[idx], nil
}
