// Package scheduler runs the periodic sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
)

// ErrJobRunning is returned by Trigger when the job is already in flight.
var ErrJobRunning = errors.New("job already running")

type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type guardedJob struct {
	Job
	running atomic.Bool
}

// Scheduler runs jobs on cron specs. A job never overlaps itself, whether it
// was started by cron or by Trigger.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*guardedJob
}

func New(ctx context.Context, jobs []Job) (*Scheduler, error) {
	logCtx := logging.WithComponent(ctx, "scheduler")
	logger := NewCronLogger(logging.Logger(logCtx))

	s := &Scheduler{
		ctx: logCtx,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		jobs: make(map[string]*guardedJob, len(jobs)),
	}

	for _, job := range jobs {
		name := strings.TrimSpace(job.Name)
		if name == "" || job.Run == nil {
			return nil, errors.New("job name and run func are required")
		}
		if _, dup := s.jobs[name]; dup {
			return nil, fmt.Errorf("duplicate job %q", name)
		}
		guarded := &guardedJob{Job: job}
		s.jobs[name] = guarded

		spec := strings.TrimSpace(job.Spec)
		if spec == "" || spec == "off" {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { s.run(guarded) }); err != nil {
			return nil, errs.Wrapf(err, "schedule job %s (%q)", name, spec)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logging.Info(s.ctx, "scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop halts cron and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logging.Info(s.ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), "wait for running jobs")
	}
}

// Trigger runs the named job now on the caller's goroutine.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if !s.run(job) {
		return ErrJobRunning
	}
	return nil
}

func (s *Scheduler) run(job *guardedJob) bool {
	jobCtx := logging.WithAttrs(s.ctx, slog.String("job", job.Name))
	if !job.running.CompareAndSwap(false, true) {
		logging.Info(jobCtx, "job still running, skipped")
		return false
	}
	defer job.running.Store(false)

	started := time.Now()
	if err := job.Run(jobCtx); err != nil {
		logging.Error(jobCtx, "job failed", slog.Any("err", errs.Loggable(err)))
		return true
	}
	logging.Debug(jobCtx, "job completed", slog.Duration("elapsed", time.Since(started)))
	return true
}
