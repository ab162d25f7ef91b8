package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerSkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s, err := New(context.Background(), []Job{{
		Name: "feedback",
		Spec: "off",
		Run: func(context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Trigger("feedback") }()
	<-started

	if err := s.Trigger("feedback"); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("Trigger() overlapping error = %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("runs = %d", runs.Load())
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	s, err := New(context.Background(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Trigger("missing"); err == nil {
		t.Fatalf("Trigger() expected error")
	}
}

func TestNewRejectsBadSpecAndDuplicates(t *testing.T) {
	noop := func(context.Context) error { return nil }

	if _, err := New(context.Background(), []Job{{Name: "a", Spec: "every tuesday", Run: noop}}); err == nil {
		t.Fatalf("New() expected error for bad spec")
	}
	if _, err := New(context.Background(), []Job{{Name: "a", Run: noop}, {Name: "a", Run: noop}}); err == nil {
		t.Fatalf("New() expected error for duplicate job")
	}
}

func TestCronRunsJob(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := New(context.Background(), []Job{{
		Name: "schedule",
		Spec: "@every 1s",
		Run: func(context.Context) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return errors.New("failure is logged, not fatal")
		},
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Start()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "daemon.lock")

	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	if _, err := AcquireLock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("AcquireLock() second error = %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	_ = again.Release()
}
