package scheduler

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"contentgate/internal/errs"
)

// ErrLocked means another daemon already holds the lock file.
var ErrLocked = errors.New("daemon lock held by another process")

type DaemonLock struct {
	lock *flock.Flock
}

// AcquireLock takes the cross-process daemon lock without blocking.
func AcquireLock(path string) (*DaemonLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(err, "create lock directory")
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errs.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, errs.Wrapf(ErrLocked, "lock %s", path)
	}
	return &DaemonLock{lock: lock}, nil
}

func (l *DaemonLock) Path() string { return l.lock.Path() }

func (l *DaemonLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return errs.Wrap(err, "release lock")
	}
	return nil
}
