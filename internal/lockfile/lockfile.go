// Package lockfile provides advisory, process-level file locks.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrAlreadyLocked indicates the lock is held by another process or handle.
var ErrAlreadyLocked = errors.New("lock already held")

const defaultPollInterval = 50 * time.Millisecond

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the lock at path without blocking. The parent directory is created.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Owner pid, for troubleshooting stale locks.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

// Wait polls Acquire until it succeeds, fails with anything other than
// ErrAlreadyLocked, or ctx is done.
func Wait(ctx context.Context, path string, poll time.Duration) (*Lock, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	for {
		lk, err := Acquire(path)
		if err == nil {
			return lk, nil
		}
		if !errors.Is(err, ErrAlreadyLocked) {
			return nil, err
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("wait for lock %s: %w", path, ctx.Err())
		case <-t.C:
		}
	}
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
