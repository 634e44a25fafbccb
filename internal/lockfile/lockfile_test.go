package lockfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquire_SecondHandleIsRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs", "run_1", "run.lock")
	lk, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second Acquire err=%v, want ErrAlreadyLocked", err)
	}
}

func TestWait_AcquiresAfterRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")
	lk, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lk.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lk2, err := Wait(ctx, path, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := lk2.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestWait_HonorsContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.lock")
	lk, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = lk.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := Wait(ctx, path, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err=%v, want deadline exceeded", err)
	}
}
