//go:build windows

package lockfile

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// A one-byte region at offset 0 stands for the whole file.
const regionBytes = 1

func tryLock(f *os.File) error {
	if f == nil {
		return errors.New("nil lock file")
	}
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, regionBytes, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return ErrAlreadyLocked
	}
	return err
}

func unlock(f *os.File) error {
	if f == nil {
		return nil
	}
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, regionBytes, 0, new(windows.Overlapped))
}
