//go:build !windows

package lockfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// os.OpenFile already sets O_CLOEXEC, so the descriptor is not leaked to
// child processes.

func tryLock(f *os.File) error {
	err := flock(f, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrAlreadyLocked
	}
	return err
}

func unlock(f *os.File) error {
	if f == nil {
		return nil
	}
	return flock(f, unix.LOCK_UN)
}

func flock(f *os.File, how int) error {
	if f == nil {
		return errors.New("nil lock file")
	}
	return unix.Flock(int(f.Fd()), how)
}
