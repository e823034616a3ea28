//go:build unix

package pstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryFlock attempts to take an exclusive, non-blocking advisory lock on f.
// It returns false (no error) if another process already holds the lock,
// matching the "already_locked" outcome of spec §4.B / §7.
func tryFlock(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		return true, nil
	case err == unix.EWOULDBLOCK:
		return false, nil
	default:
		return false, err
	}
}

// unflock releases an advisory lock taken by tryFlock.
func unflock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
