//go:build !windows

package registry

import (
	"fmt"
	"os"
	"syscall"
)

// lockShared acquires a shared advisory lock on f, blocking until available.
// Writers replace the file via atomic rename rather than taking an exclusive
// lock, so a shared lock on the read side is enough to never observe a
// partial file.
func lockShared(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

// unlock releases an advisory lock held on f.
func unlock(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("funlock: %w", err)
	}
	return nil
}
