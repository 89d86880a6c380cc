//go:build !windows

package session

import (
	"os"
	"syscall"
)

// TryExclusiveLock takes a non-blocking exclusive flock on file.
func TryExclusiveLock(file *os.File) bool {
	if file == nil {
		return false
	}
	return syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB) == nil
}

func UnlockFile(file *os.File) {
	if file == nil {
		return
	}
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
