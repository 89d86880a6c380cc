//go:build windows

package session

import (
	"os"

	"golang.org/x/sys/windows"
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

// TryExclusiveLock takes a non-blocking exclusive LockFileEx on file.
func TryExclusiveLock(file *os.File) bool {
	if file == nil {
		return false
	}
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(file.Fd()), lockfileExclusiveLock|lockfileFailImmediately, 0, 1, 0, ol)
	return err == nil
}

func UnlockFile(file *os.File) {
	if file == nil {
		return
	}
	ol := new(windows.Overlapped)
	const maxUint32 = ^uint32(0)
	_ = windows.UnlockFileEx(windows.Handle(file.Fd()), 0, maxUint32, maxUint32, ol)
}
