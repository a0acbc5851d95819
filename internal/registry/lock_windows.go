//go:build windows

package registry

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile blocks until an exclusive LockFileEx on path is held
func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	handle := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return func() error {
		defer func() { _ = f.Close() }()
		return windows.UnlockFileEx(handle, 0, 1, 0, ol)
	}, nil
}
