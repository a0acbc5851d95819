//go:build !windows

package registry

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile blocks until an exclusive flock on path is held
func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return func() error {
		defer func() { _ = f.Close() }()
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, nil
}
