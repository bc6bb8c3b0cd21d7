//go:build unix

package progress

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ahrav/go-sqm/internal/ports"
)

// projectLock is an advisory exclusive flock held for the store's lifetime.
type projectLock struct {
	f *os.File
}

func acquireLock(path string) (*projectLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ports.ErrProjectLocked)
		}
		return nil, err
	}
	// Record the holder for humans inspecting a stuck project.
	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &projectLock{f: f}, nil
}

func (l *projectLock) release() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
