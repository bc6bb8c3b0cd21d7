//go:build !unix

package progress

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ahrav/go-sqm/internal/ports"
)

// projectLock falls back to an exclusively created lock file where flock is
// unavailable. A crashed run leaves the file behind and it must be removed
// by hand.
type projectLock struct {
	path string
}

func acquireLock(path string) (*projectLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, ports.ErrProjectLocked)
		}
		return nil, err
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &projectLock{path: path}, nil
}

func (l *projectLock) release() error {
	return os.Remove(l.path)
}
