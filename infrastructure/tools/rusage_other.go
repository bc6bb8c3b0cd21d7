//go:build !unix

package tools

import (
	"os"
	"time"
)

// processUsage reports CPU times; peak RSS is unavailable on this platform.
func processUsage(ps *os.ProcessState) (maxRSSKB int64, user, system time.Duration) {
	if ps == nil {
		return 0, 0, 0
	}
	return 0, ps.UserTime(), ps.SystemTime()
}

// terminationSignal is unavailable on this platform.
func terminationSignal(*os.ProcessState) (string, bool) { return "", false }
