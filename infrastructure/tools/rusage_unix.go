//go:build unix

package tools

import (
	"os"
	"runtime"
	"syscall"
	"time"
)

// processUsage extracts peak RSS (kilobytes) and CPU times of a finished
// process.
func processUsage(ps *os.ProcessState) (maxRSSKB int64, user, system time.Duration) {
	if ps == nil {
		return 0, 0, 0
	}
	user, system = ps.UserTime(), ps.SystemTime()
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		maxRSSKB = int64(ru.Maxrss)
		// Darwin reports bytes, Linux and the BSDs kilobytes.
		if runtime.GOOS == "darwin" {
			maxRSSKB /= 1024
		}
	}
	return maxRSSKB, user, system
}

// terminationSignal names the signal that ended the process and reports
// whether it was SIGKILL.
func terminationSignal(ps *os.ProcessState) (string, bool) {
	if ps == nil {
		return "", false
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	return ws.Signal().String(), ws.Signal() == syscall.SIGKILL
}
