package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrav/go-sqm/internal/ports"
)

// exitCodeOOMKilled is the shell convention for a process killed by SIGKILL,
// which is how the kernel OOM killer and most schedulers terminate jobs.
const exitCodeOOMKilled = 137

// oomScanBytes bounds how much of a log tail is scanned for
// out-of-memory markers.
const oomScanBytes = 64 << 10

// exhaustionMarkers are lower-cased log fragments that indicate a tool died
// for lack of memory or disk.
var exhaustionMarkers = []string{
	"out of memory",
	"cannot allocate memory",
	"std::bad_alloc",
	"memoryerror",
	"oom-kill",
	"no space left on device",
	"disk quota exceeded",
}

// waitDelay bounds how long Run waits for output pipes after the process
// has been killed on cancellation.
const waitDelay = 10 * time.Second

var _ ports.Tool = (*ExecTool)(nil)

// ExecTool runs one external program per invocation.
type ExecTool struct {
	name    string
	command *CommandTemplate
	logDir  string
}

// NewExecTool compiles cfg into a tool named name. Logs go to logDir, or to
// <project>/logs when logDir is empty.
func NewExecTool(name string, cfg CommandConfig, logDir string) (*ExecTool, error) {
	ct, err := NewCommandTemplate(name, cfg)
	if err != nil {
		return nil, err
	}
	return &ExecTool{name: name, command: ct, logDir: logDir}, nil
}

// Name implements ports.Tool.
func (t *ExecTool) Name() string { return t.name }

// Run renders the command line, runs it to completion and reports resource
// usage. Cancelling ctx kills the process.
func (t *ExecTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	args, err := t.command.Render(inv)
	if err != nil {
		return ports.ToolResult{ExitCode: -1}, ports.NewToolError(t.name, -1, err)
	}

	logPath := t.logPath(inv)
	result := ports.ToolResult{LogPath: logPath}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return result, &ports.ToolError{Tool: t.name, ExitCode: -1, LogPath: logPath, Err: err}
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return result, &ports.ToolError{Tool: t.name, ExitCode: -1, LogPath: logPath, Err: err}
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "# %s\n", strings.Join(append([]string{t.command.Command()}, args...), " "))

	cmd := exec.CommandContext(ctx, t.command.Command(), args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), t.command.Env()...)
	cmd.WaitDelay = waitDelay
	if inv.ProjectDir != "" {
		if fi, err := os.Stat(inv.ProjectDir); err == nil && fi.IsDir() {
			cmd.Dir = inv.ProjectDir
		}
	}

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		result.MaxRSSKB, result.UserTime, result.SystemTime = processUsage(cmd.ProcessState)
	} else {
		result.ExitCode = -1
	}
	if runErr == nil {
		return result, nil
	}
	return result, t.classify(ctx, cmd, runErr, logPath)
}

// classify converts a failed run into a ToolError, marking resource
// exhaustion when the process was killed or its log says so.
func (t *ExecTool) classify(ctx context.Context, cmd *exec.Cmd, runErr error, logPath string) error {
	toolErr := &ports.ToolError{Tool: t.name, ExitCode: -1, LogPath: logPath, Err: runErr}

	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = fmt.Errorf("%w: %w", ctxErr, runErr)
		return toolErr
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		// The process never started, e.g. the executable is missing.
		return toolErr
	}
	toolErr.ExitCode = exitErr.ExitCode()
	signal, killed := terminationSignal(cmd.ProcessState)
	toolErr.Signal = signal
	toolErr.Exhausted = killed || toolErr.ExitCode == exitCodeOOMKilled || logShowsExhaustion(logPath)
	return toolErr
}

// logPath places the log under the configured directory or the project.
func (t *ExecTool) logPath(inv ports.Invocation) string {
	if inv.LogPath != "" {
		return inv.LogPath
	}
	dir := t.logDir
	if dir == "" {
		dir = filepath.Join(inv.ProjectDir, "logs")
	}
	name := fmt.Sprintf("%02d.%s", inv.Step, t.name)
	if inv.Sample != "" {
		name += "." + inv.Sample
	}
	return filepath.Join(dir, name+".log")
}

// logShowsExhaustion scans the tail of a log for exhaustion markers.
func logShowsExhaustion(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && fi.Size() > oomScanBytes {
		if _, err := f.Seek(-oomScanBytes, io.SeekEnd); err != nil {
			return false
		}
	}
	tail, err := io.ReadAll(io.LimitReader(f, oomScanBytes))
	if err != nil {
		return false
	}
	tail = bytes.ToLower(tail)
	for _, marker := range exhaustionMarkers {
		if bytes.Contains(tail, []byte(marker)) {
			return true
		}
	}
	return false
}
