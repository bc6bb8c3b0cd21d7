package ports

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-sqm/internal/domain"
)

// Infrastructure errors that can occur while talking to external tools and
// durable state.
var (
	// ErrToolNotConfigured indicates that no command is configured for a step.
	ErrToolNotConfigured = errors.New("tool not configured")

	// ErrProjectLocked indicates that another process is running the project.
	ErrProjectLocked = errors.New("project locked by another run")

	// ErrInvalidToolOutput indicates that a tool succeeded but its output
	// could not be interpreted.
	ErrInvalidToolOutput = errors.New("invalid tool output")
)

// ToolError represents an unsuccessful external tool invocation.
// It carries the exit status and where the tool's output was captured.
type ToolError struct {
	// Tool is the name of the adapter that ran the command.
	Tool string

	// ExitCode is the process exit status, -1 when killed by a signal.
	ExitCode int

	// Signal names the terminating signal, if any.
	Signal string

	// LogPath is the file that captured stdout and stderr.
	LogPath string

	// Exhausted is set when the tool died for lack of memory or disk.
	Exhausted bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ToolError.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool error: tool=%s, exit_code=%d", e.Tool, e.ExitCode)
	if e.Signal != "" {
		msg += fmt.Sprintf(", signal=%s", e.Signal)
	}
	if e.Exhausted {
		msg += ", resource_exhausted=true"
	}
	if e.LogPath != "" {
		msg += fmt.Sprintf(", log=%s", e.LogPath)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(", err=%v", e.Err)
	}
	return msg
}

// Unwrap exposes the failure kind alongside the underlying error so that
// errors.Is works for both.
func (e *ToolError) Unwrap() []error {
	errs := []error{domain.ErrToolFailure}
	if e.Exhausted {
		errs = append(errs, domain.ErrResourceExhaustion)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewToolError creates a new ToolError with the given details.
func NewToolError(tool string, exitCode int, err error) *ToolError {
	return &ToolError{
		Tool:     tool,
		ExitCode: exitCode,
		Err:      err,
	}
}

// ProgressError represents a failure to read or write the progress log.
type ProgressError struct {
	// Path is the progress log location.
	Path string

	// Operation is the store operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ProgressError.
func (e *ProgressError) Error() string {
	return fmt.Sprintf("progress error: operation=%s, path=%s, err=%v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProgressError) Unwrap() error { return e.Err }

// NewProgressError creates a new ProgressError with the given details.
func NewProgressError(path, operation string, err error) *ProgressError {
	return &ProgressError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}
