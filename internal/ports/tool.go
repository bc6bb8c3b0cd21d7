// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"time"
)

// Invocation describes one run of an external tool. Fields are exposed to
// command templates, so their names are part of the tools configuration.
type Invocation struct {
	// Step is the step number the invocation belongs to.
	Step int

	// StepName is the step's canonical name.
	StepName string

	// Project is the project name.
	Project string

	// ProjectDir is the project's working directory.
	ProjectDir string

	// Mode is the execution mode.
	Mode string

	// Sample is set for per-sample invocations.
	Sample string

	// Samples lists the samples participating in the invocation.
	Samples []string

	// Inputs lists input file handles, e.g. read files or contig files.
	Inputs []string

	// Output is the primary output handle the tool is expected to produce.
	Output string

	// Threads is the thread budget for the tool's own parallelism.
	Threads int

	// LogPath receives the tool's stdout and stderr. Empty means the
	// adapter picks a location.
	LogPath string
}

// ToolResult reports what a finished invocation consumed.
type ToolResult struct {
	// ExitCode is the process exit status.
	ExitCode int

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration

	// MaxRSSKB is the peak resident set size in kilobytes, 0 if unknown.
	MaxRSSKB int64

	// UserTime and SystemTime are CPU times, zero if unknown.
	UserTime   time.Duration
	SystemTime time.Duration

	// LogPath is where output was captured.
	LogPath string
}

// Tool invokes one external computational tool as a unit of work.
// Implementations hold no state beyond the in-flight invocation and must be
// safe for concurrent use.
type Tool interface {
	// Name identifies the tool in logs, metrics and errors.
	Name() string

	// Run executes the invocation and blocks until the process exits.
	// A non-nil error means the invocation failed; it should wrap
	// domain.ErrToolFailure (usually through *ToolError).
	Run(ctx context.Context, inv Invocation) (ToolResult, error)
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, inv Invocation) (ToolResult, error)
}

// Name implements Tool.
func (f ToolFunc) Name() string { return f.ToolName }

// Run implements Tool.
func (f ToolFunc) Run(ctx context.Context, inv Invocation) (ToolResult, error) {
	return f.Fn(ctx, inv)
}

// ToolProvider resolves the tool responsible for a step.
type ToolProvider interface {
	// ToolFor returns the tool for the named step, or an error wrapping
	// ErrToolNotConfigured.
	ToolFor(stepName string) (Tool, error)
}
