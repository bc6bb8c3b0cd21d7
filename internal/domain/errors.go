package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the orchestration core. Every typed error below
// wraps exactly one of these so callers can classify with errors.Is.
var (
	// ErrConfiguration indicates inconsistent mode, flags or project settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingInput indicates that the manifest or a referenced read file is
	// absent or unreadable.
	ErrMissingInput = errors.New("missing input")

	// ErrPlanning indicates a dependency violation or an unknown step number.
	// It always points at a planning bug or a bad request, never at a
	// runtime condition.
	ErrPlanning = errors.New("planning error")

	// ErrToolFailure indicates that an external tool exited unsuccessfully.
	ErrToolFailure = errors.New("tool failure")

	// ErrResourceExhaustion indicates that an external tool was terminated
	// because it ran out of memory or disk.
	ErrResourceExhaustion = errors.New("resource exhaustion")

	// ErrRestartState indicates that a requested restart point is
	// inconsistent with the recorded progress.
	ErrRestartState = errors.New("restart state error")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	// Field names the offending option or configuration key.
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: field=%s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// NewConfigError creates a new ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// ManifestError reports a malformed row in the samples manifest.
type ManifestError struct {
	// Path is the manifest file, empty when parsed from a reader.
	Path string

	// Line is the 1-based line number of the offending row.
	Line int

	// Reason describes the problem.
	Reason string
}

// Error implements the error interface for ManifestError.
func (e *ManifestError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("manifest line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("manifest %s line %d: %s", e.Path, e.Line, e.Reason)
}

// Unwrap returns ErrConfiguration; a malformed manifest is a configuration
// problem, an absent one is a MissingInputError.
func (e *ManifestError) Unwrap() error { return ErrConfiguration }

// MissingInputError reports an input file that cannot be read.
type MissingInputError struct {
	// Path is the file that could not be read.
	Path string

	// Sample is the sample that references Path, if any.
	Sample string

	// Err is the underlying filesystem error.
	Err error
}

// Error implements the error interface for MissingInputError.
func (e *MissingInputError) Error() string {
	if e.Sample != "" {
		return fmt.Sprintf("missing input: sample=%s, path=%s, err=%v", e.Sample, e.Path, e.Err)
	}
	return fmt.Sprintf("missing input: path=%s, err=%v", e.Path, e.Err)
}

// Unwrap returns both the kind sentinel and the filesystem cause.
func (e *MissingInputError) Unwrap() []error { return []error{ErrMissingInput, e.Err} }

// PlanningError reports a request or plan that can never execute.
type PlanningError struct {
	// Step is the step number involved, 0 when not applicable.
	Step int

	// Reason describes the violation.
	Reason string
}

// Error implements the error interface for PlanningError.
func (e *PlanningError) Error() string {
	if e.Step == 0 {
		return fmt.Sprintf("planning error: %s", e.Reason)
	}
	return fmt.Sprintf("planning error: step=%d: %s", e.Step, e.Reason)
}

// Unwrap returns ErrPlanning.
func (e *PlanningError) Unwrap() error { return ErrPlanning }

// NewPlanningError creates a new PlanningError.
func NewPlanningError(step int, format string, args ...any) *PlanningError {
	return &PlanningError{Step: step, Reason: fmt.Sprintf(format, args...)}
}

// RestartStateError reports a restart request that conflicts with the
// recorded progress, e.g. resuming at a step whose prerequisites never ran.
type RestartStateError struct {
	// Step is the step that cannot be started.
	Step int

	// Missing lists the prerequisite step numbers that are not complete.
	Missing []int

	// Reason, when set, replaces the missing-prerequisite message, e.g. for
	// a recorded step that the project's plan cannot contain.
	Reason string
}

// Error implements the error interface for RestartStateError.
func (e *RestartStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("restart state error: step %d: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("restart state error: step %d requires incomplete steps %v (use --force_overwrite to override)", e.Step, e.Missing)
}

// Unwrap returns ErrRestartState.
func (e *RestartStateError) Unwrap() error { return ErrRestartState }

// StepError wraps a failure that occurred while executing one step.
type StepError struct {
	// Step is the step number that failed.
	Step int

	// Name is the step's canonical name.
	Name string

	// Sample is set when the failure belongs to one per-sample invocation.
	Sample string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for StepError.
func (e *StepError) Error() string {
	if e.Sample != "" {
		return fmt.Sprintf("step %d (%s) failed for sample %s: %v", e.Step, e.Name, e.Sample, e.Err)
	}
	return fmt.Sprintf("step %d (%s) failed: %v", e.Step, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// NewStepError creates a new StepError.
func NewStepError(step Step, sample string, err error) *StepError {
	return &StepError{Step: step.Number, Name: step.Name, Sample: sample, Err: err}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns ErrConfiguration.
func (e *ValidationError) Unwrap() error { return ErrConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// Kind returns the sentinel classifying err, or nil if err matches none.
// Resource exhaustion is checked before tool failure since an exhausted
// tool reports both.
func Kind(err error) error {
	for _, kind := range []error{
		ErrResourceExhaustion,
		ErrToolFailure,
		ErrRestartState,
		ErrPlanning,
		ErrMissingInput,
		ErrConfiguration,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
