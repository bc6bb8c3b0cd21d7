package domain

import "time"

// RunStatus is the final state of one controller invocation.
type RunStatus string

const (
	// RunCompleted means every planned step from the resume point is complete.
	RunCompleted RunStatus = "completed"
	// RunStopped means the run halted successfully after the requested test step.
	RunStopped RunStatus = "stopped"
	// RunFailed means a step failed or the run was rejected before execution.
	RunFailed RunStatus = "failed"
)

// StepOutcome summarizes one dispatched step.
type StepOutcome struct {
	Step     int
	Name     string
	Duration time.Duration
	// Invocations counts the external tool runs the step needed.
	Invocations int
}

// RunResult summarizes one controller invocation.
type RunResult struct {
	// RunID uniquely identifies the invocation in logs and traces.
	RunID string

	// Start is the first step number considered.
	Start int

	// Ran lists dispatched steps in execution order.
	Ran []StepOutcome

	// Skipped lists steps not dispatched because they were already complete.
	Skipped []int

	// HaltedAt is the failing step, or the stop-after step for RunStopped.
	HaltedAt int

	Status RunStatus

	// Err is the failure for RunFailed.
	Err error
}

// RanSteps returns the dispatched step numbers in order.
func (r RunResult) RanSteps() []int {
	out := make([]int, len(r.Ran))
	for i, o := range r.Ran {
		out[i] = o.Step
	}
	return out
}
