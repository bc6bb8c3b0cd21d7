package domain

import (
	"sort"
	"time"
)

// Scope describes how many invocations one step needs in a mode.
type Scope int

const (
	// ScopeProject runs the step once for the whole project.
	ScopeProject Scope = iota
	// ScopePerSample runs the step once per participating sample.
	ScopePerSample
)

func (s Scope) String() string {
	if s == ScopePerSample {
		return "per-sample"
	}
	return "project"
}

// Step is one numbered unit of pipeline work. A step number always denotes
// the same logical operation in every mode it appears in.
type Step struct {
	// Number is the stable, user-facing step number.
	Number int

	// Name is the canonical snake_case name.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Modes lists the modes the step applies to.
	Modes []Mode

	// PerSample lists the modes in which the step runs once per sample
	// rather than once per project.
	PerSample []Mode

	// Skip, when non-nil, removes the step from the plan if it returns true
	// for the resolved options. It must be a pure function.
	Skip func(Options) bool

	// Requires lists the prerequisite step numbers.
	Requires []int
}

// AppliesTo reports whether the step belongs to mode's graph.
func (s Step) AppliesTo(mode Mode) bool {
	for _, m := range s.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ScopeIn returns how the step fans out in mode.
func (s Step) ScopeIn(mode Mode) Scope {
	for _, m := range s.PerSample {
		if m == mode {
			return ScopePerSample
		}
	}
	return ScopeProject
}

// Skipped reports whether the options remove the step from the plan.
func (s Step) Skipped(opts Options) bool {
	return s.Skip != nil && s.Skip(opts)
}

// ProgressRecord is the set of completed step numbers of one project, with
// the time each was (last) committed.
type ProgressRecord struct {
	Completed map[int]time.Time
}

// NewProgressRecord returns an empty record.
func NewProgressRecord() ProgressRecord {
	return ProgressRecord{Completed: make(map[int]time.Time)}
}

// IsComplete reports whether step has been committed.
func (r ProgressRecord) IsComplete(step int) bool {
	_, ok := r.Completed[step]
	return ok
}

// Highest returns the highest completed step number, or 0 when empty.
func (r ProgressRecord) Highest() int {
	highest := 0
	for n := range r.Completed {
		if n > highest {
			highest = n
		}
	}
	return highest
}

// Steps returns the completed step numbers in ascending order.
func (r ProgressRecord) Steps() []int {
	out := make([]int, 0, len(r.Completed))
	for n := range r.Completed {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Invalidate removes step from and every later step from the record and
// returns the removed step numbers in ascending order.
func (r ProgressRecord) Invalidate(from int) []int {
	var dropped []int
	for n := range r.Completed {
		if n >= from {
			dropped = append(dropped, n)
			delete(r.Completed, n)
		}
	}
	sort.Ints(dropped)
	return dropped
}

// Clone returns an independent copy of the record.
func (r ProgressRecord) Clone() ProgressRecord {
	c := NewProgressRecord()
	for n, t := range r.Completed {
		c.Completed[n] = t
	}
	return c
}
