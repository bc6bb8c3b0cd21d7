// Package domain contains pure, dependency-light domain models for the
// metagenomics workflow orchestrator: execution modes, samples, steps,
// progress records and assembly units.
package domain

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Mode selects one of the four execution graphs built from the step table.
type Mode string

const (
	// ModeIndependent carries every sample through the whole pipeline in
	// isolation.
	ModeIndependent Mode = "independent"

	// ModeCoassembly pools reads from all assembly samples into one assembly.
	ModeCoassembly Mode = "coassembly"

	// ModeMerged assembles samples individually and combines the results in
	// a single merge operation.
	ModeMerged Mode = "merged"

	// ModeSeqMerge assembles samples individually and merges them pairwise,
	// most similar first, until one assembly remains.
	ModeSeqMerge Mode = "seqmerge"
)

// modeAliases maps accepted spellings, including the historical ones, to
// canonical modes.
var modeAliases = map[string]Mode{
	"independent": ModeIndependent,
	"sequential":  ModeIndependent,
	"coassembly":  ModeCoassembly,
	"merged":      ModeMerged,
	"seqmerge":    ModeSeqMerge,
}

// ParseMode resolves a user-supplied mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	key := cases.Fold().String(strings.TrimSpace(s))
	if m, ok := modeAliases[key]; ok {
		return m, nil
	}
	return "", NewConfigError("mode", fmt.Sprintf("unknown mode %q (valid: %s)", s, strings.Join(ModeNames(), ", ")))
}

// ModeNames returns the canonical mode names in sorted order.
func ModeNames() []string {
	names := []string{
		string(ModeIndependent),
		string(ModeCoassembly),
		string(ModeMerged),
		string(ModeSeqMerge),
	}
	sort.Strings(names)
	return names
}

// Valid reports whether m is one of the canonical modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeIndependent, ModeCoassembly, ModeMerged, ModeSeqMerge:
		return true
	}
	return false
}

// AssemblesPerSample reports whether step 1 produces one assembly per sample.
func (m Mode) AssemblesPerSample() bool {
	return m == ModeIndependent || m == ModeMerged || m == ModeSeqMerge
}

// MergesAssemblies reports whether the mode reduces per-sample assemblies
// to one before annotation.
func (m Mode) MergesAssemblies() bool {
	return m == ModeMerged || m == ModeSeqMerge
}

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }
