package domain

import "fmt"

// PairRole tags a read file with its position in a read pair.
type PairRole string

const (
	// PairFirst marks the forward reads of a pair.
	PairFirst PairRole = "pair1"
	// PairSecond marks the reverse reads of a pair.
	PairSecond PairRole = "pair2"
	// PairUnpaired marks single-end reads.
	PairUnpaired PairRole = "unpaired"
)

// ParsePairRole converts the manifest spelling of a pair role.
func ParsePairRole(s string) (PairRole, error) {
	switch PairRole(s) {
	case PairFirst, PairSecond, PairUnpaired:
		return PairRole(s), nil
	}
	return "", fmt.Errorf("unknown pair role %q (valid: pair1, pair2, unpaired)", s)
}

// ReadFile is one read-file reference of a sample.
type ReadFile struct {
	Path string
	Role PairRole
}

// Sample is one sequenced sample as declared in the samples manifest.
// Samples are immutable once the manifest has been parsed.
type Sample struct {
	// ID is unique within a project.
	ID string

	// Files keeps manifest order.
	Files []ReadFile

	// NoAssembly excludes the sample's reads from the assembly input.
	NoAssembly bool

	// NoBinning excludes the sample's coverage from the binning input.
	NoBinning bool
}

// FilesWithRole returns the sample's files that carry role, in manifest order.
func (s Sample) FilesWithRole(role PairRole) []string {
	var out []string
	for _, f := range s.Files {
		if f.Role == role {
			out = append(out, f.Path)
		}
	}
	return out
}

// Paths returns every file path of the sample in manifest order.
func (s Sample) Paths() []string {
	out := make([]string, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Path
	}
	return out
}

// AssemblySamples returns the samples that contribute reads to assembly.
func AssemblySamples(samples []Sample) []Sample {
	return filterSamples(samples, func(s Sample) bool { return !s.NoAssembly })
}

// MappingSamples returns the samples mapped back against the assembly to
// recover abundances. Every sample is mapped, including those excluded
// from assembly or binning.
func MappingSamples(samples []Sample) []Sample {
	return filterSamples(samples, func(Sample) bool { return true })
}

// BinningSamples returns the samples whose coverage feeds binning.
func BinningSamples(samples []Sample) []Sample {
	return filterSamples(samples, func(s Sample) bool { return !s.NoBinning })
}

// SampleIDs returns the identifiers of samples, preserving order.
func SampleIDs(samples []Sample) []string {
	ids := make([]string, len(samples))
	for i, s := range samples {
		ids[i] = s.ID
	}
	return ids
}

func filterSamples(samples []Sample, keep func(Sample) bool) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
